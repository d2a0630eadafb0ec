package models

import (
	"errors"
	"time"
)

// SlotLockPayload is carried by slot:locked.
type SlotLockPayload struct {
	SlotID    string    `json:"slotId"`
	ClubID    string    `json:"clubId"`
	CourtID   string    `json:"courtId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

func (p SlotLockPayload) Club() string { return p.ClubID }

func (p SlotLockPayload) Validate() error {
	if p.SlotID == "" {
		return errors.New("slot id is required")
	}
	if p.ClubID == "" {
		return errors.New("club id is required")
	}
	return nil
}

// SlotReleasePayload is carried by slot:unlocked and slot:expired.
type SlotReleasePayload struct {
	SlotID string `json:"slotId"`
	ClubID string `json:"clubId"`
}

func (p SlotReleasePayload) Club() string { return p.ClubID }

func (p SlotReleasePayload) Validate() error {
	if p.SlotID == "" {
		return errors.New("slot id is required")
	}
	if p.ClubID == "" {
		return errors.New("club id is required")
	}
	return nil
}
