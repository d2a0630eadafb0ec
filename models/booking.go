package models

import (
	"errors"
	"time"
)

const (
	BookingStatusPending   = "pending"
	BookingStatusActive    = "active"
	BookingStatusCancelled = "cancelled"
)

// BookingSnapshot is the last known state of a booking.
type BookingSnapshot struct {
	ID        string    `json:"id"`
	ClubID    string    `json:"clubId"`
	CourtID   string    `json:"courtId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// BookingPayload is carried by booking:created and booking:updated.
type BookingPayload struct {
	Booking        BookingSnapshot `json:"booking"`
	ClubID         string          `json:"clubId"`
	PreviousStatus string          `json:"previousStatus,omitempty"`
}

func (p BookingPayload) Club() string {
	if p.ClubID != "" {
		return p.ClubID
	}
	return p.Booking.ClubID
}

func (p BookingPayload) Validate() error {
	if p.Booking.ID == "" {
		return errors.New("booking id is required")
	}
	if p.Club() == "" {
		return errors.New("club id is required")
	}
	if p.Booking.UpdatedAt.IsZero() {
		return errors.New("updatedAt is required")
	}
	return nil
}

// BookingRemovedPayload is carried by booking:cancelled.
type BookingRemovedPayload struct {
	BookingID string `json:"bookingId"`
	ClubID    string `json:"clubId"`
}

func (p BookingRemovedPayload) Club() string { return p.ClubID }

func (p BookingRemovedPayload) Validate() error {
	if p.BookingID == "" {
		return errors.New("booking id is required")
	}
	if p.ClubID == "" {
		return errors.New("club id is required")
	}
	return nil
}
