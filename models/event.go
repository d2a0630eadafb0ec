package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Kind names a frame on the realtime socket.
type Kind string

const (
	KindBookingCreated   Kind = "booking:created"
	KindBookingUpdated   Kind = "booking:updated"
	KindBookingCancelled Kind = "booking:cancelled"
	KindSlotLocked       Kind = "slot:locked"
	KindSlotUnlocked     Kind = "slot:unlocked"
	KindSlotExpired      Kind = "slot:expired"
	KindPaymentSucceeded Kind = "payment:succeeded"
	KindPaymentFailed    Kind = "payment:failed"
	KindNotice           Kind = "notice"

	// Names used by clients built before the booking:* frames existed.
	KindLegacyBookingCreated Kind = "bookingCreated"
	KindLegacyBookingUpdated Kind = "bookingUpdated"
	KindLegacyBookingDeleted Kind = "bookingDeleted"

	// Control frames sent by the server in answer to join/leave.
	KindJoined     Kind = "joined"
	KindLeft       Kind = "left"
	KindJoinDenied Kind = "join_denied"
)

var legacyKinds = map[Kind]Kind{
	KindBookingCreated:   KindLegacyBookingCreated,
	KindBookingUpdated:   KindLegacyBookingUpdated,
	KindBookingCancelled: KindLegacyBookingDeleted,
}

var domainKinds = map[Kind]struct{}{
	KindBookingCreated:   {},
	KindBookingUpdated:   {},
	KindBookingCancelled: {},
	KindSlotLocked:       {},
	KindSlotUnlocked:     {},
	KindSlotExpired:      {},
	KindPaymentSucceeded: {},
	KindPaymentFailed:    {},
	KindNotice:           {},
}

// IsDomain reports whether k belongs to the closed set of domain event kinds.
func (k Kind) IsDomain() bool {
	_, ok := domainKinds[k]
	return ok
}

// Legacy returns the deprecated alias of k, if it has one.
func (k Kind) Legacy() (Kind, bool) {
	l, ok := legacyKinds[k]
	return l, ok
}

// Canonical maps a deprecated alias back to its current name.
func (k Kind) Canonical() Kind {
	for current, legacy := range legacyKinds {
		if k == legacy {
			return current
		}
	}
	return k
}

// Frame is the envelope for every server to client message.
type Frame struct {
	Event  Kind            `json:"event"`
	Data   json.RawMessage `json:"data"`
	SentAt time.Time       `json:"sentAt"`
}

// NewFrame encodes payload under the given kind.
func NewFrame(kind Kind, payload any, now time.Time) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: kind, Data: data, SentAt: now.UTC()})
}

// ControlFrame is sent by clients to change group membership.
type ControlFrame struct {
	Action string `json:"action"` // join, leave
	ClubID string `json:"clubId"`
}

const (
	ActionJoin  = "join"
	ActionLeave = "leave"
)

// GroupAck answers a control frame.
type GroupAck struct {
	Group  string `json:"group"`
	Reason string `json:"reason,omitempty"`
}

// Payload is implemented by every domain event payload. Club returns the
// owning club id, or "" for notices that are not tied to a club.
type Payload interface {
	Club() string
}

const (
	clubGroupPrefix = "club:"
	// AllClubsGroup receives every event regardless of club.
	AllClubsGroup = "clubs:all"
)

// ClubGroup derives the group key of a club.
func ClubGroup(clubID string) string {
	return clubGroupPrefix + clubID
}

// ParseClubGroup extracts the club id from a club group key.
func ParseClubGroup(group string) (string, bool) {
	if !strings.HasPrefix(group, clubGroupPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(group, clubGroupPrefix)
	if id == "" {
		return "", false
	}
	return id, true
}
