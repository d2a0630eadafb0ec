package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"court-realtime/internal/status"
	"court-realtime/models"
	"court-realtime/monitoring"
)

// Transport delivers an encoded frame to every member of the given groups.
type Transport interface {
	Deliver(ctx context.Context, groups []string, frame []byte) error
}

// Emitter is what request handlers and hooks call after a write commits.
type Emitter interface {
	Emit(ctx context.Context, kind models.Kind, payload models.Payload)
}

type validator interface {
	Validate() error
}

// EventBus is the publish side of the realtime layer. Emission is fire and
// forget: nothing is queued, retried, or reported back to the caller.
type EventBus struct {
	mu           sync.RWMutex
	transport    Transport // nil until Attach
	legacyFrames bool
	now          func() time.Time
}

func NewEventBus(legacyFrames bool) *EventBus {
	return &EventBus{
		legacyFrames: legacyFrames,
		now:          time.Now,
	}
}

// Attach installs the transport once the server is able to deliver.
func (b *EventBus) Attach(t Transport) {
	b.mu.Lock()
	b.transport = t
	b.mu.Unlock()
}

func (b *EventBus) Ready() bool {
	return b.current() != nil
}

func (b *EventBus) current() Transport {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.transport
}

// Groups derives the target groups of a payload. Every event also goes to
// the all-clubs group.
func Groups(payload models.Payload) []string {
	clubID := payload.Club()
	if clubID == "" {
		return []string{models.AllClubsGroup}
	}
	return []string{models.ClubGroup(clubID), models.AllClubsGroup}
}

func (b *EventBus) Emit(ctx context.Context, kind models.Kind, payload models.Payload) {
	if !kind.IsDomain() || payload == nil {
		slog.Error("Refusing to emit event", "kind", kind, "error", status.ErrMalformedEvent)
		monitoring.TrackEmit(string(kind), "invalid")
		return
	}
	if v, ok := payload.(validator); ok {
		if err := v.Validate(); err != nil {
			slog.Error("Refusing to emit invalid payload", "kind", kind, "error", err)
			monitoring.TrackEmit(string(kind), "invalid")
			return
		}
	}
	if payload.Club() == "" && kind != models.KindNotice {
		slog.Error("Refusing to emit event", "kind", kind, "error", status.ErrMissingClub)
		monitoring.TrackEmit(string(kind), "invalid")
		return
	}

	transport := b.current()
	if transport == nil {
		slog.Warn("Dropping event", "kind", kind, "club_id", payload.Club(), "error", status.ErrTransportUnavailable)
		monitoring.TrackEmit(string(kind), "dropped")
		return
	}

	groups := Groups(payload)
	b.deliver(ctx, transport, kind, groups, payload)

	if !b.legacyFrames {
		return
	}
	if legacy, ok := kind.Legacy(); ok {
		b.deliver(ctx, transport, legacy, groups, payload)
	}
}

func (b *EventBus) deliver(ctx context.Context, transport Transport, kind models.Kind, groups []string, payload models.Payload) {
	frame, err := models.NewFrame(kind, payload, b.now())
	if err != nil {
		slog.Error("Failed to encode event", "kind", kind, "error", err)
		monitoring.TrackEmit(string(kind), "invalid")
		return
	}
	if err := transport.Deliver(ctx, groups, frame); err != nil {
		slog.Error("Failed to deliver event", "kind", kind, "groups", groups, "error", err)
		monitoring.TrackEmit(string(kind), "failed")
		return
	}
	monitoring.TrackEmit(string(kind), "delivered")
}

func (b *EventBus) BookingCreated(ctx context.Context, booking models.BookingSnapshot) {
	b.Emit(ctx, models.KindBookingCreated, models.BookingPayload{Booking: booking, ClubID: booking.ClubID})
}

func (b *EventBus) BookingUpdated(ctx context.Context, booking models.BookingSnapshot, previousStatus string) {
	b.Emit(ctx, models.KindBookingUpdated, models.BookingPayload{
		Booking:        booking,
		ClubID:         booking.ClubID,
		PreviousStatus: previousStatus,
	})
}

func (b *EventBus) BookingCancelled(ctx context.Context, bookingID, clubID string) {
	b.Emit(ctx, models.KindBookingCancelled, models.BookingRemovedPayload{BookingID: bookingID, ClubID: clubID})
}

func (b *EventBus) SlotLocked(ctx context.Context, lock models.SlotLockPayload) {
	b.Emit(ctx, models.KindSlotLocked, lock)
}

func (b *EventBus) SlotUnlocked(ctx context.Context, slotID, clubID string) {
	b.Emit(ctx, models.KindSlotUnlocked, models.SlotReleasePayload{SlotID: slotID, ClubID: clubID})
}

func (b *EventBus) SlotExpired(ctx context.Context, slotID, clubID string) {
	b.Emit(ctx, models.KindSlotExpired, models.SlotReleasePayload{SlotID: slotID, ClubID: clubID})
}

func (b *EventBus) PaymentSucceeded(ctx context.Context, outcome models.PaymentOutcome) {
	b.Emit(ctx, models.KindPaymentSucceeded, outcome)
}

func (b *EventBus) PaymentFailed(ctx context.Context, outcome models.PaymentOutcome) {
	b.Emit(ctx, models.KindPaymentFailed, outcome)
}

func (b *EventBus) Notice(ctx context.Context, notice models.Notice) {
	b.Emit(ctx, models.KindNotice, notice)
}
