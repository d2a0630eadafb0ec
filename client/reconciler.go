package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"court-realtime/internal/status"
	"court-realtime/models"
	"court-realtime/monitoring"
)

// Outcome is what applying one frame did to the store.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeStale     Outcome = "stale"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeMalformed Outcome = "malformed"
)

const (
	DefaultDebounceWindow = 250 * time.Millisecond
	DefaultSweepInterval  = 30 * time.Second
)

type ReconcilerConfig struct {
	DebounceWindow time.Duration
	SweepInterval  time.Duration
}

// Reconciler is the only writer of a Store. It turns possibly duplicated,
// possibly reordered frames into monotonic store mutations.
type Reconciler struct {
	store    *Store
	debounce *debouncer
	sweep    time.Duration
}

func NewReconciler(store *Store, cfg ReconcilerConfig) *Reconciler {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return &Reconciler{
		store:    store,
		debounce: newDebouncer(cfg.DebounceWindow, store.notify),
		sweep:    cfg.SweepInterval,
	}
}

func (r *Reconciler) Store() *Store {
	return r.store
}

// Apply decodes and applies one raw frame. Bad input is logged and dropped.
func (r *Reconciler) Apply(raw []byte) Outcome {
	if len(raw) == 0 {
		return r.malformed("", fmt.Errorf("%w: empty frame", status.ErrMalformedEvent))
	}

	var frame models.Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return r.malformed("", fmt.Errorf("%w: %v", status.ErrMalformedEvent, err))
	}
	return r.ApplyFrame(frame)
}

func (r *Reconciler) ApplyFrame(frame models.Frame) Outcome {
	kind := frame.Event.Canonical()

	var (
		outcome Outcome
		err     error
	)
	switch kind {
	case models.KindBookingCreated, models.KindBookingUpdated:
		outcome, err = r.upsertBooking(frame.Data)
	case models.KindBookingCancelled:
		outcome, err = r.removeBooking(frame.Data)
	case models.KindSlotLocked:
		outcome, err = r.addLock(frame.Data, frame.SentAt)
	case models.KindSlotUnlocked, models.KindSlotExpired:
		outcome, err = r.removeLock(frame.Data)
	case models.KindPaymentSucceeded, models.KindPaymentFailed:
		outcome, err = checkOnly(frame.Data, &models.PaymentOutcome{})
	case models.KindNotice:
		outcome, err = checkOnly(frame.Data, &models.Notice{})
	default:
		err = fmt.Errorf("%w: unknown kind %q", status.ErrMalformedEvent, frame.Event)
	}
	if err != nil {
		return r.malformed(kind, err)
	}

	monitoring.TrackReconcile(string(kind), string(outcome))
	return outcome
}

// Seed writes an initial bulk fetch through the same newer-wins contract.
func (r *Reconciler) Seed(bookings []models.BookingSnapshot) int {
	var changed []string
	for _, b := range bookings {
		if b.ID == "" || b.UpdatedAt.IsZero() {
			continue
		}
		if r.store.UpsertIfNewer(b) {
			changed = append(changed, BookingKey(b.ID))
		}
	}
	r.debounce.mark(changed...)
	return len(changed)
}

// Run sweeps expired locks until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.sweep)
	defer ticker.Stop()
	defer r.debounce.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Reconciler) Sweep() []string {
	swept := r.store.SweepLocks()
	if len(swept) == 0 {
		return nil
	}
	keys := make([]string, len(swept))
	for i, id := range swept {
		keys[i] = SlotKey(id)
	}
	r.debounce.mark(keys...)
	return swept
}

func (r *Reconciler) upsertBooking(data json.RawMessage) (Outcome, error) {
	var p models.BookingPayload
	if err := decode(data, &p); err != nil {
		return "", err
	}
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", status.ErrMalformedEvent, err)
	}

	booking := p.Booking
	if booking.ClubID == "" {
		booking.ClubID = p.Club()
	}
	if !r.store.UpsertIfNewer(booking) {
		slog.Debug("Discarding stale booking update", "booking_id", booking.ID, "updated_at", booking.UpdatedAt)
		return OutcomeStale, nil
	}
	r.debounce.mark(BookingKey(booking.ID))
	return OutcomeApplied, nil
}

func (r *Reconciler) removeBooking(data json.RawMessage) (Outcome, error) {
	var p models.BookingRemovedPayload
	if err := decode(data, &p); err != nil {
		return "", err
	}
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", status.ErrMalformedEvent, err)
	}

	if !r.store.Remove(p.BookingID) {
		return OutcomeIgnored, nil
	}
	r.debounce.mark(BookingKey(p.BookingID))
	return OutcomeApplied, nil
}

// addLock starts the lock's TTL at sentAt, the server's creation time. A zero
// sentAt falls back to the local clock.
func (r *Reconciler) addLock(data json.RawMessage, sentAt time.Time) (Outcome, error) {
	var p models.SlotLockPayload
	if err := decode(data, &p); err != nil {
		return "", err
	}
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", status.ErrMalformedEvent, err)
	}

	added := r.store.AddLock(Lock{
		SlotID:     p.SlotID,
		ClubID:     p.ClubID,
		CourtID:    p.CourtID,
		UserID:     p.UserID,
		StartTime:  p.StartTime,
		EndTime:    p.EndTime,
		ObservedAt: sentAt,
	})
	if !added {
		return OutcomeIgnored, nil
	}
	r.debounce.mark(SlotKey(p.SlotID))
	return OutcomeApplied, nil
}

func (r *Reconciler) removeLock(data json.RawMessage) (Outcome, error) {
	var p models.SlotReleasePayload
	if err := decode(data, &p); err != nil {
		return "", err
	}
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", status.ErrMalformedEvent, err)
	}

	if !r.store.RemoveLock(p.SlotID) {
		return OutcomeIgnored, nil
	}
	r.debounce.mark(SlotKey(p.SlotID))
	return OutcomeApplied, nil
}

type validator interface {
	Validate() error
}

// checkOnly validates a payload that carries no store state. The presenter
// shows these.
func checkOnly(data json.RawMessage, v validator) (Outcome, error) {
	if err := decode(data, v); err != nil {
		return "", err
	}
	if err := v.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", status.ErrMalformedEvent, err)
	}
	return OutcomeIgnored, nil
}

func (r *Reconciler) malformed(kind models.Kind, err error) Outcome {
	slog.Warn("Discarding malformed frame", "kind", kind, "error", err)
	monitoring.TrackReconcile(string(kind), string(OutcomeMalformed))
	return OutcomeMalformed
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", status.ErrMalformedEvent)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", status.ErrMalformedEvent, err)
	}
	return nil
}
