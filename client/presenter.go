package client

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"court-realtime/models"
)

const DefaultToastDedupWindow = 3 * time.Second

// Toast is one ephemeral user-facing alert.
type Toast struct {
	Kind     models.Kind `json:"kind"`
	Icon     string      `json:"icon"`
	Message  string      `json:"message"`
	EntityID string      `json:"entityId"`
	ClubID   string      `json:"clubId,omitempty"`
}

type ToastSink interface {
	Show(Toast)
}

type ToastSinkFunc func(Toast)

func (f ToastSinkFunc) Show(t Toast) { f(t) }

// template renders a frame's data. It returns the entity identity used for
// duplicate suppression.
type template struct {
	icon   string
	render func(data json.RawMessage) (entity, club, message string, err error)
}

var templates = map[models.Kind]template{
	models.KindBookingCreated: {icon: "calendar-plus", render: renderBooking("New booking")},
	models.KindBookingUpdated: {icon: "calendar-check", render: renderBooking("Booking updated")},
	models.KindBookingCancelled: {icon: "calendar-x", render: func(data json.RawMessage) (string, string, string, error) {
		var p models.BookingRemovedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return "", "", "", err
		}
		return p.BookingID, p.ClubID, fmt.Sprintf("Booking %s was cancelled", p.BookingID), p.Validate()
	}},
	models.KindSlotLocked: {icon: "lock", render: func(data json.RawMessage) (string, string, string, error) {
		var p models.SlotLockPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return "", "", "", err
		}
		msg := "A slot is being booked"
		if !p.StartTime.IsZero() {
			msg = fmt.Sprintf("Slot at %s is being booked", p.StartTime.Format("15:04"))
		}
		return p.SlotID, p.ClubID, msg, p.Validate()
	}},
	models.KindSlotUnlocked: {icon: "unlock", render: renderSlotRelease("Slot is available again")},
	models.KindSlotExpired:  {icon: "clock", render: renderSlotRelease("Slot hold expired")},
	models.KindPaymentSucceeded: {icon: "check-circle", render: renderPayment(func(p models.PaymentOutcome) string {
		return fmt.Sprintf("Payment received: %s %s", p.Amount.StringFixed(2), p.Currency)
	})},
	models.KindPaymentFailed: {icon: "alert-circle", render: renderPayment(func(p models.PaymentOutcome) string {
		if p.Detail != "" {
			return "Payment failed: " + p.Detail
		}
		return "Payment failed"
	})},
	models.KindNotice: {icon: "info", render: func(data json.RawMessage) (string, string, string, error) {
		var n models.Notice
		if err := json.Unmarshal(data, &n); err != nil {
			return "", "", "", err
		}
		msg := n.Message
		if n.Title != "" && n.Message != "" {
			msg = n.Title + ": " + n.Message
		} else if n.Title != "" {
			msg = n.Title
		}
		return n.ID, n.ClubID, msg, n.Validate()
	}},
}

func renderBooking(prefix string) func(json.RawMessage) (string, string, string, error) {
	return func(data json.RawMessage) (string, string, string, error) {
		var p models.BookingPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return "", "", "", err
		}
		msg := prefix
		if !p.Booking.Start.IsZero() {
			msg = fmt.Sprintf("%s at %s", prefix, p.Booking.Start.Format("Jan 2 15:04"))
		}
		return p.Booking.ID, p.Club(), msg, p.Validate()
	}
}

func renderSlotRelease(message string) func(json.RawMessage) (string, string, string, error) {
	return func(data json.RawMessage) (string, string, string, error) {
		var p models.SlotReleasePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return "", "", "", err
		}
		return p.SlotID, p.ClubID, message, p.Validate()
	}
}

func renderPayment(message func(models.PaymentOutcome) string) func(json.RawMessage) (string, string, string, error) {
	return func(data json.RawMessage) (string, string, string, error) {
		var p models.PaymentOutcome
		if err := json.Unmarshal(data, &p); err != nil {
			return "", "", "", err
		}
		return p.PaymentID, p.ClubID, message(p), p.Validate()
	}
}

// Presenter raises toasts independently of the store, with its own
// duplicate suppression keyed by kind and entity.
type Presenter struct {
	sink   ToastSink
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewPresenter(sink ToastSink, window time.Duration) *Presenter {
	if window <= 0 {
		window = DefaultToastDedupWindow
	}
	return &Presenter{
		sink:   sink,
		window: window,
		now:    time.Now,
		seen:   make(map[string]time.Time),
	}
}

// Present shows a toast for frame unless its kind has no template, it does
// not render, or the same kind and entity were shown within the window.
func (p *Presenter) Present(frame models.Frame) bool {
	kind := frame.Event.Canonical()
	tmpl, ok := templates[kind]
	if !ok || len(frame.Data) == 0 {
		return false
	}

	entity, club, message, err := tmpl.render(frame.Data)
	if err != nil {
		return false
	}

	key := string(kind) + "|" + entity
	now := p.now()

	p.mu.Lock()
	for k, at := range p.seen {
		if now.Sub(at) >= p.window {
			delete(p.seen, k)
		}
	}
	if _, dup := p.seen[key]; dup {
		p.mu.Unlock()
		return false
	}
	p.seen[key] = now
	p.mu.Unlock()

	p.sink.Show(Toast{
		Kind:     kind,
		Icon:     tmpl.icon,
		Message:  message,
		EntityID: entity,
		ClubID:   club,
	})
	return true
}
