package handlers

import (
	"context"

	"court-realtime/models"

	"github.com/pocketbase/pocketbase/core"
)

// BookingEvents is the slice of the event bus the booking hooks need.
type BookingEvents interface {
	BookingCreated(ctx context.Context, booking models.BookingSnapshot)
	BookingUpdated(ctx context.Context, booking models.BookingSnapshot, previousStatus string)
	BookingCancelled(ctx context.Context, bookingID, clubID string)
}

// RegisterBookingHooks emits booking events after successful writes to the
// bookings collection. Emission never fails the write.
func RegisterBookingHooks(app core.App, events BookingEvents) {
	app.OnRecordAfterCreateSuccess("bookings").BindFunc(func(e *core.RecordEvent) error {
		events.BookingCreated(e.Context, SnapshotFromRecord(e.Record))
		return e.Next()
	})

	app.OnRecordAfterUpdateSuccess("bookings").BindFunc(func(e *core.RecordEvent) error {
		previous := e.Record.Original().GetString("status")
		emitBookingUpdate(e.Context, events, SnapshotFromRecord(e.Record), previous)
		return e.Next()
	})

	app.OnRecordAfterDeleteSuccess("bookings").BindFunc(func(e *core.RecordEvent) error {
		events.BookingCancelled(e.Context, e.Record.Id, e.Record.GetString("club"))
		return e.Next()
	})
}

// emitBookingUpdate turns a transition into cancelled into a removal. Edits to
// an already cancelled booking are not announced.
func emitBookingUpdate(ctx context.Context, events BookingEvents, booking models.BookingSnapshot, previousStatus string) {
	if booking.Status == models.BookingStatusCancelled {
		if previousStatus != models.BookingStatusCancelled {
			events.BookingCancelled(ctx, booking.ID, booking.ClubID)
		}
		return
	}
	events.BookingUpdated(ctx, booking, previousStatus)
}

func SnapshotFromRecord(record *core.Record) models.BookingSnapshot {
	return models.BookingSnapshot{
		ID:        record.Id,
		ClubID:    record.GetString("club"),
		CourtID:   record.GetString("court"),
		UserID:    record.GetString("user"),
		Start:     record.GetDateTime("start").Time(),
		End:       record.GetDateTime("end").Time(),
		Status:    record.GetString("status"),
		UpdatedAt: record.GetDateTime("updated").Time(),
	}
}
