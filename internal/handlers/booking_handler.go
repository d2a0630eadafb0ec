package handlers

import (
	"log/slog"
	"net/http"

	"court-realtime/internal/realtime"
	"court-realtime/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

const bookingSnapshotLimit = 500

type BookingHandler struct {
	app      core.App
	resolver *realtime.Resolver
	identify func(e *core.RequestEvent) (models.Identity, error)
}

func NewBookingHandler(app core.App, resolver *realtime.Resolver) *BookingHandler {
	return &BookingHandler{
		app:      app,
		resolver: resolver,
		identify: identityFromEvent,
	}
}

type bookingRow struct {
	ID      string         `db:"id"`
	Club    string         `db:"club"`
	Court   string         `db:"court"`
	User    string         `db:"user"`
	Start   types.DateTime `db:"start"`
	End     types.DateTime `db:"end"`
	Status  string         `db:"status"`
	Updated types.DateTime `db:"updated"`
}

func (r bookingRow) snapshot() models.BookingSnapshot {
	return models.BookingSnapshot{
		ID:        r.ID,
		ClubID:    r.Club,
		CourtID:   r.Court,
		UserID:    r.User,
		Start:     r.Start.Time(),
		End:       r.End.Time(),
		Status:    r.Status,
		UpdatedAt: r.Updated.Time(),
	}
}

// ListClubBookings returns the non-cancelled bookings of a club. Clients seed
// their local store from it before applying live events.
func (h *BookingHandler) ListClubBookings(e *core.RequestEvent) error {
	identity, err := h.identify(e)
	if err != nil {
		return err
	}

	clubID := e.Request.PathValue("clubId")
	if clubID == "" {
		return apis.NewBadRequestError("Club ID is required", nil)
	}
	if !h.resolver.Authorize(identity, models.ClubGroup(clubID)) {
		return apis.NewForbiddenError("Access denied", nil)
	}

	rows := []bookingRow{}
	err = h.app.DB().
		Select("id", "club", "court", "user", "start", "end", "status", "updated").
		From("bookings").
		Where(dbx.HashExp{"club": clubID}).
		AndWhere(dbx.Not(dbx.HashExp{"status": models.BookingStatusCancelled})).
		OrderBy("start ASC", "id ASC").
		Limit(bookingSnapshotLimit).
		All(&rows)
	if err != nil {
		slog.Error("Failed to load club bookings", "club_id", clubID, "error", err)
		return apis.NewBadRequestError("Failed to fetch bookings", err)
	}

	bookings := make([]models.BookingSnapshot, len(rows))
	for i, row := range rows {
		bookings[i] = row.snapshot()
	}

	return e.JSON(http.StatusOK, map[string]any{
		"clubId":   clubID,
		"bookings": bookings,
	})
}
