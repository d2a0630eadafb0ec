package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"court-realtime/internal/realtime"
	"court-realtime/internal/services"
	"court-realtime/internal/status"
	"court-realtime/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type SlotHandler struct {
	slotService *services.SlotService
	resolver    *realtime.Resolver
	identify    func(e *core.RequestEvent) (models.Identity, error)
}

func NewSlotHandler(slotService *services.SlotService, resolver *realtime.Resolver) *SlotHandler {
	return &SlotHandler{
		slotService: slotService,
		resolver:    resolver,
		identify:    identityFromEvent,
	}
}

type slotRequest struct {
	SlotID    string    `json:"slotId"`
	CourtID   string    `json:"courtId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

func (h *SlotHandler) authorize(e *core.RequestEvent) (models.Identity, string, error) {
	identity, err := h.identify(e)
	if err != nil {
		return identity, "", err
	}
	clubID := e.Request.PathValue("clubId")
	if clubID == "" {
		return identity, "", apis.NewBadRequestError("Club ID is required", nil)
	}
	if !h.resolver.Authorize(identity, models.ClubGroup(clubID)) {
		return identity, "", apis.NewForbiddenError("Access denied", nil)
	}
	return identity, clubID, nil
}

// LockSlot holds a slot for the caller while they complete a booking.
func (h *SlotHandler) LockSlot(e *core.RequestEvent) error {
	identity, clubID, err := h.authorize(e)
	if err != nil {
		return err
	}

	var req slotRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.SlotID == "" {
		return apis.NewBadRequestError("Slot ID is required", nil)
	}

	err = h.slotService.LockSlot(e.Request.Context(), models.SlotLockPayload{
		SlotID:    req.SlotID,
		ClubID:    clubID,
		CourtID:   req.CourtID,
		UserID:    identity.UserID,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	switch {
	case errors.Is(err, status.ErrSlotUnavailable):
		return apis.NewApiError(http.StatusConflict, "Slot is already held", nil)
	case err != nil:
		slog.Error("Failed to lock slot", "club_id", clubID, "slot_id", req.SlotID, "error", err)
		return apis.NewInternalServerError("Failed to lock slot", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message": "Slot locked successfully",
		"slotId":  req.SlotID,
	})
}

// UnlockSlot releases a slot the caller holds.
func (h *SlotHandler) UnlockSlot(e *core.RequestEvent) error {
	identity, clubID, err := h.authorize(e)
	if err != nil {
		return err
	}

	slotID := e.Request.PathValue("slotId")
	if slotID == "" {
		return apis.NewBadRequestError("Slot ID is required", nil)
	}

	// Admins may release holds placed by players.
	owner := identity.UserID
	if identity.Role != models.RolePlayer {
		owner = ""
	}

	err = h.slotService.UnlockSlot(e.Request.Context(), clubID, slotID, owner)
	switch {
	case errors.Is(err, status.ErrSlotNotOwned):
		return apis.NewForbiddenError("Slot is held by another user", nil)
	case err != nil:
		slog.Error("Failed to unlock slot", "club_id", clubID, "slot_id", slotID, "error", err)
		return apis.NewInternalServerError("Failed to unlock slot", err)
	}

	return e.JSON(http.StatusOK, map[string]any{
		"message": "Slot unlocked",
		"slotId":  slotID,
	})
}
