package handlers

import (
	"log/slog"
	"net/http"

	"court-realtime/internal/realtime"
	"court-realtime/internal/services"
	"court-realtime/models"
	"court-realtime/utils"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type AdminHandler struct {
	registry *realtime.Registry
	bus      *services.EventBus
	identify func(e *core.RequestEvent) (models.Identity, error)
}

func NewAdminHandler(registry *realtime.Registry, bus *services.EventBus) *AdminHandler {
	return &AdminHandler{
		registry: registry,
		bus:      bus,
		identify: identityFromEvent,
	}
}

func (h *AdminHandler) requireRootAdmin(e *core.RequestEvent) (models.Identity, error) {
	identity, err := h.identify(e)
	if err != nil {
		return identity, err
	}
	if !identity.Elevated() {
		return identity, apis.NewForbiddenError("Admin access required", nil)
	}
	return identity, nil
}

// GetRealtimeStats - Connection and group counts for this instance
func (h *AdminHandler) GetRealtimeStats(e *core.RequestEvent) error {
	if _, err := h.requireRootAdmin(e); err != nil {
		return err
	}

	stats := h.registry.Stats()
	return e.JSON(http.StatusOK, map[string]any{
		"connections": stats.Connections,
		"groups":      stats.Groups,
		"bus_ready":   h.bus.Ready(),
	})
}

type noticeRequest struct {
	ClubID  string         `json:"clubId"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// PostNotice - Broadcast a notice to one club or to every club
func (h *AdminHandler) PostNotice(e *core.RequestEvent) error {
	identity, err := h.requireRootAdmin(e)
	if err != nil {
		return err
	}

	var req noticeRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Title == "" && req.Message == "" {
		return apis.NewBadRequestError("Title or message is required", nil)
	}

	id, err := utils.NoticeID()
	if err != nil {
		return apis.NewInternalServerError("internal error", err)
	}
	notice := models.Notice{
		ID:      id,
		ClubID:  req.ClubID,
		Title:   req.Title,
		Message: req.Message,
		Data:    req.Data,
	}

	slog.Info("Posting notice", "notice_id", id, "club_id", req.ClubID, "by", identity.UserID)
	h.bus.Notice(e.Request.Context(), notice)

	return e.JSON(http.StatusOK, map[string]any{
		"id":     id,
		"groups": services.Groups(notice),
	})
}
