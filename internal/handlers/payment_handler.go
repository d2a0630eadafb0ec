package handlers

import (
	"log/slog"
	"net/http"

	"court-realtime/internal/services"
	"court-realtime/models"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
	enabled        bool
	identify       func(e *core.RequestEvent) (models.Identity, error)
}

// NewPaymentHandler serves simulated payment outcomes. Outside development
// the endpoint answers 404.
func NewPaymentHandler(paymentService *services.PaymentService, enabled bool) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		enabled:        enabled,
		identify:       identityFromEvent,
	}
}

type paymentOutcomeRequest struct {
	ClubID    string          `json:"clubId"`
	BookingID string          `json:"bookingId"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Detail    string          `json:"detail"`
}

// SimulatePayment - Simulate a bank notification (for testing)
func (h *PaymentHandler) SimulatePayment(e *core.RequestEvent) error {
	if !h.enabled {
		return apis.NewNotFoundError("Not found", nil)
	}
	identity, err := h.identify(e)
	if err != nil {
		return err
	}

	var req paymentOutcomeRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Status != models.PaymentStatusSucceeded && req.Status != models.PaymentStatusFailed {
		return apis.NewBadRequestError("Status must be succeeded or failed", nil)
	}
	if identity.Role == models.RolePlayer || !identity.CanAccessClub(req.ClubID) {
		return apis.NewForbiddenError("Access denied", nil)
	}

	paymentID := e.Request.PathValue("paymentId")
	notification := models.PaymentNotification{
		PaymentID: paymentID,
		ClubID:    req.ClubID,
		BookingID: req.BookingID,
		Status:    req.Status,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Reason:    req.Detail,
	}
	if err := h.paymentService.Simulate(e.Request.Context(), notification); err != nil {
		slog.Error("h.paymentService.Simulate()", "payment_id", paymentID, "error", err)
		return apis.NewInternalServerError("internal error", err)
	}

	return e.JSON(http.StatusOK, map[string]any{"message": "Payment simulation sent"})
}
