package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

// PaymentOutcome is carried by payment:succeeded and payment:failed.
type PaymentOutcome struct {
	PaymentID string          `json:"paymentId"`
	ClubID    string          `json:"clubId"`
	BookingID string          `json:"bookingId,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency,omitempty"`
	Detail    string          `json:"detail,omitempty"`
}

func (p PaymentOutcome) Club() string { return p.ClubID }

func (p PaymentOutcome) Validate() error {
	if p.PaymentID == "" {
		return errors.New("payment id is required")
	}
	if p.ClubID == "" {
		return errors.New("club id is required")
	}
	return nil
}

// PaymentNotification is what the bank gateway posts to the notification channel.
type PaymentNotification struct {
	PaymentID     string          `json:"payment_id"`
	ClubID        string          `json:"club_id"`
	BookingID     string          `json:"booking_id"`
	Status        string          `json:"status"` // success, failed
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Reason        string          `json:"reason"`
}
