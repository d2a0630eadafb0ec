package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"court-realtime/internal/status"
	"court-realtime/models"

	pubnub "github.com/pubnub/go"
)

// PaymentService turns bank gateway notifications into payment events. The
// gateway posts to a PubNub channel; simulated outcomes arrive over HTTP.
type PaymentService struct {
	PubNub  *pubnub.PubNub
	emitter Emitter
	channel string
}

func NewPaymentService(pn *pubnub.PubNub, emitter Emitter, channel string) *PaymentService {
	return &PaymentService{
		PubNub:  pn,
		emitter: emitter,
		channel: channel,
	}
}

// SubscribeToPaymentNotifications blocks until ctx is done.
func (s *PaymentService) SubscribeToPaymentNotifications(ctx context.Context) {
	listener := pubnub.NewListener()

	s.PubNub.AddListener(listener)
	s.PubNub.Subscribe().
		Channels([]string{s.channel}).
		Execute()
	defer s.PubNub.Unsubscribe().Channels([]string{s.channel}).Execute()

	slog.Info("Subscribed to payment notifications", "channel", s.channel)

	for {
		select {
		case <-ctx.Done():
			return
		case message := <-listener.Message:
			if message == nil {
				continue
			}
			s.handlePaymentNotification(ctx, message.Message)
		}
	}
}

func (s *PaymentService) handlePaymentNotification(ctx context.Context, message any) {
	var notification models.PaymentNotification

	jsonData, err := json.Marshal(message)
	if err != nil {
		slog.Warn("Discarding payment notification", "error", err)
		return
	}
	if err := json.Unmarshal(jsonData, &notification); err != nil {
		slog.Warn("Discarding payment notification", "error", status.ErrMalformedEvent, "cause", err)
		return
	}

	outcome := models.PaymentOutcome{
		PaymentID: notification.PaymentID,
		ClubID:    notification.ClubID,
		BookingID: notification.BookingID,
		Amount:    notification.Amount,
		Currency:  notification.Currency,
		Detail:    notification.Reason,
	}

	switch notification.Status {
	case "success", models.PaymentStatusSucceeded:
		if outcome.Detail == "" {
			outcome.Detail = notification.TransactionID
		}
		s.Publish(ctx, true, outcome)
	case "failed", "error":
		s.Publish(ctx, false, outcome)
	default:
		slog.Debug("Ignoring payment notification", "payment_id", notification.PaymentID, "status", notification.Status)
	}
}

// Publish emits the outcome of a payment.
func (s *PaymentService) Publish(ctx context.Context, succeeded bool, outcome models.PaymentOutcome) {
	kind := models.KindPaymentFailed
	if succeeded {
		kind = models.KindPaymentSucceeded
	}
	slog.Info("Payment outcome", "payment_id", outcome.PaymentID, "club_id", outcome.ClubID, "kind", kind)
	s.emitter.Emit(ctx, kind, outcome)
}

// Simulate posts a notification the way the bank gateway would. Without
// PubNub it is handled in-process.
func (s *PaymentService) Simulate(ctx context.Context, notification models.PaymentNotification) error {
	if s.PubNub == nil {
		s.handlePaymentNotification(ctx, notification)
		return nil
	}
	_, _, err := s.PubNub.Publish().
		Channel(s.channel).
		Message(notification).
		Execute()
	return err
}
