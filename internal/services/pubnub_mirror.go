package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"court-realtime/utils"

	pubnub "github.com/pubnub/go"
)

// channelPublisher is the slice of the PubNub client the mirror needs.
type channelPublisher interface {
	Publish(channel string, message any) error
}

type pubnubPublisher struct {
	pn *pubnub.PubNub
}

func (p pubnubPublisher) Publish(channel string, message any) error {
	_, _, err := p.pn.Publish().
		Channel(channel).
		Message(message).
		Execute()
	return err
}

// MirrorChannel maps a group key to its PubNub channel name.
func MirrorChannel(group string) string {
	return "realtime-" + strings.ReplaceAll(group, ":", "-")
}

// PubNubMirror delivers through the primary transport and copies every frame
// to PubNub for mobile clients. Mirror failures never affect the primary path.
type PubNubMirror struct {
	primary   Transport
	publisher channelPublisher
	breaker   *utils.CircuitBreaker
}

func NewPubNubMirror(primary Transport, pn *pubnub.PubNub) *PubNubMirror {
	return &PubNubMirror{
		primary:   primary,
		publisher: pubnubPublisher{pn: pn},
		breaker:   utils.NewCircuitBreaker("pubnub-mirror"),
	}
}

func (m *PubNubMirror) Deliver(ctx context.Context, groups []string, frame []byte) error {
	err := m.primary.Deliver(ctx, groups, frame)

	go m.mirror(groups, frame)

	return err
}

func (m *PubNubMirror) mirror(groups []string, frame []byte) {
	message := json.RawMessage(frame)
	for _, group := range groups {
		channel := MirrorChannel(group)
		_, err := m.breaker.Execute(context.Background(), func() (interface{}, error) {
			return nil, m.publisher.Publish(channel, message)
		})
		if err != nil {
			slog.Warn("Failed to mirror frame to PubNub", "channel", channel, "error", err)
		}
	}
}
