package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type relayEnvelope struct {
	Groups []string        `json:"groups"`
	Frame  json.RawMessage `json:"frame"`
}

// RedisTransport fans frames out to every server instance through a Redis
// channel. Each instance runs a Relay that hands them to its local registry.
type RedisTransport struct {
	Redis   *redis.Client
	channel string
}

func NewRedisTransport(redisClient *redis.Client, channel string) *RedisTransport {
	return &RedisTransport{Redis: redisClient, channel: channel}
}

func (t *RedisTransport) Deliver(ctx context.Context, groups []string, frame []byte) error {
	data, err := json.Marshal(relayEnvelope{Groups: groups, Frame: frame})
	if err != nil {
		return err
	}
	return t.Redis.Publish(ctx, t.channel, string(data)).Err()
}

type Relay struct {
	Redis   *redis.Client
	channel string
	local   Transport
}

func NewRelay(redisClient *redis.Client, channel string, local Transport) *Relay {
	return &Relay{Redis: redisClient, channel: channel, local: local}
}

// Run consumes the relay channel until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	sub := r.Redis.Subscribe(ctx, r.channel)
	defer sub.Close()

	slog.Info("Realtime relay subscribed", "channel", r.channel)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			r.handleMessage(ctx, msg.Payload)
		}
	}
}

func (r *Relay) handleMessage(ctx context.Context, payload string) {
	var envelope relayEnvelope
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		slog.Warn("Discarding malformed relay message", "error", err)
		return
	}
	if len(envelope.Groups) == 0 || len(envelope.Frame) == 0 {
		return
	}
	if err := r.local.Deliver(ctx, envelope.Groups, envelope.Frame); err != nil {
		slog.Error("Failed to deliver relayed frame", "error", err, "groups", envelope.Groups)
	}
}
