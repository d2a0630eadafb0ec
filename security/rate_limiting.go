package security

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// HandshakeGuard throttles realtime handshakes per client IP.
type HandshakeGuard struct {
	redis     *redis.Client
	perMinute int64
}

func NewHandshakeGuard(redisClient *redis.Client, perMinute int) *HandshakeGuard {
	return &HandshakeGuard{redis: redisClient, perMinute: int64(perMinute)}
}

// Allow reports whether ip may open another socket this minute. Redis errors
// fail open.
func (g *HandshakeGuard) Allow(ctx context.Context, ip string) bool {
	if g == nil || g.redis == nil || g.perMinute <= 0 {
		return true
	}

	key := fmt.Sprintf("handshake:%s", ip)

	count, err := g.redis.Incr(ctx, key).Result()
	if err != nil {
		slog.Warn("Handshake throttle unavailable", "error", err)
		return true
	}
	if count == 1 {
		g.redis.Expire(ctx, key, time.Minute)
	}
	return count <= g.perMinute
}

// IsSuspiciousUserAgent flags obvious crawlers.
func IsSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
