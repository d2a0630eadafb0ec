package monitoring

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	activeConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connections_total",
			Help: "Current number of registered realtime connections",
		},
	)

	groupMembers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realtime_group_members_total",
			Help: "Current number of connections per group",
		},
		[]string{"group"},
	)

	eventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_emitted_total",
			Help: "Events passed to the event bus by outcome",
		},
		[]string{"kind", "outcome"},
	)

	framesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_frames_dropped_total",
			Help: "Frames not handed to a connection",
		},
		[]string{"reason"},
	)

	joinRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_join_requests_total",
			Help: "Group join requests by result",
		},
		[]string{"result"},
	)

	reconcilerEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_reconciler_events_total",
			Help: "Frames seen by the client reconciler by result",
		},
		[]string{"kind", "result"},
	)

	activeSlotLocks = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slot_locks_active_total",
			Help: "Current number of slot locks per club",
		},
		[]string{"club_id"},
	)

	slotLockDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slot_lock_duration_seconds",
			Help:    "How long slot locks were held before release or expiry",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"club_id", "outcome"},
	)
)

func ConnectionOpened() { activeConnections.Inc() }

func ConnectionClosed() { activeConnections.Dec() }

func TrackEmit(kind, outcome string) {
	eventsEmitted.WithLabelValues(kind, outcome).Inc()
}

func TrackFrameDropped(reason string) {
	framesDropped.WithLabelValues(reason).Inc()
}

func TrackJoin(result string) {
	joinRequests.WithLabelValues(result).Inc()
}

func TrackReconcile(kind, result string) {
	reconcilerEvents.WithLabelValues(kind, result).Inc()
}

func TrackSlotLock(clubID, outcome string, held time.Duration) {
	slotLockDuration.WithLabelValues(clubID, outcome).Observe(held.Seconds())
}

// GroupStatsFunc returns member counts keyed by group.
type GroupStatsFunc func() map[string]int

// Monitor periodically samples registry and redis state into gauges.
type Monitor struct {
	redis      *redis.Client
	groupStats GroupStatsFunc
	interval   time.Duration
}

func NewMonitor(redisClient *redis.Client, groupStats GroupStatsFunc) *Monitor {
	return &Monitor{
		redis:      redisClient,
		groupStats: groupStats,
		interval:   30 * time.Second,
	}
}

func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collectGroupMetrics()
			m.collectSlotLockMetrics(ctx)
		}
	}
}

func (m *Monitor) collectGroupMetrics() {
	if m.groupStats == nil {
		return
	}
	groupMembers.Reset()
	for group, count := range m.groupStats() {
		groupMembers.WithLabelValues(group).Set(float64(count))
	}
}

func (m *Monitor) collectSlotLockMetrics(ctx context.Context) {
	if m.redis == nil {
		return
	}
	keys, err := m.redis.Keys(ctx, "slot:locks:*").Result()
	if err != nil {
		slog.Error("Failed to list slot lock indexes", "error", err)
		return
	}
	for _, key := range keys {
		clubID := strings.TrimPrefix(key, "slot:locks:")
		count, err := m.redis.ZCard(ctx, key).Result()
		if err != nil {
			continue
		}
		activeSlotLocks.WithLabelValues(clubID).Set(float64(count))
	}
}
