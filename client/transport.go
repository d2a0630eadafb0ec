package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"time"

	"court-realtime/internal/status"
	"court-realtime/models"

	"github.com/gorilla/websocket"
)

// Status is the connection state shown to the user.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusConnecting  Status = "connecting"
	StatusLive        Status = "live"
	StatusUnavailable Status = "unavailable"
	StatusClosed      Status = "closed"
)

const (
	DefaultBackoffBase = 500 * time.Millisecond
	DefaultBackoffMax  = 30 * time.Second
)

// Backoff returns the un-jittered delay before reconnect attempt n (from 0).
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if max <= 0 {
		max = DefaultBackoffMax
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	return d
}

// jitter spreads d over [d/2, d).
func jitter(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + rand.N(half)
}

type FrameHandler func(models.Frame)

type ManagerConfig struct {
	// URL of the realtime endpoint, e.g. ws://host/api/v1/realtime.
	URL         string
	Token       string
	Dialer      *websocket.Dialer
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Manager owns the single realtime socket of a client process. It reconnects
// on its own and re-requests the last scope after every reconnect.
type Manager struct {
	cfg ManagerConfig

	mu       sync.Mutex
	scope    string
	handlers []FrameHandler
	status   Status
	conn     *websocket.Conn
	joined   chan struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	running  bool
	closed   bool
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Dialer == nil {
		cfg.Dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	return &Manager{
		cfg:    cfg,
		status: StatusIdle,
		joined: make(chan struct{}),
	}
}

// Handle registers fn for every domain frame received.
func (m *Manager) Handle(fn FrameHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.handlers = append(m.handlers, fn)
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Manager) Scope() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scope
}

// Start opens the connection loop. It is a no-op while a loop is running.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running || m.closed {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(loopCtx, m.done)
}

// SetScope switches the active club. The socket is torn down and reopened
// with the new hint.
func (m *Manager) SetScope(ctx context.Context, clubID string) {
	m.mu.Lock()
	if m.scope == clubID {
		m.mu.Unlock()
		return
	}
	m.scope = clubID
	running := m.running
	m.mu.Unlock()

	if running {
		m.stop()
		m.Start(ctx)
	}
}

// WaitJoined blocks until the server acknowledges a group on the current
// connection.
func (m *Manager) WaitJoined(ctx context.Context) error {
	for {
		m.mu.Lock()
		joined := m.joined
		closed := m.closed
		st := m.status
		m.mu.Unlock()

		if closed {
			return errors.New("realtime: manager closed")
		}
		if st == StatusUnavailable {
			return status.ErrAuthentication
		}

		select {
		case <-joined:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Close drops every handler, closes the socket and stops reconnecting. It is
// safe to call more than once.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.handlers = nil
	m.mu.Unlock()

	m.stop()
	m.setStatus(StatusClosed)
}

func (m *Manager) stop() {
	m.mu.Lock()
	cancel, done, conn := m.cancel, m.done, m.conn
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
	if done != nil {
		<-done
	}
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	if m.status != StatusClosed {
		m.status = s
	}
	m.mu.Unlock()
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	attempt := 0
	for {
		m.setStatus(StatusConnecting)

		connected, err := m.connectOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, status.ErrAuthentication) {
			slog.Warn("Live updates unavailable", "error", err)
			m.setStatus(StatusUnavailable)
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
			return
		}
		if connected {
			attempt = 0
		}

		delay := jitter(Backoff(attempt, m.cfg.BackoffBase, m.cfg.BackoffMax))
		attempt++
		slog.Info("Realtime disconnected, retrying", "error", err, "delay", delay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (m *Manager) endpoint(scope string) (string, error) {
	u, err := url.Parse(m.cfg.URL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", m.cfg.Token)
	if scope != "" {
		q.Set("clubId", scope)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// connectOnce dials, reads until the socket drops, and reports whether the
// handshake succeeded.
func (m *Manager) connectOnce(ctx context.Context) (bool, error) {
	m.mu.Lock()
	scope := m.scope
	m.joined = make(chan struct{})
	m.mu.Unlock()

	endpoint, err := m.endpoint(scope)
	if err != nil {
		return false, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+m.cfg.Token)

	conn, resp, err := m.cfg.Dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return false, fmt.Errorf("%w: handshake rejected with %d", status.ErrAuthentication, resp.StatusCode)
		}
		return false, err
	}

	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		conn.Close()
		return true, ctx.Err()
	}
	m.conn = conn
	m.status = StatusLive
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
		}
		m.mu.Unlock()
		conn.Close()
	}()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	// The clubId hint in the URL joins the scope at handshake, on every
	// reconnect too.
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		m.dispatch(msg)
	}
}

func (m *Manager) dispatch(msg []byte) {
	var frame models.Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		slog.Warn("Discarding unreadable frame", "error", err)
		return
	}

	switch frame.Event {
	case models.KindJoined:
		m.mu.Lock()
		select {
		case <-m.joined:
		default:
			close(m.joined)
		}
		m.mu.Unlock()
		return
	case models.KindJoinDenied:
		var ack models.GroupAck
		_ = json.Unmarshal(frame.Data, &ack)
		slog.Warn("Join denied", "group", ack.Group, "reason", ack.Reason)
		return
	case models.KindLeft:
		return
	}

	m.mu.Lock()
	handlers := append([]FrameHandler(nil), m.handlers...)
	m.mu.Unlock()

	for _, h := range handlers {
		h(frame)
	}
}
