package handlers

import (
	"log/slog"
	"net"
	"net/http"
	"strings"

	"court-realtime/internal/realtime"
	"court-realtime/security"

	"github.com/gorilla/websocket"
	"github.com/pocketbase/pocketbase/core"
	"golang.org/x/time/rate"
)

type RealtimeConfig struct {
	SendBuffer int
	JoinRate   rate.Limit
	JoinBurst  int
}

// RealtimeHandler upgrades authenticated requests to realtime sessions.
type RealtimeHandler struct {
	registry *realtime.Registry
	auth     Authenticator
	guard    *security.HandshakeGuard
	upgrader websocket.Upgrader
	cfg      RealtimeConfig
}

func NewRealtimeHandler(registry *realtime.Registry, auth Authenticator, guard *security.HandshakeGuard, cfg RealtimeConfig) *RealtimeHandler {
	if cfg.JoinRate <= 0 {
		cfg.JoinRate = 5
	}
	if cfg.JoinBurst <= 0 {
		cfg.JoinBurst = 10
	}
	return &RealtimeHandler{
		registry: registry,
		auth:     auth,
		guard:    guard,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		cfg: cfg,
	}
}

// Serve adapts the handler to the PocketBase router.
func (h *RealtimeHandler) Serve(e *core.RequestEvent) error {
	h.ServeHTTP(e.Response, e.Request)
	return nil
}

func (h *RealtimeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if security.IsSuspiciousUserAgent(r.UserAgent()) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if !h.guard.Allow(r.Context(), ip) {
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	identity, err := h.auth.Authenticate(r)
	if err != nil || identity.IsZero() {
		slog.Warn("Realtime handshake refused", "ip", ip, "error", err)
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Realtime upgrade failed", "ip", ip, "error", err)
		return
	}

	conn := realtime.NewConnection(identity, h.cfg.SendBuffer)
	session := realtime.NewSession(ws, conn, h.registry, rate.NewLimiter(h.cfg.JoinRate, h.cfg.JoinBurst))
	if err := session.Open(r.URL.Query().Get("clubId")); err != nil {
		slog.Warn("Realtime session refused", "user_id", identity.UserID, "error", err)
		ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required"))
		ws.Close()
		return
	}

	slog.Info("Realtime connection opened",
		"conn_id", conn.ID,
		"user_id", identity.UserID,
		"role", identity.Role,
		"scope", r.URL.Query().Get("clubId"),
	)

	go session.Run()
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
