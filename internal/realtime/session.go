package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"court-realtime/internal/status"
	"court-realtime/models"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var (
	writeWait      = 10 * time.Second
	maxMessageSize = 1024
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
)

// Session drives one upgraded socket: a read pump for control frames and a
// write pump draining the connection's outbound queue.
type Session struct {
	conn     *Connection
	ws       *websocket.Conn
	registry *Registry
	limiter  *rate.Limiter
}

func NewSession(ws *websocket.Conn, conn *Connection, registry *Registry, limiter *rate.Limiter) *Session {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(200*time.Millisecond), 10)
	}
	return &Session{
		conn:     conn,
		ws:       ws,
		registry: registry,
		limiter:  limiter,
	}
}

func (s *Session) Connection() *Connection {
	return s.conn
}

// Open registers the connection and joins the groups requested at handshake.
// Denied groups are reported to the client, the socket stays open.
func (s *Session) Open(scopeHint string) error {
	if err := s.registry.Register(s.conn); err != nil {
		return err
	}
	for _, group := range s.registry.Resolver().InitialGroups(s.conn.Identity, scopeHint) {
		s.join(group)
	}
	return nil
}

// Run blocks until the socket closes, then removes the connection.
func (s *Session) Run() {
	go s.writePump()
	s.readPump()
}

func (s *Session) join(group string) {
	if err := s.registry.Join(s.conn.ID, group); err != nil {
		reason := "forbidden"
		if !errors.Is(err, status.ErrAuthorization) {
			reason = err.Error()
		}
		slog.Warn("Join denied",
			"conn_id", s.conn.ID,
			"user_id", s.conn.Identity.UserID,
			"group", group,
			"error", err,
		)
		s.ack(models.KindJoinDenied, group, reason)
		return
	}
	s.ack(models.KindJoined, group, "")
}

func (s *Session) leave(group string) {
	s.registry.Leave(s.conn.ID, group)
	s.ack(models.KindLeft, group, "")
}

func (s *Session) ack(kind models.Kind, group, reason string) {
	frame, err := models.NewFrame(kind, models.GroupAck{Group: group, Reason: reason}, time.Now())
	if err != nil {
		slog.Error("Failed to encode ack", "error", err)
		return
	}
	s.registry.Send(s.conn.ID, frame)
}

func (s *Session) handleControl(msg []byte) {
	var frame models.ControlFrame
	if err := json.Unmarshal(msg, &frame); err != nil {
		slog.Warn("Ignoring unreadable control frame", "conn_id", s.conn.ID, "error", err)
		return
	}

	if !s.limiter.Allow() {
		s.ack(models.KindJoinDenied, models.ClubGroup(frame.ClubID), "rate limited")
		return
	}

	switch frame.Action {
	case models.ActionJoin:
		if frame.ClubID == "" {
			groups := s.registry.Resolver().InitialGroups(s.conn.Identity, "")
			if len(groups) == 0 {
				s.ack(models.KindJoinDenied, "", "club id is required")
			}
			for _, group := range groups {
				s.join(group)
			}
			return
		}
		s.join(models.ClubGroup(frame.ClubID))
	case models.ActionLeave:
		if frame.ClubID == "" {
			return
		}
		s.leave(models.ClubGroup(frame.ClubID))
	default:
		slog.Warn("Unknown control action", "conn_id", s.conn.ID, "action", frame.Action)
	}
}

func (s *Session) readPump() {
	defer func() {
		s.registry.Deregister(s.conn.ID)
		s.ws.Close()
	}()

	s.ws.SetReadLimit(int64(maxMessageSize))
	s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		s.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Realtime read failed", "conn_id", s.conn.ID, "error", err)
			}
			return
		}
		s.handleControl(msg)
	}
}

// writePump sends one websocket message per frame; clients decode frames
// individually so frames are never concatenated.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-s.conn.Outbound():
			s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Warn("Realtime write failed", "conn_id", s.conn.ID, "error", err)
				return
			}

		case <-ticker.C:
			s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
