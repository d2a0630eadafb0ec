package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"court-realtime/internal/realtime"
	"court-realtime/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthenticator map[string]models.Identity

func (f fakeAuthenticator) Authenticate(r *http.Request) (models.Identity, error) {
	identity, ok := f[TokenFromRequest(r)]
	if !ok {
		return models.Identity{}, errors.New("unknown token")
	}
	return identity, nil
}

func newRealtimeServer(t *testing.T) (*httptest.Server, *realtime.Registry) {
	t.Helper()
	registry := realtime.NewRegistry(realtime.NewResolver(false))
	auth := fakeAuthenticator{
		"player-a": {UserID: "u1", Role: models.RolePlayer, ClubIDs: []string{"A"}},
	}
	srv := httptest.NewServer(NewRealtimeHandler(registry, auth, nil, RealtimeConfig{SendBuffer: 8}))
	t.Cleanup(srv.Close)
	return srv, registry
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
}

func TestRealtimeHandler_RefusesBeforeUpgrade(t *testing.T) {
	srv, registry := newRealtimeServer(t)

	tests := []struct {
		name   string
		query  string
		header http.Header
		status int
	}{
		{name: "no token", query: "clubId=A", status: http.StatusUnauthorized},
		{name: "unknown token", query: "token=nope&clubId=A", status: http.StatusUnauthorized},
		{
			name:   "crawler",
			query:  "token=player-a&clubId=A",
			header: http.Header{"User-Agent": []string{"FancyBot/1.0"}},
			status: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, tt.query), tt.header)
			if ws != nil {
				ws.Close()
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	assert.Zero(t, registry.Stats().Connections)
}

func TestRealtimeHandler_JoinsScopedGroup(t *testing.T) {
	srv, registry := newRealtimeServer(t)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "token=player-a&clubId=A"), nil)
	require.NoError(t, err)
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack models.Frame
	require.NoError(t, ws.ReadJSON(&ack))
	assert.Equal(t, models.KindJoined, ack.Event)

	var group models.GroupAck
	require.NoError(t, json.Unmarshal(ack.Data, &group))
	assert.Equal(t, "club:A", group.Group)
	assert.Equal(t, 1, len(registry.Members("club:A")))

	raw, err := models.NewFrame(models.KindSlotLocked, models.SlotLockPayload{SlotID: "s1", ClubID: "A"}, time.Now())
	require.NoError(t, err)
	registry.Broadcast("club:A", raw)

	var event models.Frame
	require.NoError(t, ws.ReadJSON(&event))
	assert.Equal(t, models.KindSlotLocked, event.Event)
}

func TestRealtimeHandler_DeniedScopeKeepsSocketOpen(t *testing.T) {
	srv, registry := newRealtimeServer(t)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "token=player-a&clubId=B"), nil)
	require.NoError(t, err)
	defer ws.Close()

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack models.Frame
	require.NoError(t, ws.ReadJSON(&ack))
	assert.Equal(t, models.KindJoinDenied, ack.Event)
	assert.Empty(t, registry.Members("club:B"))
	assert.Equal(t, 1, registry.Stats().Connections)
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header string
		want   string
	}{
		{name: "query", target: "/ws?token=abc", want: "abc"},
		{name: "bearer", target: "/ws", header: "Bearer xyz", want: "xyz"},
		{name: "raw header", target: "/ws", header: "xyz", want: "xyz"},
		{name: "query wins", target: "/ws?token=abc", header: "Bearer xyz", want: "abc"},
		{name: "none", target: "/ws", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, TokenFromRequest(r))
		})
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.RemoteAddr = "10.0.0.7:51234"
	assert.Equal(t, "10.0.0.7", clientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(r))
}
