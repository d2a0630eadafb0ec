package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"court-realtime/internal/realtime"
	"court-realtime/internal/services"
	"court-realtime/models"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	rootAdmin = models.Identity{UserID: "root", Role: models.RoleRootAdmin}
	clubAdmin = models.Identity{UserID: "admin-a", Role: models.RoleClubAdmin, ClubIDs: []string{"A"}}
	playerA   = models.Identity{UserID: "u1", Role: models.RolePlayer, ClubIDs: []string{"A"}}
)

func as(identity models.Identity) func(*core.RequestEvent) (models.Identity, error) {
	return func(*core.RequestEvent) (models.Identity, error) { return identity, nil }
}

func newRequestEvent(method, target, body string, pathValues map[string]string) (*core.RequestEvent, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range pathValues {
		req.SetPathValue(k, v)
	}
	rec := httptest.NewRecorder()

	e := &core.RequestEvent{}
	e.Request = req
	e.Response = rec
	return e, rec
}

func assertAPIStatus(t *testing.T, err error, status int) {
	t.Helper()
	var apiErr *router.ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, status, apiErr.Status)
}

// listener registers a connection and joins it to group so tests can read
// what the bus delivered.
func listener(t *testing.T, registry *realtime.Registry, identity models.Identity, group string) *realtime.Connection {
	t.Helper()
	conn := realtime.NewConnection(identity, 8)
	require.NoError(t, registry.Register(conn))
	require.NoError(t, registry.Join(conn.ID, group))
	return conn
}

func nextFrame(t *testing.T, conn *realtime.Connection) models.Frame {
	t.Helper()
	select {
	case raw := <-conn.Outbound():
		var f models.Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame delivered")
		return models.Frame{}
	}
}

func newBus(registry *realtime.Registry) *services.EventBus {
	bus := services.NewEventBus(false)
	bus.Attach(registry)
	return bus
}

func TestAdminHandler_RequiresRootAdmin(t *testing.T) {
	registry := realtime.NewRegistry(nil)
	h := NewAdminHandler(registry, newBus(registry))
	h.identify = as(clubAdmin)

	e, _ := newRequestEvent(http.MethodGet, "/api/v1/admin/realtime", "", nil)
	assertAPIStatus(t, h.GetRealtimeStats(e), http.StatusForbidden)

	e, _ = newRequestEvent(http.MethodPost, "/api/v1/admin/notices", `{"title":"x"}`, nil)
	assertAPIStatus(t, h.PostNotice(e), http.StatusForbidden)
}

func TestAdminHandler_GetRealtimeStats(t *testing.T) {
	registry := realtime.NewRegistry(nil)
	listener(t, registry, playerA, "club:A")
	h := NewAdminHandler(registry, newBus(registry))
	h.identify = as(rootAdmin)

	e, rec := newRequestEvent(http.MethodGet, "/api/v1/admin/realtime", "", nil)
	require.NoError(t, h.GetRealtimeStats(e))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Connections int            `json:"connections"`
		Groups      map[string]int `json:"groups"`
		BusReady    bool           `json:"bus_ready"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Connections)
	assert.Equal(t, 1, body.Groups["club:A"])
	assert.True(t, body.BusReady)
}

func TestAdminHandler_PostNotice(t *testing.T) {
	registry := realtime.NewRegistry(nil)
	watcher := listener(t, registry, rootAdmin, models.AllClubsGroup)
	h := NewAdminHandler(registry, newBus(registry))
	h.identify = as(rootAdmin)

	e, rec := newRequestEvent(http.MethodPost, "/api/v1/admin/notices", `{"title":"Maintenance","message":"Court 3 closed"}`, nil)
	require.NoError(t, h.PostNotice(e))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ID     string   `json:"id"`
		Groups []string `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, strings.HasPrefix(body.ID, "notice_"))
	assert.Equal(t, []string{models.AllClubsGroup}, body.Groups)

	f := nextFrame(t, watcher)
	assert.Equal(t, models.KindNotice, f.Event)

	e, _ = newRequestEvent(http.MethodPost, "/api/v1/admin/notices", `{}`, nil)
	assertAPIStatus(t, h.PostNotice(e), http.StatusBadRequest)
}

func TestSlotHandler_Unlock(t *testing.T) {
	unlockKeys := []string{"slot:lock:A:s1", "slot:locks:A"}
	tests := []struct {
		name     string
		identity models.Identity
		setup    func(mock redismock.ClientMock)
		status   int
	}{
		{
			name:     "held by someone else",
			identity: playerA,
			setup: func(mock redismock.ClientMock) {
				mock.ExpectEval(services.UnlockSlotScript, unlockKeys, "u1", "s1").SetVal(int64(-1))
			},
			status: http.StatusForbidden,
		},
		{
			name:     "not locked",
			identity: playerA,
			setup: func(mock redismock.ClientMock) {
				mock.ExpectEval(services.UnlockSlotScript, unlockKeys, "u1", "s1").SetVal(int64(0))
			},
			status: http.StatusOK,
		},
		{
			name:     "admin releases a player hold",
			identity: clubAdmin,
			setup: func(mock redismock.ClientMock) {
				mock.ExpectEval(services.UnlockSlotScript, unlockKeys, "", "s1").SetVal(time.Now().Unix())
			},
			status: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := redismock.NewClientMock()
			tt.setup(mock)

			registry := realtime.NewRegistry(nil)
			h := NewSlotHandler(services.NewSlotService(db, newBus(registry), 5*time.Minute), registry.Resolver())
			h.identify = as(tt.identity)

			e, rec := newRequestEvent(http.MethodDelete, "/api/v1/clubs/A/slots/s1/lock", "", map[string]string{"clubId": "A", "slotId": "s1"})
			err := h.UnlockSlot(e)
			if tt.status == http.StatusOK {
				require.NoError(t, err)
				assert.Equal(t, http.StatusOK, rec.Code)
			} else {
				assertAPIStatus(t, err, tt.status)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSlotHandler_LockRejections(t *testing.T) {
	db, mock := redismock.NewClientMock()
	registry := realtime.NewRegistry(nil)
	h := NewSlotHandler(services.NewSlotService(db, newBus(registry), 5*time.Minute), registry.Resolver())

	h.identify = as(playerA)
	e, _ := newRequestEvent(http.MethodPost, "/api/v1/clubs/B/slots/lock", `{"slotId":"s1"}`, map[string]string{"clubId": "B"})
	assertAPIStatus(t, h.LockSlot(e), http.StatusForbidden)

	e, _ = newRequestEvent(http.MethodPost, "/api/v1/clubs/A/slots/lock", `{}`, map[string]string{"clubId": "A"})
	assertAPIStatus(t, h.LockSlot(e), http.StatusBadRequest)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentHandler_SimulatePayment(t *testing.T) {
	registry := realtime.NewRegistry(nil)
	watcher := listener(t, registry, clubAdmin, "club:A")
	paymentService := services.NewPaymentService(nil, newBus(registry), "bank-payment-notifications")
	body := `{"clubId":"A","bookingId":"b1","status":"succeeded","amount":"40.00","currency":"EUR"}`
	path := map[string]string{"paymentId": "pay-1"}

	disabled := NewPaymentHandler(paymentService, false)
	disabled.identify = as(clubAdmin)
	e, _ := newRequestEvent(http.MethodPost, "/api/v1/payments/pay-1/outcome", body, path)
	assertAPIStatus(t, disabled.SimulatePayment(e), http.StatusNotFound)

	h := NewPaymentHandler(paymentService, true)
	h.identify = as(playerA)
	e, _ = newRequestEvent(http.MethodPost, "/api/v1/payments/pay-1/outcome", body, path)
	assertAPIStatus(t, h.SimulatePayment(e), http.StatusForbidden)

	e, _ = newRequestEvent(http.MethodPost, "/api/v1/payments/pay-1/outcome", `{"clubId":"A","status":"pending"}`, path)
	h.identify = as(clubAdmin)
	assertAPIStatus(t, h.SimulatePayment(e), http.StatusBadRequest)

	e, rec := newRequestEvent(http.MethodPost, "/api/v1/payments/pay-1/outcome", body, path)
	require.NoError(t, h.SimulatePayment(e))
	assert.Equal(t, http.StatusOK, rec.Code)

	f := nextFrame(t, watcher)
	assert.Equal(t, models.KindPaymentSucceeded, f.Event)
	var outcome models.PaymentOutcome
	require.NoError(t, json.Unmarshal(f.Data, &outcome))
	assert.Equal(t, "pay-1", outcome.PaymentID)
	assert.Equal(t, "EUR", outcome.Currency)
	assert.Equal(t, "40", outcome.Amount.String())
}

type bookingCall struct {
	kind           string
	id             string
	previousStatus string
}

type fakeBookingEvents struct {
	calls []bookingCall
}

func (f *fakeBookingEvents) BookingCreated(_ context.Context, b models.BookingSnapshot) {
	f.calls = append(f.calls, bookingCall{kind: "created", id: b.ID})
}

func (f *fakeBookingEvents) BookingUpdated(_ context.Context, b models.BookingSnapshot, previousStatus string) {
	f.calls = append(f.calls, bookingCall{kind: "updated", id: b.ID, previousStatus: previousStatus})
}

func (f *fakeBookingEvents) BookingCancelled(_ context.Context, bookingID, _ string) {
	f.calls = append(f.calls, bookingCall{kind: "cancelled", id: bookingID})
}

func TestEmitBookingUpdate(t *testing.T) {
	tests := []struct {
		name     string
		previous string
		status   string
		want     []bookingCall
	}{
		{
			name:     "confirmed",
			previous: models.BookingStatusPending,
			status:   models.BookingStatusActive,
			want:     []bookingCall{{kind: "updated", id: "b1", previousStatus: models.BookingStatusPending}},
		},
		{
			name:     "cancelled",
			previous: models.BookingStatusActive,
			status:   models.BookingStatusCancelled,
			want:     []bookingCall{{kind: "cancelled", id: "b1"}},
		},
		{
			name:     "already cancelled",
			previous: models.BookingStatusCancelled,
			status:   models.BookingStatusCancelled,
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &fakeBookingEvents{}
			emitBookingUpdate(context.Background(), events, models.BookingSnapshot{ID: "b1", ClubID: "A", Status: tt.status}, tt.previous)
			assert.Equal(t, tt.want, events.calls)
		})
	}
}

func TestSnapshotFromRecord(t *testing.T) {
	record := core.NewRecord(core.NewBaseCollection("bookings"))
	record.Id = "b1"
	record.Set("club", "A")
	record.Set("court", "c3")
	record.Set("user", "u1")
	record.Set("start", "2024-01-15 18:00:00.000Z")
	record.Set("end", "2024-01-15 19:00:00.000Z")
	record.Set("status", models.BookingStatusActive)
	record.Set("updated", "2024-01-15 12:00:00.000Z")

	got := SnapshotFromRecord(record)

	assert.Equal(t, "b1", got.ID)
	assert.Equal(t, "A", got.ClubID)
	assert.Equal(t, "c3", got.CourtID)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, models.BookingStatusActive, got.Status)
	assert.True(t, got.Start.Equal(time.Date(2024, 1, 15, 18, 0, 0, 0, time.UTC)))
	assert.True(t, got.End.Equal(time.Date(2024, 1, 15, 19, 0, 0, 0, time.UTC)))
	assert.True(t, got.UpdatedAt.Equal(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)))
}

func TestIdentityFromRecord(t *testing.T) {
	users := core.NewRecord(core.NewAuthCollection("users"))
	users.Id = "u9"
	users.Set("role", string(models.RoleClubAdmin))
	users.Set("clubs", []string{"A", "B"})

	assert.Equal(t, models.Identity{UserID: "u9", Role: models.RoleClubAdmin, ClubIDs: []string{"A", "B"}}, IdentityFromRecord(users))

	plain := core.NewRecord(core.NewAuthCollection("users"))
	plain.Id = "u10"
	assert.Equal(t, models.RolePlayer, IdentityFromRecord(plain).Role)

	superuser := core.NewRecord(core.NewAuthCollection(core.CollectionNameSuperusers))
	superuser.Id = "su1"
	assert.True(t, IdentityFromRecord(superuser).Elevated())

	assert.True(t, IdentityFromRecord(nil).IsZero())
}
