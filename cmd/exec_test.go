package cmd

import (
	"context"
	"testing"
	"time"

	"court-realtime/config"
	"court-realtime/internal/realtime"
	"court-realtime/internal/services"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) (*pocketbase.PocketBase, *config.Config) {
	t.Helper()
	t.Setenv("REDIS_URL", "127.0.0.1:1")
	cfg := config.LoadConfig()
	return newApp(pocketbase.NewWithConfig(pocketbase.Config{DefaultDataDir: t.TempDir()}), cfg), cfg
}

func TestWatch_RunsWithoutRedis(t *testing.T) {
	app, _ := newTestApp(t)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	app.RootCmd.SetArgs([]string{
		"watch",
		"--club", "A",
		"--token", "x",
		"--url", "ws://127.0.0.1:1/api/v1/realtime",
		"--api", "http://127.0.0.1:1",
	})

	assert.NoError(t, app.RootCmd.ExecuteContext(ctx))
}

func TestNewApp_RegistersWatch(t *testing.T) {
	app, _ := newTestApp(t)

	watch, _, err := app.RootCmd.Find([]string{"watch"})
	require.NoError(t, err)
	assert.Equal(t, "watch", watch.Name())
	assert.NotNil(t, watch.Flags().Lookup("club"))
}

func TestSetupServer_RequiresRedis(t *testing.T) {
	_, cfg := newTestApp(t)

	resolver := realtime.NewResolver(false)
	registry := realtime.NewRegistry(resolver)
	bus := services.NewEventBus(false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := setupServer(ctx, &core.ServeEvent{}, cfg, resolver, registry, bus)
	assert.Error(t, err)
}

func TestWatchStore_UsesSlotLockTimeout(t *testing.T) {
	t.Setenv("SLOT_LOCK_TIMEOUT", "90s")
	cfg := config.LoadConfig()

	assert.Equal(t, 90*time.Second, newWatchStore(cfg).LockTTL())
}
