package cmd

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"court-realtime/config"
	"court-realtime/internal/handlers"
	"court-realtime/internal/realtime"
	"court-realtime/internal/services"
	"court-realtime/monitoring"
	"court-realtime/security"
	"court-realtime/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

func Start() error {
	// Load configuration
	cfg := config.LoadConfig()

	app := newApp(pocketbase.New(), cfg)

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// newApp registers commands, hooks and routes. Redis and PubNub are only
// dialed once the server starts, so client commands such as watch run
// without them.
func newApp(app *pocketbase.PocketBase, cfg *config.Config) *pocketbase.PocketBase {
	ctx, cancel := context.WithCancel(context.Background())

	// Realtime core
	resolver := realtime.NewResolver(cfg.LegacyBroadMode)
	registry := realtime.NewRegistry(resolver)
	bus := services.NewEventBus(cfg.LegacyFrames)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})
	app.RootCmd.AddCommand(newWatchCommand(cfg))

	handlers.RegisterBookingHooks(app, bus)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		if err := setupServer(ctx, e, cfg, resolver, registry, bus); err != nil {
			return err
		}

		// Setup graceful shutdown
		go handleShutdown(cancel)

		return e.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		cancel()
		return e.Next()
	})

	return app
}

// setupServer connects the backing services, starts background tasks and
// registers the API routes.
func setupServer(ctx context.Context, e *core.ServeEvent, cfg *config.Config, resolver *realtime.Resolver, registry *realtime.Registry, bus *services.EventBus) error {
	// Initialize Redis
	redisClient, err := utils.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		redisClient.Close()
	}()

	// Initialize PubNub
	var pn *pubnub.PubNub
	if cfg.PubNubConfigured() {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey

		pn = pubnub.NewPubNub(pnConfig)
	}

	// Initialize services
	slotService := services.NewSlotService(redisClient, bus, cfg.SlotLockTimeout)
	paymentService := services.NewPaymentService(pn, bus, cfg.PubNubPaymentChannel)

	// Initialize handlers
	realtimeHandler := handlers.NewRealtimeHandler(
		registry,
		handlers.NewPocketBaseAuthenticator(e.App),
		security.NewHandshakeGuard(redisClient, cfg.HandshakeLimitPerMinute),
		handlers.RealtimeConfig{
			SendBuffer: cfg.SendBuffer,
			JoinRate:   rate.Limit(cfg.JoinRatePerSecond),
			JoinBurst:  cfg.JoinBurst,
		},
	)
	bookingHandler := handlers.NewBookingHandler(e.App, resolver)
	slotHandler := handlers.NewSlotHandler(slotService, resolver)
	paymentHandler := handlers.NewPaymentHandler(paymentService, cfg.Environment == "development")
	adminHandler := handlers.NewAdminHandler(registry, bus)

	bus.Attach(newTransport(ctx, cfg, redisClient, registry, pn))

	// Start background tasks
	go slotService.RunExpirySweeper(ctx, cfg.LockSweepInterval)
	if pn != nil {
		go paymentService.SubscribeToPaymentNotifications(ctx)
	}
	if cfg.EnableMetrics {
		go monitoring.NewMonitor(redisClient, registry.GroupCounts).Run(ctx)
		e.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
	}

	// Realtime endpoint
	e.Router.GET("/api/v1/realtime", realtimeHandler.Serve)

	// Booking endpoints
	e.Router.GET("/api/v1/clubs/{clubId}/bookings", bookingHandler.ListClubBookings)

	// Slot endpoints
	e.Router.POST("/api/v1/clubs/{clubId}/slots/lock", slotHandler.LockSlot)
	e.Router.DELETE("/api/v1/clubs/{clubId}/slots/{slotId}/lock", slotHandler.UnlockSlot)

	// Admin endpoints
	e.Router.GET("/api/v1/admin/realtime", adminHandler.GetRealtimeStats)
	e.Router.POST("/api/v1/admin/notices", adminHandler.PostNotice)

	// Test endpoint for payment simulation
	if cfg.Environment == "development" {
		e.Router.POST("/api/v1/payments/{paymentId}/outcome", paymentHandler.SimulatePayment)
	}

	// Health check
	e.Router.GET("/health", func(e *core.RequestEvent) error {
		if err := utils.RedisHealthCheck(redisClient); err != nil {
			return e.JSON(503, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return e.JSON(200, map[string]any{
			"status":      "healthy",
			"connections": registry.Stats().Connections,
		})
	})

	slog.Info("Server routes registered",
		"legacy_broad_mode", cfg.LegacyBroadMode,
		"legacy_frames", cfg.LegacyFrames,
		"redis_relay", cfg.RedisRelayEnabled,
		"pubnub_mirror", cfg.PubNubMirrorEnabled && pn != nil,
	)

	return nil
}

// newTransport picks how emitted frames reach sockets. With the relay enabled
// every instance publishes to Redis and delivers what it receives back to its
// own registry.
func newTransport(ctx context.Context, cfg *config.Config, redisClient *redis.Client, registry *realtime.Registry, pn *pubnub.PubNub) services.Transport {
	var transport services.Transport = registry
	if cfg.RedisRelayEnabled {
		relay := services.NewRelay(redisClient, cfg.RedisRelayChannel, registry)
		go relay.Run(ctx)
		transport = services.NewRedisTransport(redisClient, cfg.RedisRelayChannel)
	}
	if cfg.PubNubMirrorEnabled && pn != nil {
		transport = services.NewPubNubMirror(transport, pn)
	}
	return transport
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("Shutdown signal received, cleaning up...")
	cancel()
}
