package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"court-realtime/client"
	"court-realtime/config"
	"court-realtime/models"

	"github.com/spf13/cobra"
)

type watchOptions struct {
	url   string
	api   string
	token string
	club  string
}

// newWatchCommand runs the client side of the realtime layer against a
// server and logs every toast and store change.
func newWatchCommand(cfg *config.Config) *cobra.Command {
	opts := &watchOptions{}

	command := &cobra.Command{
		Use:   "watch",
		Short: "Follow realtime booking events for a club",
		RunE: func(command *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, cfg, opts)
		},
	}

	command.Flags().StringVar(&opts.url, "url", "ws://127.0.0.1:8090/api/v1/realtime", "realtime endpoint")
	command.Flags().StringVar(&opts.api, "api", "http://127.0.0.1:8090", "API base URL used for the initial snapshot")
	command.Flags().StringVar(&opts.token, "token", os.Getenv("REALTIME_TOKEN"), "auth token")
	command.Flags().StringVar(&opts.club, "club", "", "club id to scope the connection to")

	return command
}

// newWatchStore expires locks on the same TTL the server holds them for.
func newWatchStore(cfg *config.Config) *client.Store {
	return client.NewStore(cfg.SlotLockTimeout)
}

func runWatch(ctx context.Context, cfg *config.Config, opts *watchOptions) error {
	store := newWatchStore(cfg)
	reconciler := client.NewReconciler(store, client.ReconcilerConfig{DebounceWindow: cfg.DebounceWindow})
	presenter := client.NewPresenter(client.ToastSinkFunc(func(t client.Toast) {
		slog.Info("Toast", "kind", t.Kind, "icon", t.Icon, "message", t.Message, "club_id", t.ClubID)
	}), cfg.ToastDedupWindow)

	manager := client.NewManager(client.ManagerConfig{
		URL:   opts.url,
		Token: opts.token,
	})
	defer manager.Close()

	manager.Handle(func(f models.Frame) {
		reconciler.ApplyFrame(f)
		presenter.Present(f)
	})

	changes, unsubscribe := store.Subscribe()
	defer unsubscribe()

	go reconciler.Run(ctx)

	manager.SetScope(ctx, opts.club)
	manager.Start(ctx)

	if opts.club != "" {
		bookings, err := client.FetchBookings(ctx, nil, opts.api, opts.token, opts.club)
		if err != nil {
			slog.Warn("Initial snapshot unavailable", "club_id", opts.club, "error", err)
		} else {
			slog.Info("Seeded bookings", "club_id", opts.club, "applied", reconciler.Seed(bookings))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case keys := <-changes:
			slog.Info("Store changed",
				"keys", keys,
				"bookings", len(store.Bookings()),
				"locks", len(store.Locks()),
				"status", manager.Status(),
			)
		}
	}
}
