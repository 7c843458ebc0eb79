package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/davidrmz/chisme-client/internal/api"
	"github.com/davidrmz/chisme-client/internal/auth"
	"github.com/davidrmz/chisme-client/internal/config"
	"github.com/davidrmz/chisme-client/internal/events"
	"github.com/davidrmz/chisme-client/internal/reconcile"
	"github.com/davidrmz/chisme-client/internal/rematch"
	"github.com/davidrmz/chisme-client/internal/room"
	"github.com/davidrmz/chisme-client/internal/transport"
)

func main() {
	configPath := flag.String("config", "configs/client.yaml", "path to config file")
	gameID := flag.Int64("game", 0, "game id to join on startup")
	flag.Parse()

	// .env is optional; real env vars win either way
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))
	slog.SetDefault(logger)

	logger.Info("starting client",
		"api_url", cfg.Server.APIURL,
		"ws_url", cfg.Server.WSURL,
	)

	store := auth.NewStore(cfg.Server.Token)
	userID, ok := auth.UserID(cfg.Server.Token)
	if !ok {
		logger.Error("token carries no user id")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mgrCfg := transport.ManagerConfig{
		URL:               cfg.Server.WSURL,
		CommandTimeout:    cfg.Transport.CommandTimeout,
		ReconnectAttempts: cfg.Transport.ReconnectAttempts,
		ReconnectBase:     cfg.Transport.ReconnectBase,
		ReconnectMax:      cfg.Transport.ReconnectMax,
		FrameBufferSize:   cfg.Transport.FrameBufferSize,
		Client: transport.ClientConfig{
			HandshakeTimeout: cfg.Transport.HandshakeTimeout,
			PingInterval:     cfg.Transport.PingInterval,
			PingTimeout:      cfg.Transport.PingTimeout,
			WriteTimeout:     cfg.Transport.WriteTimeout,
			BufferSize:       256,
		},
	}
	mgr := transport.NewManager(mgrCfg, store, logger)
	if err := mgr.Start(ctx); err != nil {
		logger.Error("failed to start connection manager", "error", err)
		os.Exit(1)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		mgr.Stop(stopCtx)
	}()

	broker := events.NewBroker(mgr, 64, logger)
	membership := room.NewMembership(room.DefaultConfig(), mgr, logger)

	apiClient := api.NewClient(
		cfg.Server.APIURL,
		store,
		api.WithLogger(logger),
		api.WithTimeout(30*time.Second),
		api.WithRetries(3, time.Second),
	)

	tracker := newSeatTracker(userID)

	reconciler := reconcile.New(reconcile.Config{
		FetchTimeout:     cfg.Reconcile.FetchTimeout,
		FallbackInterval: cfg.Reconcile.FallbackInterval,
		BufferSize:       cfg.Reconcile.BufferSize,
	}, apiClient, broker, membership, logger)

	coordinator := rematch.New(rematch.Config{
		GracePeriod:     cfg.Rematch.GracePeriod,
		CallTimeout:     cfg.Rematch.CallTimeout,
		EventBufferSize: 32,
	}, apiClient, broker, membership, tracker, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return broker.Run(gctx) })
	g.Go(func() error { return membership.Run(gctx) })
	g.Go(func() error { return reconciler.Run(gctx) })
	g.Go(func() error { return coordinator.Run(gctx) })
	g.Go(func() error { return pumpSnapshots(gctx, reconciler, tracker, logger) })
	g.Go(func() error { return pumpRematchEvents(gctx, coordinator, logger) })

	if err := mgr.Connect(); err != nil {
		logger.Error("failed to initiate connection", "error", err)
		cancel()
	}

	if *gameID > 0 {
		joinCtx, joinCancel := context.WithTimeout(gctx, 30*time.Second)
		if err := waitConnected(joinCtx, mgr); err != nil {
			logger.Error("connection never came up", "error", err)
			joinCancel()
			cancel()
			g.Wait()
			os.Exit(1)
		}
		if err := membership.SwitchRoom(joinCtx, *gameID); err != nil {
			logger.Error("failed to join game room", "game_id", *gameID, "error", err)
		} else {
			logger.Info("joined game room", "game_id", *gameID)
		}
		joinCancel()
	}

	logger.Info("client running")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("client exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("client stopped")
}

// waitConnected blocks until the manager reports a live connection.
func waitConnected(ctx context.Context, mgr *transport.Manager) error {
	states, cancel := mgr.StateChanges()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st, ok := <-states:
			if !ok {
				return transport.ErrNotConnected
			}
			if st == transport.StateConnected {
				return nil
			}
		}
	}
}

// loadConfig reads the config file if it exists, otherwise falls back to
// environment variables only.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		return config.FromEnv()
	}
	return config.LoadAndValidate(path)
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// pumpSnapshots feeds reconciled snapshots into the seat tracker and logs
// fetch errors.
func pumpSnapshots(ctx context.Context, r *reconcile.Reconciler, tracker *seatTracker, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap := <-r.Snapshots():
			tracker.Observe(snap.GameID, snap.Info)
			logger.Debug("snapshot reconciled",
				"game_id", snap.GameID,
				"status", snap.Info.Game.Status,
				"players", len(snap.Info.Players),
			)
		case err := <-r.Errors():
			logger.Warn("snapshot fetch failed", "error", err)
		}
	}
}

// pumpRematchEvents logs the coordinator's UI events.
func pumpRematchEvents(ctx context.Context, c *rematch.Coordinator, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.Events():
			logger.Info("rematch event",
				"kind", ev.Kind.String(),
				"game_id", ev.GameID,
				"new_game_id", ev.NewGameID,
				"player_id", ev.PlayerID,
				"reason", ev.Reason,
			)
		}
	}
}
