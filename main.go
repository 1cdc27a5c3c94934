package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"socketd/internal/api"
	"socketd/internal/auth"
	"socketd/internal/cluster"
	"socketd/internal/commands"
	"socketd/internal/config"
	"socketd/internal/http"
	"socketd/internal/logging"
	"socketd/internal/presence"
	"socketd/internal/ratelimit"
	"socketd/internal/relay"
	"socketd/internal/rooms"
	"socketd/internal/storage"
	"socketd/internal/store"
	"socketd/internal/typing"
	"socketd/internal/ws"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/thejerf/suture/v4"
	"golang.org/x/sync/errgroup"
)

type stores struct {
	presence  store.PresenceStore
	typing    store.TypingStore
	rateLimit store.RateLimitStore
}

func newStores(ctx context.Context, cfg *config.Config, client *redis.Client) stores {
	memPresence := store.NewMemoryPresence()
	memTyping := store.NewMemoryTyping(ctx, cfg.Typing.TTL)
	memRateLimit := store.NewMemoryRateLimit(ctx, cfg.RateLimitWindow())

	if client == nil {
		return stores{presence: memPresence, typing: memTyping, rateLimit: memRateLimit}
	}

	return stores{
		presence:  store.NewResilientPresence(store.NewRedisPresence(client), memPresence),
		typing:    store.NewResilientTyping(store.NewRedisTyping(client, cfg.Typing.TTL), memTyping),
		rateLimit: store.NewResilientRateLimit(store.NewRedisRateLimit(client, cfg.RateLimitWindow())),
	}
}

func newBus(cfg *config.Config, client *redis.Client) (cluster.Bus, error) {
	switch cfg.Cluster.Backend {
	case config.ClusterRedis:
		return cluster.NewRedisBus(client, cfg.Cluster.Subject), nil
	case config.ClusterNATS:
		return cluster.DialNATS(cfg.Cluster.NATSURL, cfg.Cluster.Subject)
	}
	return cluster.NewLocal(), nil
}

func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("socketd", flag.ContinueOnError)
	emit := flags.String("emit", "", "Event name to send through a running server's /emit-event, then exit")
	data := flags.String("data", "{}", "JSON object payload for -emit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	if *emit != "" {
		return commands.Emit(ctx, os.Stdout, cfg, *emit, *data)
	}

	if cfg.Auth.JWTSecret == "" {
		logging.Warn().Msg("JWT_SECRET is not set, every connection is anonymous")
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = store.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer func() { _ = redisClient.Close() }()
		logging.Info().Msg("using redis for shared state")
	}

	bus, err := newBus(cfg, redisClient)
	if err != nil {
		return fmt.Errorf("failed to start cluster bus: %w", err)
	}
	defer func() { _ = bus.Close() }()

	// A nil *BboltStorage must not reach presence or the admin API as a
	// non-nil interface.
	var (
		ledger      presence.Ledger
		ledgerAdmin api.LastSeenLedger
	)
	if cfg.Presence.DBPath != "" {
		bbStorage, err := storage.NewBboltStorage(cfg.Presence.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = bbStorage.Close() }()
		ledger = bbStorage
		ledgerAdmin = bbStorage
	}

	st := newStores(ctx, cfg, redisClient)

	registry := rooms.NewRegistry()
	hub := ws.NewHub(registry, bus)
	presenceTracker := presence.New(st.presence, hub, ledger)
	typingTracker := typing.New(st.typing, hub)
	messageRelay := relay.New(hub, typingTracker, relay.Config{SanitizeText: cfg.Relay.SanitizeText})
	hub.Attach(ws.Services{
		Presence: presenceTracker,
		Rooms:    rooms.NewManager(registry, hub),
		Typing:   typingTracker,
		Relay:    messageRelay,
	})

	authService := auth.NewAuthService(ctx, cfg.Auth.JWTSecret)
	limiter := ratelimit.New(st.rateLimit, cfg.RateLimit.MaxRequests)
	socketServer := ws.NewServer(authService, limiter, hub, ws.Config{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		MaxPayloadBytes: cfg.Server.MaxPayloadBytes,
		PingInterval:    cfg.Server.PingInterval,
		PingTimeout:     cfg.Server.PingTimeout,
	})

	g, gCtx := errgroup.WithContext(ctx)

	apiServer := http.NewAPIServer(gCtx, http.APIConfig{
		Addr:            cfg.Addr(),
		HTTPRateLimit:   cfg.RateLimit.HTTPRequests,
		RateLimitWindow: cfg.RateLimitWindow(),
	}, socketServer.HandleConnections, api.New(messageRelay))
	adminServer := http.NewAdminServer(api.NewAdminHandler(hub, presenceTracker, ledgerAdmin), cfg.Server.AdminAddr)

	supervisor := suture.New("socketd", suture.Spec{
		EventHook: func(e suture.Event) {
			logging.Warn().Str("supervisor_event", e.String()).Msg("supervisor event")
		},
		FailureBackoff: 2 * time.Second,
		Timeout:        cfg.Server.ShutdownTimeout,
	})
	supervisor.Add(hub)

	// Cluster bridge
	g.Go(func() error {
		err := supervisor.Serve(gCtx)
		if err != nil && gCtx.Err() == nil {
			return err
		}
		return nil
	})

	// Start Admin Server
	g.Go(func() error {
		return adminServer.Start()
	})

	// Start API Server
	g.Go(func() error {
		return apiServer.Start()
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		logging.Info().Msg("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("admin server shutdown error")
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("API server shutdown error")
		}
		return nil
	})

	logging.Info().Str("node_id", hub.NodeID()).Str("bus", bus.Name()).Msg("socketd ready")
	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("application error")
		os.Exit(1)
	}
}
