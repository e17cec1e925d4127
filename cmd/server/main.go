package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/unnita1235/ConnectNow-sub000/internal/config"
	"github.com/unnita1235/ConnectNow-sub000/internal/database"
	"github.com/unnita1235/ConnectNow-sub000/internal/logger"
	"github.com/unnita1235/ConnectNow-sub000/internal/metrics"
	"github.com/unnita1235/ConnectNow-sub000/internal/pubsub"
	"github.com/unnita1235/ConnectNow-sub000/internal/repository"
	"github.com/unnita1235/ConnectNow-sub000/internal/repository/memory"
	postgresrepo "github.com/unnita1235/ConnectNow-sub000/internal/repository/postgres"
	"github.com/unnita1235/ConnectNow-sub000/internal/service"
	"github.com/unnita1235/ConnectNow-sub000/internal/transport/http/handlers"
	"github.com/unnita1235/ConnectNow-sub000/internal/transport/http/middleware"
	"github.com/unnita1235/ConnectNow-sub000/internal/transport/ws"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

type repos struct {
	users      repository.UserRepository
	workspaces repository.WorkspaceRepository
	channels   repository.ChannelRepository
	presence   repository.PresenceRepository
	messages   repository.MessageRepository
	reactions  repository.ReactionRepository
	dms        repository.DMRepository
}

func main() {
	cfg := config.Load()
	logger.Init(cfg.Env, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	r, seed, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	broker, err := openBroker(cfg)
	if err != nil {
		return err
	}
	defer broker.Close()

	hub, err := ws.NewHub(broker, cfg.NodeName)
	if err != nil {
		return fmt.Errorf("starting hub: %w", err)
	}
	notifier := ws.NewHubNotifier(hub)

	// Services
	authService := service.NewAuthService(r.users, cfg.JWTSecret)
	channelService := service.NewChannelService(r.channels, r.workspaces)
	typingService := service.NewTypingService(cfg.TypingTimeout)
	presenceService := service.NewPresenceService(r.presence, r.workspaces)
	messageService := service.NewMessageService(r.messages, r.reactions, channelService, typingService)
	dmService := service.NewDMService(r.dms, r.users)

	typingService.SetNotifier(notifier)
	presenceService.SetNotifier(notifier)
	messageService.SetNotifier(notifier)
	dmService.SetNotifier(notifier)

	if seed != nil {
		seed(authService)
	}

	gateway := ws.NewGateway(hub, ws.Services{
		Auth:     authService,
		Channels: channelService,
		Presence: presenceService,
		Typing:   typingService,
		Messages: messageService,
		DMs:      dmService,
	}, ws.GatewayConfig{
		RateLimit:      cfg.WSRateLimit,
		RateBurst:      cfg.WSRateBurst,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	// Handlers
	messageHandler := handlers.NewMessageHandler(messageService)
	dmHandler := handlers.NewDMHandler(dmService)
	presenceHandler := handlers.NewPresenceHandler(presenceService)

	auth := middleware.Auth(authService)
	api := func(h http.HandlerFunc) http.Handler {
		return metrics.Middleware(auth(h))
	}

	// Routes
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", handlers.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", gateway.ServeWS)

	// Protected
	mux.Handle("GET /api/v1/messages/{id}", api(messageHandler.Get))
	mux.Handle("GET /api/v1/messages/{id}/reactions", api(messageHandler.Reactions))
	mux.Handle("GET /api/v1/channels/{id}/messages", api(messageHandler.List))
	mux.Handle("POST /api/v1/dm/conversations", api(dmHandler.OpenConversation))
	mux.Handle("GET /api/v1/users/{id}/presence", api(presenceHandler.Get))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           middleware.CORS(cfg.AllowedOrigins)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("node", cfg.NodeName).Str("broker", cfg.Broker).Str("store", cfg.StoreDriver).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Hijacked WebSocket connections are not tracked by srv.Shutdown.
		if err := gateway.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("websocket connections did not drain in time")
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (*repos, func(*service.AuthService), func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		store := memory.New()
		r := &repos{
			users:      store.Users(),
			workspaces: store.Workspaces(),
			channels:   store.Channels(),
			presence:   store.Presence(),
			messages:   store.Messages(),
			reactions:  store.Reactions(),
			dms:        store.DMs(),
		}
		seed := func(auth *service.AuthService) { seedDemo(store, auth) }
		return r, seed, func() {}, nil
	}

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	log.Info().Str("host", cfg.DBHost).Str("db", cfg.DBName).Msg("connected to database")

	r := &repos{
		users:      postgresrepo.NewUserRepo(pool),
		workspaces: postgresrepo.NewWorkspaceRepo(pool),
		channels:   postgresrepo.NewChannelRepo(pool),
		presence:   postgresrepo.NewPresenceRepo(pool),
		messages:   postgresrepo.NewMessageRepo(pool),
		reactions:  postgresrepo.NewReactionRepo(pool),
		dms:        postgresrepo.NewDMRepo(pool),
	}
	return r, nil, pool.Close, nil
}

func openBroker(cfg *config.Config) (pubsub.Broker, error) {
	switch cfg.Broker {
	case config.BrokerNATS:
		b, err := pubsub.NewNATS(cfg.NATSURL, cfg.BrokerPrefix, cfg.NodeName)
		if err != nil {
			return nil, err
		}
		log.Info().Str("url", cfg.NATSURL).Msg("connected to nats")
		return b, nil
	case config.BrokerRedis:
		b, err := pubsub.NewRedis(cfg.RedisURL, cfg.BrokerPrefix)
		if err != nil {
			return nil, err
		}
		log.Info().Str("addr", cfg.RedisURL).Msg("connected to redis")
		return b, nil
	}
	return pubsub.NewLocal(), nil
}
