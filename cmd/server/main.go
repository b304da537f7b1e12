package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-gateway/internal/client/simulator"
	"github.com/openclaw/session-gateway/internal/config"
	"github.com/openclaw/session-gateway/internal/database"
	"github.com/openclaw/session-gateway/internal/handler"
	"github.com/openclaw/session-gateway/internal/jobs"
	"github.com/openclaw/session-gateway/internal/middleware"
	"github.com/openclaw/session-gateway/internal/redis"
	"github.com/openclaw/session-gateway/internal/registry"
	"github.com/openclaw/session-gateway/internal/repository"
	"github.com/openclaw/session-gateway/internal/service"
	"github.com/openclaw/session-gateway/internal/sse"
	"github.com/openclaw/session-gateway/internal/webhook"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	cancel()
	log.Info().Str("driver", db.Driver()).Msg("database connected")

	redisClient, err := redis.NewClient(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	broker := sse.NewBroker(redisClient)
	defer broker.Close()

	dispatcher := webhook.NewDispatcher(webhook.Config{
		DefaultKey: cfg.APIKey,
		UserAgent:  cfg.WebhookUserAgent,
		Timeout:    cfg.WebhookTimeout(),
		Workers:    cfg.WebhookWorkers,
		QueueSize:  cfg.WebhookQueueSize,
	})
	defer dispatcher.Close()

	reg := registry.New()
	provider := simulator.New(simulator.Config{
		PairAfter:   cfg.SimulatorPairAfter(),
		MaxSessions: cfg.SimulatorMaxSessions,
	})
	log.Info().Str("driver", cfg.ClientDriver).Msg("client driver selected")

	sessionRepo := repository.NewSessionRepository(db.DB)
	manager := service.NewSessionManager(sessionRepo, reg, provider, dispatcher, broker, service.ManagerConfig{})

	apiKeyMiddleware := middleware.NewAPIKeyMiddleware(cfg.APIKey)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(
		middleware.NewRedisRateLimiter(redisClient.Client, middleware.NewLocalRateLimiter()),
		cfg.RateLimitPerMin,
	)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	eventsHandler := handler.NewEventsHandler(broker, manager)
	sessionHandler := handler.NewSessionHandler(manager, eventsHandler)
	healthHandler := handler.NewHealthHandler(map[string]handler.HealthCheck{
		"database": db.Ping,
		"redis":    redisClient.Check,
	}, reg.Len)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(bodyLimitMiddleware.Handler)
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", healthHandler.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(apiKeyMiddleware.Handler)
		r.Use(rateLimitMiddleware.Handler)

		r.Mount("/session", sessionHandler.Routes())
		r.Get("/sessions", sessionHandler.List)
	})

	var sweepJob *jobs.SweepJob
	if interval := cfg.FlushInactiveInterval(); interval > 0 {
		sweepJob = jobs.NewSweepJob(manager, interval)
		sweepJob.Start()
	}

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	if sweepJob != nil {
		sweepJob.Stop()
	}

	manager.Shutdown(shutdownCtx)

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
