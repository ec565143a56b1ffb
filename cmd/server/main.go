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
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpAdapter "github.com/iho/pspledger/internal/adapter/http"
	"github.com/iho/pspledger/internal/adapter/http/handler"
	"github.com/iho/pspledger/internal/adapter/http/middleware"
	postgresRepo "github.com/iho/pspledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/pspledger/internal/adapter/repository/redis"
	"github.com/iho/pspledger/internal/infrastructure/auth"
	"github.com/iho/pspledger/internal/infrastructure/config"
	"github.com/iho/pspledger/internal/infrastructure/eventpublisher"
	"github.com/iho/pspledger/internal/infrastructure/logger"
	"github.com/iho/pspledger/internal/infrastructure/metrics"
	"github.com/iho/pspledger/internal/infrastructure/postgres"
	"github.com/iho/pspledger/internal/infrastructure/redis"
	"github.com/iho/pspledger/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	lg := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Component: "server"})
	log.Logger = lg

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, lg zerolog.Logger) error {
	m := metrics.New()

	window, err := cfg.EditableWindow()
	if err != nil {
		return err
	}
	policy, err := cfg.OverridePolicy()
	if err != nil {
		return err
	}
	verifier, err := tokenVerifier(cfg)
	if err != nil {
		return err
	}

	pool, err := postgres.NewPoolWithConfig(ctx, poolConfig(cfg))
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()
	lg.Info().Msg("connected to postgres")

	if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, lg); err != nil {
		return err
	}

	redisClient, err := redis.NewClient(ctx, redis.Config{URL: cfg.RedisURL})
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()
	lg.Info().Msg("connected to redis")

	// Repositories
	txManager := postgresRepo.NewTxManager(pool, cfg.DatabaseLockTimeout)
	pspRepo := postgresRepo.NewPSPRepository(pool)
	txRepo := postgresRepo.NewTransactionRepository(pool)
	overrideRepo := postgresRepo.NewOverrideRepository(pool)
	auditRepo := postgresRepo.NewAuditRepository(pool)
	outboxRepo := postgresRepo.NewOutboxRepository(pool)

	cache := redisRepo.NewCache(redisClient)
	if n, err := cache.Flush(ctx); err != nil {
		lg.Warn().Err(err).Msg("flush snapshot cache")
	} else if n > 0 {
		lg.Info().Int("keys", n).Msg("flushed snapshot cache")
	}
	idempotencyStore := redisRepo.NewIdempotencyStore(redisClient)
	securityTokens := redisRepo.NewSecurityTokenStore(redisClient, cfg.SecurityTokenTTL)

	// Use cases
	overrideUC := usecase.NewOverrideUseCase(usecase.OverrideConfig{
		TxManager:    txManager,
		OverrideRepo: overrideRepo,
		AuditRepo:    auditRepo,
		OutboxRepo:   outboxRepo,
		PSPRepo:      pspRepo,
		IDGen:        postgresRepo.NewULIDGenerator(),
		Retrier:      postgresRepo.NewRetrier(lg, postgresRepo.RetrierConfig{Metrics: m}),
		Cache:        cache,
		Policy:       policy,
		Window:       window,
		SnapshotTTL:  cfg.SnapshotCacheTTL,
		Logger:       lg,
		Metrics:      m,
	})
	ledgerUC := usecase.NewLedgerUseCase(txRepo, pspRepo, overrideUC, m)
	auditUC := usecase.NewAuditUseCase(auditRepo, cfg.AuditExportBatchSize, lg, m)
	bulkUC := usecase.NewBulkAllocationUseCase(overrideUC, ledgerUC, overrideUC, cfg.BulkConcurrency, lg, m)

	var sink eventpublisher.Sink = redisRepo.NewPublisher(redisClient, cfg.EventChannel)
	if cfg.EventSink == "log" {
		sink = eventpublisher.NewLogSink(lg)
	}
	relay := eventpublisher.NewRelay(eventpublisher.Config{
		Outbox:    outboxRepo,
		Sink:      sink,
		Logger:    lg,
		Metrics:   m,
		Interval:  cfg.OutboxPollInterval,
		Retention: cfg.OutboxRetention,
	})
	go func() {
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			lg.Error().Err(err).Msg("outbox relay stopped")
		}
	}()

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, m)

	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		PSPHandler:        handler.NewPSPHandler(ledgerUC, ledgerUC),
		OverrideHandler:   handler.NewOverrideHandler(overrideUC),
		AllocationHandler: handler.NewAllocationHandler(bulkUC),
		LedgerHandler:     handler.NewLedgerHandler(ledgerUC),
		AuditHandler:      handler.NewAuditHandler(auditUC),
		SessionHandler:    handler.NewSessionHandler(securityTokens),
		HealthHandler: handler.NewHealthHandler(
			handler.Check{Name: "postgres", Pinger: handler.PingFunc(pool.Ping)},
			handler.Check{Name: "redis", Pinger: handler.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })},
		),
		Logger:             lg,
		Metrics:            m,
		MetricsHandler:     promhttp.Handler(),
		TokenVerifier:      verifier,
		SecurityTokens:     securityTokens,
		IdempotencyStore:   idempotencyStore,
		IdempotencyTTL:     cfg.IdempotencyTTL,
		RateLimiter:        limiter,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	server := newHTTPServer(cfg, router)

	errCh := make(chan error, 1)
	go func() {
		lg.Info().
			Str("port", cfg.HTTPPort).
			Bool("auth", cfg.AuthEnabled).
			Str("timezone", cfg.LedgerTimezone).
			Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	lg.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	lg.Info().Msg("server stopped")
	return nil
}

func poolConfig(cfg *config.Config) postgres.PoolConfig {
	return postgres.PoolConfig{
		DatabaseURL:    cfg.DatabaseURL,
		MaxConns:       cfg.DatabaseMaxConns,
		MinConns:       cfg.DatabaseMinConns,
		ConnectTimeout: cfg.DatabaseTimeout,
	}
}

// tokenVerifier returns nil when authentication is disabled.
func tokenVerifier(cfg *config.Config) (middleware.TokenVerifier, error) {
	if !cfg.AuthEnabled {
		return nil, nil
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("AUTH_ENABLED requires JWT_SECRET")
	}
	return auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration), nil
}

func newHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      h,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}
}

