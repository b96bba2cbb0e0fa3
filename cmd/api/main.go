package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riskguard/platform/internal/app"
	"github.com/riskguard/platform/internal/auth"
	"github.com/riskguard/platform/internal/guard"
	"github.com/riskguard/platform/internal/infra"
	"github.com/riskguard/platform/internal/repository"
	"github.com/riskguard/platform/internal/risk"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load config
	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if cfg.AutoMigrate {
		if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}

	// Connect to Postgres
	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	// Telemetry
	mp, shutdownMetrics, err := infra.NewMeterProvider(ctx, cfg.OTLPEndpoint, cfg.OTelServiceName, cfg.OTLPInsecure)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(flushCtx); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	}()
	metrics, err := risk.NewMetrics(mp.Meter("github.com/riskguard/platform/internal/risk"))
	if err != nil {
		return fmt.Errorf("init risk metrics: %w", err)
	}

	// Core
	pg := app.NewPostgres(pool, cfg.Risk(), metrics, logger)
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTSessionExpiry)
	limiter := guard.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow)
	authSvc := app.NewAuthService(pg.Core, pg.Accounts, jwtMgr, limiter, pg.Lockout, logger)

	router := app.NewRouter(app.RouterDeps{
		Core:        pg.Core,
		Auth:        authSvc,
		JWTMgr:      jwtMgr,
		Health:      pool,
		Limiter:     limiter,
		CORSOrigins: cfg.CORSOrigins(),
		Logger:      logger,
	})

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// no WriteTimeout: /sessions/stream is long-lived
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if cfg.OutboxRelayEnabled {
		producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
		defer producer.Close()
		relay := infra.NewOutboxRelay(pool, repository.NewOutboxRepository(), producer,
			guard.NewCircuitBreaker(5, 30*time.Second),
			infra.RelayConfig{
				Interval:    cfg.OutboxPollInterval,
				BatchSize:   cfg.OutboxBatchSize,
				TopicPrefix: cfg.KafkaTopicPrefix,
			}, logger)
		g.Go(func() error { return relay.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		pg.Core.Hub.Shutdown(shutdownCtx)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped gracefully")
	return nil
}
