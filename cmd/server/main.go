// Package main is the entrypoint for the mmmqueue API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/kiranshivaraju/mmmqueue/internal/api"
	"github.com/kiranshivaraju/mmmqueue/internal/api/handler"
	mw "github.com/kiranshivaraju/mmmqueue/internal/api/middleware"
	"github.com/kiranshivaraju/mmmqueue/internal/artifact"
	"github.com/kiranshivaraju/mmmqueue/internal/backoff"
	"github.com/kiranshivaraju/mmmqueue/internal/cache"
	"github.com/kiranshivaraju/mmmqueue/internal/codec"
	"github.com/kiranshivaraju/mmmqueue/internal/config"
	"github.com/kiranshivaraju/mmmqueue/internal/metrics"
	"github.com/kiranshivaraju/mmmqueue/internal/queue"
	"github.com/kiranshivaraju/mmmqueue/internal/schema"
	"github.com/kiranshivaraju/mmmqueue/internal/service"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "remote_dispatch", cfg.RemoteDispatch())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Request schema
	validator, err := schema.Load()
	if err != nil {
		return fmt.Errorf("load request schema: %w", err)
	}

	c, err := codec.New(codec.NameMsgpack, codec.WithCompression())
	if err != nil {
		return fmt.Errorf("create codec: %w", err)
	}

	// 3. Connect to the artifact database and apply migrations
	pool, err := artifact.Connect(ctx, artifact.ConnectConfig{
		Database:   cfg.Database,
		Strategy:   backoff.NewExponentialWithJitter(cfg.Broker.RetryInitial, cfg.Broker.RetryMax),
		MaxRetries: cfg.Broker.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	if err := artifact.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Connect to the broker; the cache shares its connection pool
	broker, err := queue.Dial(ctx, queue.DialConfig{
		URL:        cfg.Redis.URL,
		Strategy:   backoff.NewExponentialWithJitter(cfg.Broker.RetryInitial, cfg.Broker.RetryMax),
		MaxRetries: cfg.Broker.MaxRetries,
	}, queue.WithCodec(c), queue.WithRetention(cfg.Broker.JobRetention))
	if err != nil {
		return err
	}
	defer broker.Close()
	slog.Info("broker connected")

	redisCache := cache.NewRedisCacheFromClient(broker.Client())

	// 5. Build router with dependencies
	store := artifact.NewPostgresStore(pool, cfg.Artifact.Bucket)
	jobs := service.NewJobs(broker, store, redisCache, c, cfg.Server.SummaryCacheTTL)

	deps := api.Dependencies{
		Auth:      mw.NewAuth(cfg.Auth),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMinute),

		HealthHandler:  handler.NewHealthHandler(),
		ReadyHandler:   handler.NewReadyHandler(jobs),
		SpecHandler:    handler.NewSpecHandler(schema.Document()),
		MetricsHandler: metrics.Handler(),
		SubmitHandler:  handler.NewSubmitHandler(validator, jobs, cfg.Server.MaxBodyBytes),
		StatusHandler:  handler.NewStatusHandler(jobs),
		SummaryHandler: handler.NewSummaryHandler(jobs),
	}

	return api.Serve(ctx, cfg.Server.Port, api.NewRouter(deps))
}
