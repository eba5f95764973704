// Package main is the entrypoint for the mmmqueue compute backend. Workers
// configured with CLOUD_RUN_URL forward fits to its POST /run_mmm.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/kiranshivaraju/mmmqueue/internal/api"
	"github.com/kiranshivaraju/mmmqueue/internal/api/handler"
	mw "github.com/kiranshivaraju/mmmqueue/internal/api/middleware"
	"github.com/kiranshivaraju/mmmqueue/internal/artifact"
	"github.com/kiranshivaraju/mmmqueue/internal/backoff"
	"github.com/kiranshivaraju/mmmqueue/internal/codec"
	"github.com/kiranshivaraju/mmmqueue/internal/config"
	"github.com/kiranshivaraju/mmmqueue/internal/dataset"
	"github.com/kiranshivaraju/mmmqueue/internal/fit"
	"github.com/kiranshivaraju/mmmqueue/internal/pipeline"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("compute backend failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateCompute(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "identity", cfg.Dispatch.ComputeAudience != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := codec.New(codec.NameMsgpack, codec.WithCompression())
	if err != nil {
		return fmt.Errorf("create codec: %w", err)
	}

	pool, err := artifact.Connect(ctx, artifact.ConnectConfig{
		Database:   cfg.Database,
		Strategy:   backoff.NewExponentialWithJitter(cfg.Broker.RetryInitial, cfg.Broker.RetryMax),
		MaxRetries: cfg.Broker.MaxRetries,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := artifact.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database connected")

	resolver := dataset.NewResolver(dataset.NewFetcher(cfg.Fetch.Timeout, cfg.Fetch.UserAgent))
	local := pipeline.NewLocal(resolver, fit.NewBaseline(), artifact.NewPostgresStore(pool, cfg.Artifact.Bucket), c)

	deps := api.ComputeDependencies{
		HealthHandler: handler.NewHealthHandler(),
		RunHandler:    handler.NewComputeHandler(local, cfg.Server.MaxBodyBytes, pipeline.IsInputError),
	}
	if aud := cfg.Dispatch.ComputeAudience; aud != "" {
		deps.Identity = mw.IdentityToken(aud, mw.GoogleTokenValidator)
	}

	return api.Serve(ctx, cfg.Server.Port, api.NewComputeRouter(deps),
		api.WithWriteTimeout(cfg.Worker.TaskTimeLimit+time.Minute))
}
