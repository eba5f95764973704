// Package main is the entrypoint for the mmmqueue worker. It claims fit jobs
// from the broker and runs them in process or on the compute backend.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	_ "github.com/joho/godotenv/autoload"
	"github.com/kiranshivaraju/mmmqueue/internal/api"
	"github.com/kiranshivaraju/mmmqueue/internal/api/handler"
	"github.com/kiranshivaraju/mmmqueue/internal/artifact"
	"github.com/kiranshivaraju/mmmqueue/internal/backoff"
	"github.com/kiranshivaraju/mmmqueue/internal/codec"
	"github.com/kiranshivaraju/mmmqueue/internal/config"
	"github.com/kiranshivaraju/mmmqueue/internal/dataset"
	"github.com/kiranshivaraju/mmmqueue/internal/dispatch"
	"github.com/kiranshivaraju/mmmqueue/internal/fit"
	"github.com/kiranshivaraju/mmmqueue/internal/metrics"
	"github.com/kiranshivaraju/mmmqueue/internal/pipeline"
	"github.com/kiranshivaraju/mmmqueue/internal/queue"
	"github.com/kiranshivaraju/mmmqueue/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateWorker(); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "remote_dispatch", cfg.RemoteDispatch(),
		"concurrency", cfg.Worker.Concurrency)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := codec.New(codec.NameMsgpack, codec.WithCompression())
	if err != nil {
		return fmt.Errorf("create codec: %w", err)
	}

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

	// The artifact database is only opened when fits run in this process.
	var closeDB func()
	defer func() {
		if closeDB != nil {
			closeDB()
		}
	}()
	runner, err := worker.NewRunner(cfg.Dispatch, dispatch.GoogleTokenSource{}, func() (worker.Runner, error) {
		pool, err := artifact.Connect(ctx, artifact.ConnectConfig{
			Database:   cfg.Database,
			Strategy:   backoff.NewExponentialWithJitter(cfg.Broker.RetryInitial, cfg.Broker.RetryMax),
			MaxRetries: cfg.Broker.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		closeDB = pool.Close
		if err := artifact.RunMigrations(cfg.Database.URL); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database connected")

		resolver := dataset.NewResolver(dataset.NewFetcher(cfg.Fetch.Timeout, cfg.Fetch.UserAgent))
		store := artifact.NewPostgresStore(pool, cfg.Artifact.Bucket)
		return pipeline.NewLocal(resolver, fit.NewBaseline(), store, c), nil
	})
	if err != nil {
		return err
	}

	pool := worker.New(broker, runner,
		worker.WithConcurrency(cfg.Worker.Concurrency),
		worker.WithTimeLimit(cfg.Worker.TaskTimeLimit),
		worker.WithClaimWait(cfg.Worker.ClaimWait),
		worker.WithReaperInterval(cfg.Worker.ReaperInterval),
		worker.WithBackoff(backoff.NewExponentialWithJitter(cfg.Broker.RetryInitial, cfg.Broker.RetryMax)),
	)
	pool.Start(ctx)

	// Liveness, readiness and metrics for the orchestrator.
	r := chi.NewRouter()
	r.Get("/health", handler.NewHealthHandler())
	r.Get("/ready", handler.NewReadyHandler(pool))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	serveErr := api.Serve(ctx, cfg.Server.Port, r)

	// Jobs still running when the drain window closes stay STARTED and are
	// requeued by another worker's reaper.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.TaskTimeLimit)
	defer cancel()
	if err := pool.Stop(drainCtx); err != nil {
		slog.Warn("worker stopped before in-flight jobs finished", "error", err)
	}
	return serveErr
}
