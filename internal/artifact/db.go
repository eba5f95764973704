package artifact

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/mmmqueue/internal/backoff"
	"github.com/kiranshivaraju/mmmqueue/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ConnectConfig controls the pool and the connect-retry loop of Connect.
type ConnectConfig struct {
	Database   config.DatabaseConfig
	Strategy   backoff.Strategy
	MaxRetries int // 0 retries forever
}

// Connect opens a pool for the artifact database and pings it, retrying
// with the configured backoff while the database is starting. A malformed
// URL fails immediately.
func Connect(ctx context.Context, cfg ConnectConfig) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg.Database)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	strategy := cfg.Strategy
	if strategy == nil {
		strategy = backoff.DefaultStrategy()
	}
	err = backoff.Retry(ctx, strategy, cfg.MaxRetries,
		func(attempt int, err error, wait time.Duration) {
			slog.Warn("artifact database unavailable, retrying",
				"attempt", attempt, "error", err, "retry_in", wait.String())
		},
		pool.Ping)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	poolCfg.MinConns = int32(min(cfg.MaxIdleConns, int(poolCfg.MaxConns)))
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if _, ok := poolCfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	return poolCfg, nil
}

const applicationName = "mmmqueue"

// RunMigrations applies the embedded schema migrations. Applying them to an
// up-to-date database is a no-op.
func RunMigrations(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// migrateURL rewrites a postgres URL to the scheme of the pgx/v5 migrate driver.
func migrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}
