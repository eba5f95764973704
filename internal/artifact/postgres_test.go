package artifact_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/mmmqueue/internal/artifact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("mmm_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, artifact.RunMigrations(connStr))
	// Second run must be a no-op.
	require.NoError(t, artifact.RunMigrations(connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool
}

func TestPostgresStore_UploadDownload(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := artifact.NewPostgresStore(pool, "bayes-gpt-models")
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))

	payload := []byte{0x4d, 0x51, 0x01, 0x02, 0x00, 0xff, 0x00, 0x10}
	name, err := s.Upload(ctx, payload, "application/vnd.msgpack")
	require.NoError(t, err)
	assert.Regexp(t, namePattern, name)

	data, err := s.Download(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	var contentType string
	var size int64
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT content_type, size_bytes FROM artifacts WHERE bucket = $1 AND name = $2`,
		"bayes-gpt-models", name).Scan(&contentType, &size))
	assert.Equal(t, int64(len(payload)), size)
	assert.Equal(t, "application/vnd.msgpack", contentType)
}

func TestPostgresStore_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	s := artifact.NewPostgresStore(pool, "bayes-gpt-models")

	_, err := s.Download(context.Background(), "mmm_model_nope.msgpack")
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestPostgresStore_BucketsAreIsolated(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool := setupTestDB(t)
	ctx := context.Background()

	a := artifact.NewPostgresStore(pool, "bucket-a")
	b := artifact.NewPostgresStore(pool, "bucket-b")

	name, err := a.Upload(ctx, []byte("a"), "application/octet-stream")
	require.NoError(t, err)

	_, err = b.Download(ctx, name)
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}
