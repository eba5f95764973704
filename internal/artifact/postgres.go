package artifact

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a bytea table, scoped to one bucket.
type PostgresStore struct {
	pool    *pgxpool.Pool
	bucket  string
	newName NameFunc
}

// NewPostgresStore creates a PostgresStore for bucket.
func NewPostgresStore(pool *pgxpool.Pool, bucket string) *PostgresStore {
	return &PostgresStore{pool: pool, bucket: bucket, newName: DefaultNameFunc}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Upload(ctx context.Context, data []byte, contentType string) (string, error) {
	name := s.newName(time.Now())

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO artifacts (bucket, name, content_type, size_bytes, data, created_at)
		 VALUES ($1, $2, $3, $4, $5, NOW())
		 ON CONFLICT (bucket, name) DO NOTHING`,
		s.bucket, name, contentType, int64(len(data)), data)
	if err != nil {
		if isDuplicateKeyError(err) {
			return "", ErrDuplicateKey
		}
		return "", fmt.Errorf("upload artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", ErrDuplicateKey
	}
	return name, nil
}

func (s *PostgresStore) Download(ctx context.Context, name string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM artifacts WHERE bucket = $1 AND name = $2`, s.bucket, name,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("download artifact: %w", err)
	}
	return data, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ Store = (*PostgresStore)(nil)
