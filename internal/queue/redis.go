package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/mmmqueue/internal/backoff"
	"github.com/kiranshivaraju/mmmqueue/internal/codec"
	"github.com/kiranshivaraju/mmmqueue/internal/metrics"
	"github.com/kiranshivaraju/mmmqueue/pkg/models"
	"github.com/redis/go-redis/v9"
)

const defaultRetention = 24 * time.Hour

// RedisQueue implements Broker on Redis lists and hashes. Pending and
// processing lists give at-least-once delivery; per-job hashes hold state,
// result and error, and expire after the retention window.
type RedisQueue struct {
	client    *redis.Client
	codec     codec.Codec
	keys      keys
	retention time.Duration
}

// Option configures a RedisQueue.
type Option func(*RedisQueue)

func WithCodec(c codec.Codec) Option {
	return func(q *RedisQueue) { q.codec = c }
}

func WithRetention(d time.Duration) Option {
	return func(q *RedisQueue) {
		if d > 0 {
			q.retention = d
		}
	}
}

func WithKeyPrefix(prefix string) Option {
	return func(q *RedisQueue) { q.keys = keys{prefix: prefix} }
}

// NewRedisQueue wraps an existing client.
func NewRedisQueue(client *redis.Client, opts ...Option) *RedisQueue {
	q := &RedisQueue{
		client:    client,
		codec:     codec.Default(),
		keys:      keys{prefix: DefaultKeyPrefix},
		retention: defaultRetention,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// DialConfig controls the connect-retry loop of Dial.
type DialConfig struct {
	URL        string
	Strategy   backoff.Strategy
	MaxRetries int // 0 retries forever
}

// Dial connects to the broker, retrying PING with the configured backoff
// until it answers, the retries are exhausted, or ctx is done.
func Dial(ctx context.Context, cfg DialConfig, opts ...Option) (*RedisQueue, error) {
	redisOpts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse broker URL: %w", err)
	}
	client := redis.NewClient(redisOpts)

	strategy := cfg.Strategy
	if strategy == nil {
		strategy = backoff.DefaultStrategy()
	}

	err = backoff.Retry(ctx, strategy, cfg.MaxRetries,
		func(attempt int, err error, wait time.Duration) {
			metrics.BrokerReconnects.Inc()
			slog.Warn("broker unavailable, retrying",
				"attempt", attempt, "error", err, "retry_in", wait.String())
		},
		func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connect broker: %w", err)
	}

	return NewRedisQueue(client, opts...), nil
}

// Client exposes the underlying client so caches can share the connection pool.
func (q *RedisQueue) Client() *redis.Client { return q.client }

func (q *RedisQueue) Close() error { return q.client.Close() }

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Enqueue(ctx context.Context, payload json.RawMessage) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	msg, err := q.codec.Encode(models.TaskMessage{JobID: id, Payload: payload, EnqueuedAt: now})
	if err != nil {
		return "", fmt.Errorf("encode task message: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.keys.job(id),
		"state", string(models.JobStatePending),
		"payload", []byte(payload),
		"attempts", 0,
		"created_at", formatTime(now),
	)
	pipe.Expire(ctx, q.keys.job(id), q.retention)
	pipe.LPush(ctx, q.keys.pending(), msg)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return id, nil
}

func (q *RedisQueue) Get(ctx context.Context, id string) (*models.Job, error) {
	fields, err := q.client.HGetAll(ctx, q.keys.job(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return q.jobFromHash(id, fields)
}

func (q *RedisQueue) Claim(ctx context.Context, wait time.Duration) (*Delivery, error) {
	raw, err := q.client.BLMove(ctx, q.keys.pending(), q.keys.processing(), "RIGHT", "LEFT", wait).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim task: %w", err)
	}

	var msg models.TaskMessage
	if err := q.codec.Decode([]byte(raw), &msg); err != nil {
		_ = q.client.LRem(ctx, q.keys.processing(), 1, raw).Err()
		return nil, fmt.Errorf("drop undecodable task message: %w", err)
	}

	res, err := claimScript.Run(ctx, q.client, []string{q.keys.job(msg.JobID)}, formatTime(time.Now().UTC())).Slice()
	if errors.Is(err, redis.Nil) {
		// Job hash expired before the task was consumed.
		_ = q.client.LRem(ctx, q.keys.processing(), 1, raw).Err()
		slog.Warn("dropping task for expired job", "job_id", msg.JobID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mark job started: %w", err)
	}

	prev := models.JobState(fmt.Sprint(res[0]))
	if prev.Terminal() {
		_ = q.client.LRem(ctx, q.keys.processing(), 1, raw).Err()
		slog.Info("skipping redelivered task for finished job", "job_id", msg.JobID, "state", prev)
		return nil, nil
	}

	attempts, _ := res[1].(int64)
	return &Delivery{Message: msg, Attempt: int(attempts), raw: raw}, nil
}

func (q *RedisQueue) Complete(ctx context.Context, d *Delivery, result *models.JobResult) error {
	encoded, err := q.codec.Encode(result)
	if err != nil {
		return fmt.Errorf("encode job result: %w", err)
	}
	return q.finish(ctx, d, models.JobStateSuccess, encoded, "")
}

func (q *RedisQueue) Fail(ctx context.Context, d *Delivery, reason string) error {
	return q.finish(ctx, d, models.JobStateFailure, nil, reason)
}

func (q *RedisQueue) finish(ctx context.Context, d *Delivery, state models.JobState, result []byte, reason string) error {
	n, err := finishScript.Run(ctx, q.client,
		[]string{q.keys.job(d.Message.JobID), q.keys.processing()},
		string(state), result, reason, formatTime(time.Now().UTC()), d.raw, int64(q.retention.Seconds()),
	).Int64()
	if err != nil {
		return fmt.Errorf("record %s: %w", state, err)
	}
	switch n {
	case -1:
		return ErrNotFound
	case 0:
		return fmt.Errorf("%w: -> %s", ErrInvalidTransition, state)
	}
	return nil
}

func (q *RedisQueue) Recover(ctx context.Context, staleAfter time.Duration) (int, error) {
	raws, err := q.client.LRange(ctx, q.keys.processing(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("list processing: %w", err)
	}

	cutoff := time.Now().UTC().Add(-staleAfter)
	requeued := 0
	for _, raw := range raws {
		var msg models.TaskMessage
		if err := q.codec.Decode([]byte(raw), &msg); err != nil {
			_ = q.client.LRem(ctx, q.keys.processing(), 1, raw).Err()
			continue
		}

		vals, err := q.client.HMGet(ctx, q.keys.job(msg.JobID), "state", "started_at").Result()
		if err != nil {
			return requeued, fmt.Errorf("read job %s: %w", msg.JobID, err)
		}
		state, _ := vals[0].(string)
		startedAt, _ := vals[1].(string)

		if state == "" || models.JobState(state).Terminal() {
			_ = q.client.LRem(ctx, q.keys.processing(), 1, raw).Err()
			continue
		}

		since := msg.EnqueuedAt
		if t, ok := parseTime(startedAt); ok {
			since = t
		}
		if since.After(cutoff) {
			continue
		}

		n, err := requeueScript.Run(ctx, q.client,
			[]string{q.keys.processing(), q.keys.pending()}, raw).Int64()
		if err != nil {
			return requeued, fmt.Errorf("requeue job %s: %w", msg.JobID, err)
		}
		if n == 1 {
			requeued++
			slog.Warn("requeued stale delivery", "job_id", msg.JobID, "since", since)
		}
	}
	return requeued, nil
}

func (q *RedisQueue) jobFromHash(id string, f map[string]string) (*models.Job, error) {
	job := &models.Job{
		ID:    id,
		State: models.JobState(f["state"]),
		Error: f["error"],
	}
	if p := f["payload"]; p != "" {
		job.Payload = json.RawMessage(p)
	}
	job.Attempts, _ = strconv.Atoi(f["attempts"])
	if t, ok := parseTime(f["created_at"]); ok {
		job.CreatedAt = t
	}
	if t, ok := parseTime(f["started_at"]); ok {
		job.StartedAt = &t
	}
	if t, ok := parseTime(f["completed_at"]); ok {
		job.CompletedAt = &t
	}
	if r := f["result"]; r != "" {
		var res models.JobResult
		if err := q.codec.Decode([]byte(r), &res); err != nil {
			return nil, fmt.Errorf("decode result of job %s: %w", id, err)
		}
		job.Result = &res
	}
	return job, nil
}

func formatTime(t time.Time) string { return t.Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

var _ Broker = (*RedisQueue)(nil)
