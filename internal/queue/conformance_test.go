package queue_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/mmmqueue/internal/queue"
	"github.com/kiranshivaraju/mmmqueue/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runBrokerSuite checks the behavior every Broker implementation must share.
func runBrokerSuite(t *testing.T, newBroker func(t *testing.T) queue.Broker) {
	payload := json.RawMessage(`{"df":"date,tv,y\n2024-01-01,1,2","channel_columns":["tv"]}`)

	t.Run("enqueue records pending job", func(t *testing.T) {
		b := newBroker(t)
		ctx := context.Background()

		id, err := b.Enqueue(ctx, payload)
		require.NoError(t, err)
		require.NotEmpty(t, id)

		job, err := b.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatePending, job.State)
		assert.JSONEq(t, string(payload), string(job.Payload))
		assert.Nil(t, job.Result)
		assert.False(t, job.CreatedAt.IsZero())
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		b := newBroker(t)
		_, err := b.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, queue.ErrNotFound)
	})

	t.Run("claim marks started and complete records result", func(t *testing.T) {
		b := newBroker(t)
		ctx := context.Background()

		id, err := b.Enqueue(ctx, payload)
		require.NoError(t, err)

		d, err := b.Claim(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, d)
		assert.Equal(t, id, d.Message.JobID)
		assert.JSONEq(t, string(payload), string(d.Message.Payload))
		assert.Equal(t, 1, d.Attempt)

		job, err := b.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.JobStateStarted, job.State)
		assert.NotNil(t, job.StartedAt)

		result := &models.JobResult{ModelFilename: "mmm_model_x.msgpack", Summary: `{"columns":[]}`}
		require.NoError(t, b.Complete(ctx, d, result))

		job, err = b.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.JobStateSuccess, job.State)
		require.NotNil(t, job.Result)
		assert.Equal(t, result.ModelFilename, job.Result.ModelFilename)
		assert.Equal(t, result.Summary, job.Result.Summary)
		assert.NotNil(t, job.CompletedAt)
	})

	t.Run("fail records error", func(t *testing.T) {
		b := newBroker(t)
		ctx := context.Background()

		id, err := b.Enqueue(ctx, payload)
		require.NoError(t, err)
		d, err := b.Claim(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, d)

		require.NoError(t, b.Fail(ctx, d, "validate dataset: insufficient data"))

		job, err := b.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.JobStateFailure, job.State)
		assert.Equal(t, "validate dataset: insufficient data", job.Error)
		assert.Nil(t, job.Result)
	})

	t.Run("terminal state cannot change", func(t *testing.T) {
		b := newBroker(t)
		ctx := context.Background()

		id, err := b.Enqueue(ctx, payload)
		require.NoError(t, err)
		d, err := b.Claim(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, d)
		require.NoError(t, b.Complete(ctx, d, &models.JobResult{Summary: "s"}))

		err = b.Fail(ctx, d, "late failure")
		assert.ErrorIs(t, err, queue.ErrInvalidTransition)

		job, err := b.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.JobStateSuccess, job.State)
		assert.Empty(t, job.Error)
	})

	t.Run("claim times out on empty queue", func(t *testing.T) {
		b := newBroker(t)
		start := time.Now()
		d, err := b.Claim(context.Background(), 1*time.Second)
		require.NoError(t, err)
		assert.Nil(t, d)
		assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
	})

	t.Run("claim is FIFO", func(t *testing.T) {
		b := newBroker(t)
		ctx := context.Background()

		first, err := b.Enqueue(ctx, payload)
		require.NoError(t, err)
		second, err := b.Enqueue(ctx, payload)
		require.NoError(t, err)

		d1, err := b.Claim(ctx, time.Second)
		require.NoError(t, err)
		d2, err := b.Claim(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, first, d1.Message.JobID)
		assert.Equal(t, second, d2.Message.JobID)
	})

	t.Run("recover redelivers stale started job", func(t *testing.T) {
		b := newBroker(t)
		ctx := context.Background()

		id, err := b.Enqueue(ctx, payload)
		require.NoError(t, err)
		d, err := b.Claim(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, d)

		n, err := b.Recover(ctx, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 0, n, "fresh delivery must not be requeued")

		time.Sleep(20 * time.Millisecond)
		n, err = b.Recover(ctx, 10*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		job, err := b.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.JobStateStarted, job.State, "redelivery never returns a job to pending")

		again, err := b.Claim(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, again)
		assert.Equal(t, id, again.Message.JobID)
		assert.Equal(t, 2, again.Attempt)

		require.NoError(t, b.Complete(ctx, again, &models.JobResult{Summary: "ok"}))
		job, err = b.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.JobStateSuccess, job.State)
	})

	t.Run("recover drops finished deliveries", func(t *testing.T) {
		b := newBroker(t)
		ctx := context.Background()

		_, err := b.Enqueue(ctx, payload)
		require.NoError(t, err)
		d, err := b.Claim(ctx, time.Second)
		require.NoError(t, err)
		require.NoError(t, b.Complete(ctx, d, &models.JobResult{Summary: "ok"}))

		n, err := b.Recover(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		next, err := b.Claim(ctx, 1*time.Second)
		require.NoError(t, err)
		assert.Nil(t, next)
	})

	t.Run("concurrent claims deliver each job once", func(t *testing.T) {
		b := newBroker(t)
		ctx := context.Background()

		const n = 10
		ids := map[string]bool{}
		for i := 0; i < n; i++ {
			id, err := b.Enqueue(ctx, payload)
			require.NoError(t, err)
			ids[id] = true
		}
		require.Len(t, ids, n)

		var mu sync.Mutex
		claimed := map[string]int{}
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					d, err := b.Claim(ctx, 1*time.Second)
					if err != nil || d == nil {
						return
					}
					mu.Lock()
					claimed[d.Message.JobID]++
					mu.Unlock()
					assert.NoError(t, b.Complete(ctx, d, &models.JobResult{Summary: "ok"}))
				}
			}()
		}
		wg.Wait()

		assert.Len(t, claimed, n)
		for id, count := range claimed {
			assert.True(t, ids[id])
			assert.Equal(t, 1, count)
		}
	})
}

func TestMemoryQueue(t *testing.T) {
	runBrokerSuite(t, func(t *testing.T) queue.Broker {
		return queue.NewMemoryQueue()
	})
}

func TestMemoryQueue_ClaimWakesOnEnqueue(t *testing.T) {
	q := queue.NewMemoryQueue()
	ctx := context.Background()

	got := make(chan *queue.Delivery, 1)
	go func() {
		d, _ := q.Claim(ctx, 5*time.Second)
		got <- d
	}()

	time.Sleep(50 * time.Millisecond)
	id, err := q.Enqueue(ctx, json.RawMessage(`{}`))
	require.NoError(t, err)

	select {
	case d := <-got:
		require.NotNil(t, d)
		assert.Equal(t, id, d.Message.JobID)
	case <-time.After(2 * time.Second):
		t.Fatal("claim did not wake on enqueue")
	}
}

func TestMemoryQueue_ClaimHonorsContext(t *testing.T) {
	q := queue.NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Claim(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
