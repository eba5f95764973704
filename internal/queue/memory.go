package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/mmmqueue/pkg/models"
)

// MemoryQueue is an in-process Broker with the same state rules as
// RedisQueue. It backs tests and single-process runs; jobs do not survive a
// restart.
type MemoryQueue struct {
	mu         sync.Mutex
	jobs       map[string]*models.Job
	pending    []models.TaskMessage
	processing map[string]time.Time
	wake       chan struct{}
}

// NewMemoryQueue creates an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		jobs:       make(map[string]*models.Job),
		processing: make(map[string]time.Time),
		wake:       make(chan struct{}),
	}
}

func (q *MemoryQueue) Ping(_ context.Context) error { return nil }

func (q *MemoryQueue) Enqueue(ctx context.Context, payload json.RawMessage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	now := time.Now().UTC()

	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs[id] = &models.Job{
		ID:        id,
		State:     models.JobStatePending,
		Payload:   append(json.RawMessage(nil), payload...),
		CreatedAt: now,
	}
	q.pending = append(q.pending, models.TaskMessage{JobID: id, Payload: payload, EnqueuedAt: now})
	q.broadcast()
	return id, nil
}

// broadcast wakes every blocked Claim. Callers hold q.mu.
func (q *MemoryQueue) broadcast() {
	close(q.wake)
	q.wake = make(chan struct{})
}

func (q *MemoryQueue) Get(_ context.Context, id string) (*models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(job), nil
}

func (q *MemoryQueue) Claim(ctx context.Context, wait time.Duration) (*Delivery, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		for len(q.pending) > 0 {
			msg := q.pending[0]
			q.pending = q.pending[1:]

			job, ok := q.jobs[msg.JobID]
			if !ok || job.State.Terminal() {
				continue
			}
			now := time.Now().UTC()
			job.State = models.JobStateStarted
			job.StartedAt = &now
			job.Attempts++
			q.processing[msg.JobID] = now
			attempt := job.Attempts
			q.mu.Unlock()
			return &Delivery{Message: msg, Attempt: attempt, raw: msg.JobID}, nil
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, nil
		case <-wake:
		}
	}
}

func (q *MemoryQueue) Complete(_ context.Context, d *Delivery, result *models.JobResult) error {
	return q.finish(d, models.JobStateSuccess, result, "")
}

func (q *MemoryQueue) Fail(_ context.Context, d *Delivery, reason string) error {
	return q.finish(d, models.JobStateFailure, nil, reason)
}

func (q *MemoryQueue) finish(d *Delivery, state models.JobState, result *models.JobResult, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.processing, d.raw)

	job, ok := q.jobs[d.Message.JobID]
	if !ok {
		return ErrNotFound
	}
	if !canTransition(job.State, state) {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	job.State = state
	job.CompletedAt = &now
	job.Error = reason
	if result != nil {
		r := *result
		job.Result = &r
	}
	return nil
}

func (q *MemoryQueue) Recover(_ context.Context, staleAfter time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := time.Now().UTC().Add(-staleAfter)
	requeued := 0
	for id, startedAt := range q.processing {
		job, ok := q.jobs[id]
		if !ok || job.State.Terminal() {
			delete(q.processing, id)
			continue
		}
		if startedAt.After(cutoff) {
			continue
		}
		delete(q.processing, id)
		q.pending = append([]models.TaskMessage{{JobID: id, Payload: job.Payload, EnqueuedAt: job.CreatedAt}}, q.pending...)
		requeued++
	}
	if requeued > 0 {
		q.broadcast()
	}
	return requeued, nil
}

func copyJob(j *models.Job) *models.Job {
	c := *j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	return &c
}

var _ Broker = (*MemoryQueue)(nil)
