// Package queue is the broker between the API and the workers. It carries
// task messages and doubles as the job registry the API polls.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kiranshivaraju/mmmqueue/pkg/models"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job state transition")
)

// Broker is implemented by RedisQueue and MemoryQueue.
type Broker interface {
	// Enqueue records a PENDING job and pushes its task message.
	Enqueue(ctx context.Context, payload json.RawMessage) (string, error)
	// Get returns the job, or ErrNotFound when the id is unknown or expired.
	Get(ctx context.Context, id string) (*models.Job, error)
	// Claim blocks up to wait for a task and marks its job STARTED.
	// It returns nil, nil when nothing was claimed.
	Claim(ctx context.Context, wait time.Duration) (*Delivery, error)
	Complete(ctx context.Context, d *Delivery, result *models.JobResult) error
	Fail(ctx context.Context, d *Delivery, reason string) error
	// Recover requeues deliveries whose worker has been silent longer than
	// staleAfter and returns how many were requeued.
	Recover(ctx context.Context, staleAfter time.Duration) (int, error)
	Ping(ctx context.Context) error
}

// Delivery is a claimed task.
type Delivery struct {
	Message models.TaskMessage
	Attempt int

	// raw is the exact element held in the processing list.
	raw string
}

// validTransitions lists the allowed moves out of each state.
// STARTED -> STARTED is a redelivery after a worker was lost.
var validTransitions = map[models.JobState][]models.JobState{
	models.JobStatePending: {models.JobStateStarted},
	models.JobStateStarted: {models.JobStateStarted, models.JobStateSuccess, models.JobStateFailure},
}

func canTransition(from, to models.JobState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
