package models

import (
	"encoding/json"
	"strings"
	"time"
)

// JobState is the lifecycle state of a fit job as recorded by the broker.
type JobState string

const (
	JobStatePending JobState = "PENDING"
	JobStateStarted JobState = "STARTED"
	JobStateSuccess JobState = "SUCCESS"
	JobStateFailure JobState = "FAILURE"
)

// Terminal reports whether no further transition is possible from s.
func (s JobState) Terminal() bool {
	return s == JobStateSuccess || s == JobStateFailure
}

// Status values returned to API clients.
const (
	JobStatusPending   = "pending"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// ClientStatus maps a broker state to the status string returned by the API.
// States without a dedicated mapping are reported lowercased.
func (s JobState) ClientStatus() string {
	switch s {
	case JobStatePending:
		return JobStatusPending
	case JobStateSuccess:
		return JobStatusCompleted
	case JobStateFailure:
		return JobStatusFailed
	default:
		return strings.ToLower(string(s))
	}
}

// Job tracks one asynchronous model fit. The API returns its ID on
// POST /run_mmm_async; clients poll /get_task_status until the state is terminal.
type Job struct {
	ID          string          `json:"id"`
	State       JobState        `json:"state"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Result      *JobResult      `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	Attempts    int             `json:"attempts"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// JobResult is recorded on SUCCESS. Large fit results live in the artifact
// store and only their name is kept here.
type JobResult struct {
	ModelFilename string          `json:"model_filename,omitempty"`
	Summary       string          `json:"summary,omitempty"`
	Raw           json.RawMessage `json:"raw,omitempty"`
}

// TaskMessage is the body pushed onto the broker queue for each job.
type TaskMessage struct {
	JobID      string          `json:"job_id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}
