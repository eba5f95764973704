// Package service implements the operations behind the HTTP API: submitting
// fits, polling them and reading back their summaries.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/mmmqueue/internal/artifact"
	"github.com/kiranshivaraju/mmmqueue/internal/cache"
	"github.com/kiranshivaraju/mmmqueue/internal/codec"
	"github.com/kiranshivaraju/mmmqueue/internal/fit"
	"github.com/kiranshivaraju/mmmqueue/internal/metrics"
	"github.com/kiranshivaraju/mmmqueue/internal/pipeline"
	"github.com/kiranshivaraju/mmmqueue/internal/queue"
	"github.com/kiranshivaraju/mmmqueue/pkg/models"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrUndecodable = errors.New("artifact could not be decoded")
)

// Jobs ties the broker, the artifact store and the summary cache together.
type Jobs struct {
	broker     queue.Broker
	store      artifact.Store
	cache      cache.Cache
	codec      codec.Codec
	summaryTTL time.Duration
}

// NewJobs creates a Jobs service. c decodes artifacts and must match the
// codec the workers upload with.
func NewJobs(broker queue.Broker, store artifact.Store, ca cache.Cache, c codec.Codec, summaryTTL time.Duration) *Jobs {
	return &Jobs{broker: broker, store: store, cache: ca, codec: c, summaryTTL: summaryTTL}
}

// StatusView is the client-facing state of a job.
type StatusView struct {
	Status        string `json:"status"`
	TaskID        string `json:"task_id"`
	ModelFilename string `json:"model_filename,omitempty"`
	Summary       string `json:"summary,omitempty"`
	Error         string `json:"error,omitempty"`
}

// SummaryView is the response of a summary lookup. Jobs that have not
// succeeded are echoed with their status only.
type SummaryView struct {
	Status        string `json:"status"`
	TaskID        string `json:"task_id,omitempty"`
	ModelFilename string `json:"model_filename,omitempty"`
	Summary       string `json:"summary,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Submit enqueues a validated fit payload and returns its task id.
func (s *Jobs) Submit(ctx context.Context, payload json.RawMessage) (string, error) {
	id, err := s.broker.Enqueue(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("enqueueing job: %w", err)
	}
	metrics.JobsSubmittedTotal.Inc()
	slog.Info("job submitted", "job_id", id, "payload_bytes", len(payload))
	return id, nil
}

// Status returns the current state of a job without blocking.
func (s *Jobs) Status(ctx context.Context, id string) (*StatusView, error) {
	job, err := s.job(ctx, id)
	if err != nil {
		return nil, err
	}
	v := &StatusView{Status: job.State.ClientStatus(), TaskID: job.ID}
	switch job.State {
	case models.JobStateSuccess:
		if job.Result != nil {
			v.ModelFilename = job.Result.ModelFilename
			v.Summary = job.Result.Summary
		}
	case models.JobStateFailure:
		v.Error = job.Error
	}
	return v, nil
}

// SummaryByTask returns the summary of a job's model.
func (s *Jobs) SummaryByTask(ctx context.Context, id string) (*SummaryView, error) {
	job, err := s.job(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case job.State == models.JobStateFailure:
		return &SummaryView{Status: job.State.ClientStatus(), TaskID: id, Error: job.Error}, nil
	case job.State != models.JobStateSuccess:
		return &SummaryView{Status: job.State.ClientStatus(), TaskID: id}, nil
	case job.Result == nil:
		return nil, fmt.Errorf("%w: job %s has no result", ErrNotFound, id)
	case job.Result.ModelFilename == "":
		// Remote backends may return the summary without an artifact.
		return &SummaryView{Status: models.JobStatusCompleted, TaskID: id, Summary: job.Result.Summary}, nil
	}

	v, err := s.SummaryByArtifact(ctx, job.Result.ModelFilename)
	if err != nil {
		return nil, err
	}
	v.TaskID = id
	return v, nil
}

// SummaryByArtifact downloads and decodes a model artifact and summarizes
// it. Summaries are cached by artifact name; artifacts never change.
func (s *Jobs) SummaryByArtifact(ctx context.Context, name string) (*SummaryView, error) {
	key := cache.SummaryKey(name)
	if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		return &SummaryView{Status: models.JobStatusCompleted, ModelFilename: name, Summary: string(cached)}, nil
	} else if err != nil {
		slog.Warn("summary cache unavailable", "error", err)
	}

	model, err := pipeline.LoadModel(ctx, s.store, s.codec, name)
	switch {
	case errors.Is(err, artifact.ErrNotFound):
		return nil, fmt.Errorf("%w: artifact %s", ErrNotFound, name)
	case errors.Is(err, codec.ErrDecode):
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	case err != nil:
		return nil, fmt.Errorf("loading artifact: %w", err)
	}

	summary, err := fit.ClientSummary(model)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, []byte(summary), s.summaryTTL); err != nil {
		slog.Warn("caching summary", "model_filename", name, "error", err)
	}
	return &SummaryView{Status: models.JobStatusCompleted, ModelFilename: name, Summary: summary}, nil
}

// Check pings every dependency and returns the status of each.
func (s *Jobs) Check(ctx context.Context) (map[string]string, bool) {
	checks := map[string]func(context.Context) error{
		"broker":    s.broker.Ping,
		"artifacts": s.store.Ping,
		"cache":     s.cache.Ping,
	}
	out := make(map[string]string, len(checks))
	healthy := true
	for name, ping := range checks {
		if err := ping(ctx); err != nil {
			out[name] = "error: " + err.Error()
			healthy = false
			continue
		}
		out[name] = "ok"
	}
	return out, healthy
}

func (s *Jobs) job(ctx context.Context, id string) (*models.Job, error) {
	job, err := s.broker.Get(ctx, id)
	if errors.Is(err, queue.ErrNotFound) {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading job: %w", err)
	}
	return job, nil
}
