package worker

import (
	"context"
	"encoding/json"

	"github.com/kiranshivaraju/mmmqueue/internal/config"
	"github.com/kiranshivaraju/mmmqueue/internal/dispatch"
	"github.com/kiranshivaraju/mmmqueue/pkg/models"
)

// Runner executes one fit payload. Implementations should honor ctx, but
// the pool enforces its time limit either way.
type Runner interface {
	Run(ctx context.Context, payload json.RawMessage) (*models.JobResult, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, payload json.RawMessage) (*models.JobResult, error)

func (f RunnerFunc) Run(ctx context.Context, payload json.RawMessage) (*models.JobResult, error) {
	return f(ctx, payload)
}

// NewRunner returns the remote dispatcher when a compute backend is
// configured, and local otherwise. local is built lazily since it needs the
// artifact store, which a dispatching worker never opens.
func NewRunner(cfg config.DispatchConfig, tokens dispatch.TokenSource, local func() (Runner, error)) (Runner, error) {
	if cfg.CloudRunURL != "" {
		return dispatch.New(cfg.CloudRunURL, cfg.Timeout, tokens), nil
	}
	return local()
}
