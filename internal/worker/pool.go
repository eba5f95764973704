// Package worker runs queued fit jobs on a fixed number of goroutines.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/mmmqueue/internal/backoff"
	"github.com/kiranshivaraju/mmmqueue/internal/metrics"
	"github.com/kiranshivaraju/mmmqueue/internal/queue"
	"github.com/kiranshivaraju/mmmqueue/pkg/models"
)

var (
	ErrTimeLimit = errors.New("task exceeded time limit")
	ErrPanic     = errors.New("task panicked")
)

const (
	defaultConcurrency    = 2
	defaultTimeLimit      = 10 * time.Minute
	defaultClaimWait      = 5 * time.Second
	defaultReaperInterval = time.Minute
	defaultStaleGrace     = time.Minute
	finishTimeout         = 10 * time.Second
)

// Pool claims tasks from a broker and runs them.
type Pool struct {
	broker         queue.Broker
	runner         Runner
	concurrency    int
	timeLimit      time.Duration
	claimWait      time.Duration
	reaperInterval time.Duration
	staleGrace     time.Duration
	backoff        backoff.Strategy

	claimCtx  context.Context
	stopClaim context.CancelFunc
	jobCtx    context.Context
	abortJobs context.CancelFunc
	wg        sync.WaitGroup
}

// Option configures a Pool.
type Option func(*Pool)

func WithConcurrency(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithTimeLimit bounds the wall time of a single task.
func WithTimeLimit(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeLimit = d
		}
	}
}

func WithClaimWait(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.claimWait = d
		}
	}
}

// WithReaperInterval sets how often stale deliveries are requeued. Zero
// disables the reaper.
func WithReaperInterval(d time.Duration) Option {
	return func(p *Pool) { p.reaperInterval = d }
}

// WithStaleGrace is added to the time limit before a delivery counts as
// stale.
func WithStaleGrace(d time.Duration) Option {
	return func(p *Pool) { p.staleGrace = d }
}

func WithBackoff(s backoff.Strategy) Option {
	return func(p *Pool) { p.backoff = s }
}

// New creates a Pool. Call Start to begin claiming.
func New(broker queue.Broker, runner Runner, opts ...Option) *Pool {
	p := &Pool{
		broker:         broker,
		runner:         runner,
		concurrency:    defaultConcurrency,
		timeLimit:      defaultTimeLimit,
		claimWait:      defaultClaimWait,
		reaperInterval: defaultReaperInterval,
		staleGrace:     defaultStaleGrace,
		backoff:        backoff.DefaultStrategy(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers and the reaper. Cancelling ctx stops claiming
// but, like Stop, lets in-flight tasks finish.
func (p *Pool) Start(ctx context.Context) {
	p.claimCtx, p.stopClaim = context.WithCancel(ctx)
	p.jobCtx, p.abortJobs = context.WithCancel(context.WithoutCancel(ctx))

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.loop(i)
	}
	if p.reaperInterval > 0 {
		p.wg.Add(1)
		go p.reap()
	}
	slog.Info("worker pool started", "concurrency", p.concurrency, "time_limit", p.timeLimit.String())
}

// Stop stops claiming and waits for in-flight tasks. If ctx expires first,
// running tasks are abandoned without a terminal state so the reaper of a
// surviving worker can requeue them.
func (p *Pool) Stop(ctx context.Context) error {
	if p.stopClaim == nil {
		return nil
	}
	p.stopClaim()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.abortJobs()
		slog.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		p.abortJobs()
		<-done
		slog.Warn("worker pool stopped with tasks abandoned")
		return ctx.Err()
	}
}

func (p *Pool) loop(worker int) {
	defer p.wg.Done()

	failures := 0
	for p.claimCtx.Err() == nil {
		d, err := p.broker.Claim(p.claimCtx, p.claimWait)
		if err != nil {
			if p.claimCtx.Err() != nil {
				return
			}
			failures++
			wait := p.backoff.Delay(failures)
			slog.Warn("claim failed, backing off",
				"worker", worker,
				"attempt", failures,
				"wait", wait.String(),
				"error", err,
			)
			select {
			case <-time.After(wait):
			case <-p.claimCtx.Done():
				return
			}
			continue
		}
		failures = 0
		if d == nil {
			continue
		}
		p.execute(worker, d)
	}
}

func (p *Pool) execute(worker int, d *queue.Delivery) {
	jobID := d.Message.JobID
	start := time.Now()
	metrics.WorkersBusy.Inc()
	defer metrics.WorkersBusy.Dec()

	slog.Info("task started", "worker", worker, "job_id", jobID, "attempt", d.Attempt)

	ctx, cancel := context.WithTimeout(p.jobCtx, p.timeLimit)
	result, err := p.run(ctx, d.Message.Payload)
	cancel()

	if p.jobCtx.Err() != nil {
		slog.Warn("task abandoned on shutdown", "job_id", jobID)
		return
	}

	finishCtx, cancelFinish := context.WithTimeout(context.Background(), finishTimeout)
	defer cancelFinish()

	elapsed := time.Since(start)
	metrics.JobDuration.Observe(elapsed.Seconds())

	if err != nil {
		metrics.JobsFinishedTotal.WithLabelValues(string(models.JobStateFailure)).Inc()
		slog.Error("task failed", "job_id", jobID, "duration_ms", elapsed.Milliseconds(), "error", err)
		if ferr := p.broker.Fail(finishCtx, d, err.Error()); ferr != nil {
			slog.Error("recording task failure", "job_id", jobID, "error", ferr)
		}
		return
	}

	metrics.JobsFinishedTotal.WithLabelValues(string(models.JobStateSuccess)).Inc()
	slog.Info("task succeeded", "job_id", jobID, "duration_ms", elapsed.Milliseconds(), "model_filename", result.ModelFilename)
	if ferr := p.broker.Complete(finishCtx, d, result); ferr != nil {
		slog.Error("recording task success", "job_id", jobID, "error", ferr)
	}
}

type outcome struct {
	result *models.JobResult
	err    error
}

// run calls the runner on its own goroutine so the time limit holds even
// when the runner ignores ctx. A runner that never returns leaks its
// goroutine.
func (p *Pool) run(ctx context.Context, payload json.RawMessage) (*models.JobResult, error) {
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("%w: %v", ErrPanic, r)}
			}
		}()
		res, err := p.runner.Run(ctx, payload)
		if err == nil && res == nil {
			err = errors.New("runner returned no result")
		}
		ch <- outcome{result: res, err: err}
	}()

	select {
	case o := <-ch:
		if o.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, p.timeLimitError()
		}
		return o.result, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, p.timeLimitError()
		}
		return nil, ctx.Err()
	}
}

func (p *Pool) timeLimitError() error {
	return fmt.Errorf("%w of %s", ErrTimeLimit, p.timeLimit)
}

func (p *Pool) reap() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.reaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.claimCtx.Done():
			return
		case <-ticker.C:
			n, err := p.broker.Recover(p.claimCtx, p.timeLimit+p.staleGrace)
			if err != nil {
				if p.claimCtx.Err() == nil {
					slog.Warn("recovering stale tasks", "error", err)
				}
				continue
			}
			if n > 0 {
				slog.Info("requeued stale tasks", "count", n)
			}
		}
	}
}
