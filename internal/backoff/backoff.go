// Package backoff provides retry delay strategies for broker reconnects.
package backoff

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	Delay(attempt int) time.Duration
}

// Constant always returns the same delay.
type Constant struct {
	Interval time.Duration
}

func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Exponential doubles the delay each attempt, capped at Max.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && d > float64(e.Max) {
		return e.Max
	}
	return time.Duration(d)
}

// ExponentialWithJitter returns a random delay in
// [0, min(Initial * 2^(attempt-1), Max)] so that many workers losing the
// broker at once do not reconnect in lockstep.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(e.Initial) * math.Pow(2, float64(attempt-1))
	if e.Max > 0 && base > float64(e.Max) {
		base = float64(e.Max)
	}
	return time.Duration(rand.Float64() * base) //nolint:gosec // jitter does not need crypto rand
}

// DefaultStrategy is ExponentialWithJitter with 1s initial and 30s max.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(1*time.Second, 30*time.Second)
}

// Retry calls fn until it succeeds, ctx is done, or maxAttempts calls have
// failed. maxAttempts <= 0 retries forever. onRetry, if non-nil, is called
// before each sleep.
func Retry(ctx context.Context, s Strategy, maxAttempts int, onRetry func(attempt int, err error, wait time.Duration), fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if maxAttempts > 0 && attempt >= maxAttempts {
			return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
		}

		wait := s.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
