package upload

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Task is one attempt of a retried operation. It reports whether a failure
// may be retried.
type Task func(ctx context.Context) (retry bool, err error)

// ExponentialBackoff retries a Task with exponentially growing intervals and
// optional jitter.
type ExponentialBackoff struct {
	// MaxAttempts caps the number of attempts; 0 means unlimited and 1
	// disables retries.
	MaxAttempts int

	// MinInterval is the first retry interval (before jitter). Defaults to 30s.
	MinInterval time.Duration

	// MaxInterval caps the retry interval (before jitter). Defaults to 10m.
	MaxInterval time.Duration

	// NoJitter removes the default ±5% jitter.
	NoJitter bool

	Logger *slog.Logger

	// after is replaced in tests.
	after func(time.Duration) <-chan time.Time
}

// Start runs task until it succeeds, reports a non-retryable failure, runs
// out of attempts, or ctx is done.
func (e *ExponentialBackoff) Start(ctx context.Context, name string, task Task) error {
	log := e.Logger
	if log == nil {
		log = slog.Default()
	}
	after := e.after
	if after == nil {
		after = time.After
	}

	for attempt := 1; ; attempt++ {
		log.Debug("attempt", "task", name, "attempt", attempt)
		retry, err := task(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info("succeeded after retry", "task", name, "attempt", attempt)
			}
			return nil
		}

		interval := e.interval(ctx, attempt, retry)
		if interval == 0 {
			log.Error("giving up", "task", name, "attempt", attempt, "error", err)
			return err
		}
		log.Warn("attempt failed, retrying", "task", name, "attempt", attempt, "in", interval, "error", err)

		select {
		case <-after(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// interval returns the wait before the next attempt, or 0 to stop.
func (e *ExponentialBackoff) interval(ctx context.Context, attempt int, retry bool) time.Duration {
	switch {
	case !retry,
		attempt == e.MaxAttempts,
		ctx.Err() != nil:
		return 0
	}

	minInterval := e.MinInterval
	if minInterval <= 0 {
		minInterval = 30 * time.Second
	}
	maxInterval := e.MaxInterval
	if maxInterval <= 0 {
		maxInterval = 10 * time.Minute
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}

	factor := math.Pow(2, math.Min(
		float64(attempt-1),
		math.Log2(float64(maxInterval)/float64(minInterval)),
	))
	if !e.NoJitter {
		// #nosec G404
		factor *= .95 + .1*rand.Float64()
	}
	return time.Duration(factor * float64(minInterval))
}
