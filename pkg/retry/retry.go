package retry

import (
	"context"
	"fmt"
	"time"

	"TradeOps/pkg/logger"
)

// Options bounds a retried operation. Zero values fall back to defaults.
type Options struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
}

// DefaultOptions returns the standard 3 attempts / 1s / x2 policy.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:   3,
		InitialDelay:  1 * time.Second,
		BackoffFactor: 2.0,
	}
}

func (o Options) normalized() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = 1 * time.Second
	}
	if o.BackoffFactor <= 1 {
		o.BackoffFactor = 2.0
	}
	return o
}

// Delay returns the wait before the next attempt: InitialDelay * factor^(attempt-1).
// attempt is 1-based (the attempt that just failed).
func (o Options) Delay(attempt int) time.Duration {
	o = o.normalized()
	if attempt <= 0 {
		attempt = 1
	}
	d := float64(o.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= o.BackoffFactor
	}
	return time.Duration(d)
}

// ExhaustedError reports that all attempts failed, carrying the last failure.
type ExhaustedError struct {
	Name     string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %d attempts exhausted: %v", e.Name, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Do runs op with bounded exponential-backoff retry. On success at any
// attempt the result is returned immediately. On exhaustion the caller gets
// an *ExhaustedError wrapping the last failure. Each failed attempt is
// logged with the attempt number and name before sleeping. Do holds no
// state across calls and is safe for concurrent use.
func Do[T any](ctx context.Context, l *logger.Logger, name string, opts Options, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	opts = opts.normalized()

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if l != nil {
			l.Warn("operation failed",
				logger.String("op", name),
				logger.Int("attempt", attempt),
				logger.Int("max_attempts", opts.MaxAttempts),
				logger.Error(err))
		}

		if attempt == opts.MaxAttempts {
			break
		}
		if err := sleep(ctx, opts.Delay(attempt)); err != nil {
			return zero, err
		}
	}

	return zero, &ExhaustedError{Name: name, Attempts: opts.MaxAttempts, Last: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
