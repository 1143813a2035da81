package retry

import (
	"context"
	"errors"
	"time"
)

// Policy configures bounded exponential backoff: at most MaxAttempts tries,
// giving up early once MaxElapsed has passed. The delay starts at
// InitialInterval, multiplies by Multiplier per attempt, and is capped at
// MaxInterval.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
	Multiplier      float64
}

// DefaultPolicy is a sane budget for calls against remote model providers.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     4,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     8 * time.Second,
		MaxElapsed:      30 * time.Second,
		Multiplier:      2.0,
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as not retryable; Do stops immediately and returns
// the wrapped error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs op under the policy, sleeping between attempts. It returns nil on
// the first success, the underlying error once op fails permanently or the
// budget is exhausted, and the context error if ctx ends first. The attempt
// count that was actually spent is returned either way.
func (p Policy) Do(ctx context.Context, op func() error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	interval := p.InitialInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 2.0
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = op()
		if lastErr == nil {
			return attempt, nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return attempt, perm.err
		}
		if attempt >= maxAttempts {
			return attempt, lastErr
		}
		if p.MaxElapsed > 0 && time.Since(start)+interval > p.MaxElapsed {
			return attempt, lastErr
		}

		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(interval):
		}

		interval = time.Duration(float64(interval) * multiplier)
		if p.MaxInterval > 0 && interval > p.MaxInterval {
			interval = p.MaxInterval
		}
	}
}
