// Package retry provides timeout-bounded retry logic for external service calls.
//
// Usage:
//
//	err := retry.Do(ctx, retry.Config{MaxAttempts: 3, AttemptTimeout: 30 * time.Second}, func(ctx context.Context) error {
//	    return client.Call(ctx)
//	})
package retry

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"
)

// Kind classifies why an attempt failed. The classification is recorded in
// logs only; it never changes retry eligibility.
type Kind string

const (
	// KindTimeout means the attempt exceeded its per-attempt deadline.
	KindTimeout Kind = "timeout"
	// KindAPI means the remote service answered with an error status.
	KindAPI Kind = "api"
	// KindOther covers everything else (connection resets, decode failures).
	KindOther Kind = "other"
)

// StatusError is an error reported by a remote API together with its HTTP
// status code. Clients wrap non-2xx responses in a StatusError so that retry
// logging can distinguish API rejections from transport failures.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return e.Message
}

// Classify maps err to a Kind for logging purposes.
func Classify(err error) Kind {
	var statusErr *StatusError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &statusErr):
		return KindAPI
	default:
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return KindTimeout
		}
		return KindOther
	}
}

// Config controls the retry behaviour.
type Config struct {
	// MaxAttempts is the total number of attempts (including the first).
	// Zero or negative values are treated as 1 (no retries).
	MaxAttempts int
	// AttemptTimeout bounds each individual attempt. When positive, fn runs
	// under a child context with this deadline. Zero means no per-attempt
	// deadline beyond whatever ctx already carries.
	AttemptTimeout time.Duration
	// InitialDelay is the wait before the second attempt. Zero means attempts
	// follow each other immediately; the attempt timeout is the only pacing.
	// When set, subsequent delays are doubled up to MaxDelay.
	InitialDelay time.Duration
	// MaxDelay caps the per-attempt wait. Ignored when InitialDelay is zero.
	MaxDelay time.Duration
	// ShouldRetry is an optional predicate that lets callers classify errors
	// as retryable. When nil, all non-nil errors are retried.
	ShouldRetry func(err error) bool
}

// Do calls fn up to cfg.MaxAttempts times, each attempt bounded by
// cfg.AttemptTimeout. It stops early when ctx is cancelled or fn returns nil.
// The error from the last attempt is returned unchanged so callers can
// inspect it with errors.Is/As.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = func(err error) bool { return true }
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = runAttempt(ctx, cfg.AttemptTimeout, fn)
		if lastErr == nil {
			return nil
		}

		slog.Warn("retry: attempt failed",
			"attempt", attempt,
			"remaining", cfg.MaxAttempts-attempt,
			"kind", Classify(lastErr),
			"err", lastErr)

		if !shouldRetry(lastErr) {
			return lastErr
		}

		if attempt < cfg.MaxAttempts {
			if delay > 0 {
				select {
				case <-ctx.Done():
					return errors.Join(lastErr, ctx.Err())
				case <-time.After(delay):
				}
				delay *= 2
				if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			}
		}
	}

	return lastErr
}

// runAttempt executes fn under the per-attempt deadline.
func runAttempt(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}
