// Package resilience provides bounded retry and ordered fallback for provider
// calls.
//
// The retry policy is deliberately narrow: connection failures, timeouts, and
// 5xx responses are retried with exponential backoff; authentication failures
// and client errors surface immediately. Providers classify their own errors
// by wrapping them with [Permanent] (or [ErrAuth]) before returning.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Default retry parameters.
const (
	defaultMaxAttempts = 3
	defaultBackoff     = 500 * time.Millisecond
	defaultMaxBackoff  = 5 * time.Second
)

// ErrAuth marks an authentication failure (401/403 or an invalid key).
// Errors wrapping ErrAuth are never retried.
var ErrAuth = errors.New("authentication failed")

// permanentError wraps an error that must not be retried.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as non-retryable. Retry unwraps and returns the
// original error after the first attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with [Permanent] or wraps
// [ErrAuth].
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p) || errors.Is(err, ErrAuth)
}

// RetryConfig configures [Retry] and [RetryResult].
type RetryConfig struct {
	// MaxAttempts is the total number of tries including the first.
	// Defaults to 3 if zero.
	MaxAttempts int

	// Backoff is the delay before the second attempt. It doubles per
	// attempt up to MaxBackoff. Defaults to 500ms if zero.
	Backoff time.Duration

	// MaxBackoff caps the backoff growth. Defaults to 5s if zero.
	MaxBackoff time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.Backoff <= 0 {
		c.Backoff = defaultBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	return c
}

// Retry runs op up to cfg.MaxAttempts times with exponential backoff between
// attempts. It stops early on success, on a [Permanent] error (which is
// unwrapped), or when ctx is cancelled.
func Retry(ctx context.Context, cfg RetryConfig, op func(context.Context) error) error {
	_, err := RetryResult(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// RetryResult is [Retry] for operations that return a value. This is a
// package-level function because Go does not support method-level type
// parameters.
func RetryResult[T any](ctx context.Context, cfg RetryConfig, op func(context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var (
		zero    T
		lastErr error
	)
	backoff := cfg.Backoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		var p *permanentError
		if errors.As(err, &p) {
			return zero, p.err
		}
		if errors.Is(err, ErrAuth) || ctx.Err() != nil {
			return zero, err
		}

		lastErr = err
		if attempt == cfg.MaxAttempts {
			break
		}

		slog.Debug("retrying after transient error",
			"attempt", attempt, "backoff", backoff, "error", err)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		backoff = min(backoff*2, cfg.MaxBackoff)
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", cfg.MaxAttempts, lastErr)
}

// ClassifyStatus wraps err according to an HTTP status code: 401 and 403
// become permanent auth errors, other 4xx become permanent, and everything
// else (0, 408, 429, 5xx) stays retryable.
func ClassifyStatus(status int, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case status == 401 || status == 403:
		return Permanent(fmt.Errorf("%w: %v", ErrAuth, err))
	case status == 408 || status == 429:
		return err
	case status >= 400 && status < 500:
		return Permanent(err)
	default:
		return err
	}
}
