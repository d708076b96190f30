package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"gorm.io/gorm"

	"vip-access-bot/internal/config"
)

// RetryPolicy bounds every store call: each attempt gets its own timeout and
// failed attempts back off exponentially.
type RetryPolicy struct {
	Attempts int
	Timeout  time.Duration
	Min      time.Duration
	Max      time.Duration
}

func NewRetryPolicy(cfg config.Store) RetryPolicy {
	return RetryPolicy{
		Attempts: cfg.RetryAttempts,
		Timeout:  cfg.OpTimeout,
		Min:      100 * time.Millisecond,
		Max:      2 * time.Second,
	}
}

// withRetry runs fn until it succeeds, returns a non-retryable error or runs
// out of attempts. Exhausted retries are reported as ErrStoreUnavailable.
func withRetry[T any](ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := max(p.Attempts, 1)
	b := &backoff.Backoff{
		Min:    p.Min,
		Max:    p.Max,
		Factor: 2,
		Jitter: true,
	}

	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := attemptOnce(ctx, p.Timeout, fn)
		if err == nil {
			return res, nil
		}
		if !storeRetryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, ctx.Err())
		case <-time.After(b.Duration()):
		}
	}

	return zero, fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, lastErr)
}

func attemptOnce[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

// retryExec is withRetry for calls without a result.
func retryExec(ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) error) error {
	_, err := withRetry(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Lookups that miss and caller mistakes are answers, not outages.
func storeRetryable(err error) bool {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrAlreadyProcessed),
		errors.Is(err, ErrCatalogMismatch):
		return false
	}
	return true
}
