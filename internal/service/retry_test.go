package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var errFlaky = errors.New("connection reset")

func testPolicy(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, Timeout: time.Second, Min: time.Millisecond, Max: 2 * time.Millisecond}
}

func TestWithRetryRecovers(t *testing.T) {
	calls := 0
	got, err := withRetry(context.Background(), testPolicy(3), "op", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errFlaky
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestWithRetryExhausted(t *testing.T) {
	calls := 0
	err := retryExec(context.Background(), testPolicy(2), "save", func(ctx context.Context) error {
		calls++
		return errFlaky
	})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 2, calls)
}

func TestWithRetryStopsOnPermanentErrors(t *testing.T) {
	for _, perm := range []error{gorm.ErrRecordNotFound, ErrAlreadyProcessed, ErrInvalidInput, context.Canceled} {
		calls := 0
		err := retryExec(context.Background(), testPolicy(5), "op", func(ctx context.Context) error {
			calls++
			return perm
		})
		assert.ErrorIs(t, err, perm)
		assert.NotErrorIs(t, err, ErrStoreUnavailable)
		assert.Equal(t, 1, calls, perm.Error())
	}
}

func TestWithRetryAppliesAttemptTimeout(t *testing.T) {
	p := testPolicy(1)
	p.Timeout = 10 * time.Millisecond

	err := retryExec(context.Background(), p, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRemainingDays(t *testing.T) {
	expires := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, remainingDays(expires, expires.Add(-24*time.Hour)))
	assert.Equal(t, 0, remainingDays(expires, expires.Add(-time.Hour)))
	assert.Equal(t, -1, remainingDays(expires, expires.Add(time.Hour)))
	assert.Equal(t, 2, remainingDays(expires, expires.Add(-71*time.Hour)))
}
