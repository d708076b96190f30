package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quickBackoff() *backoff.Backoff {
	return &backoff.Backoff{Min: time.Millisecond, Max: time.Millisecond}
}

func TestStartWithRetryKeepsTryingUntilStartSucceeds(t *testing.T) {
	attempts := 0
	stopped := false

	stop := startWithRetry(context.Background(), zerolog.Nop(), quickBackoff(), func(context.Context) (func(), error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("telegram unreachable")
		}
		return func() { stopped = true }, nil
	})

	require.NotNil(t, stop)
	assert.Equal(t, 3, attempts)
	stop()
	assert.True(t, stopped)
}

func TestStartWithRetryGivesUpWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	stop := startWithRetry(ctx, zerolog.Nop(), &backoff.Backoff{Min: time.Hour, Max: time.Hour}, func(context.Context) (func(), error) {
		attempts++
		cancel()
		return nil, errors.New("database down")
	})

	require.NotNil(t, stop)
	assert.Equal(t, 1, attempts)
	assert.NotPanics(t, stop)
}
