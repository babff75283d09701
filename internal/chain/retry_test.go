package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWithRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	last := errors.New("still failing")
	err := withRetry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		return last
	})
	require.ErrorIs(t, err, last)
	require.Equal(t, 3, calls)
}

func TestWithRetryNoDelayAfterSuccess(t *testing.T) {
	started := time.Now()
	err := withRetry(context.Background(), 5, 500*time.Millisecond, func(context.Context) error {
		return nil
	})
	require.NoError(t, err)
	require.Less(t, time.Since(started), 100*time.Millisecond)
}

func TestWithRetryFixedDelay(t *testing.T) {
	delay := 30 * time.Millisecond
	var gaps []time.Duration
	var previous time.Time

	calls := 0
	_ = withRetry(context.Background(), 3, delay, func(context.Context) error {
		now := time.Now()
		if calls > 0 {
			gaps = append(gaps, now.Sub(previous))
		}
		previous = now
		calls++
		return errors.New("transient")
	})

	require.Len(t, gaps, 2)
	for _, gap := range gaps {
		require.GreaterOrEqual(t, gap, delay)
		// Fixed delay: each gap stays in the same band instead of doubling.
		require.Less(t, gap, 3*delay)
	}
}

func TestWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := withRetry(ctx, 5, time.Hour, func(context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestWithRetryClampsAttempts(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 0, time.Millisecond, func(context.Context) error {
		calls++
		return errors.New("transient")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}
