package chain

import (
	"context"
	"time"

	"transferscope/internal/metrics"
)

// withRetry runs fn up to attempts times with a fixed delay between
// attempts. Once attempts are exhausted the last error is returned
// unmodified; there is no fallback value.
func withRetry(ctx context.Context, attempts int, delay time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= attempts {
			return err
		}
		metrics.RPCRetries.Inc()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
