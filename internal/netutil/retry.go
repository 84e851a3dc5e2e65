// Package netutil provides a retry-with-backoff helper shared by every
// market data source and the broker executor, so the fallback chain's
// "initial * 2^attempt" backoff policy is implemented once.
package netutil

import (
	"context"
	"math/rand"
	"time"
)

// Config controls a retry loop's attempt count and backoff schedule.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
}

// Do calls fn up to cfg.MaxRetries+1 times, sleeping an exponentially
// increasing, jittered backoff between attempts (initial * 2^attempt, plus
// up to 50% jitter). It returns as soon as fn succeeds, or ctx is done, or
// every attempt has failed, in which case the last error is returned.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := cfg.InitialBackoff * time.Duration(int64(1)<<uint(attempt-1))
			if backoff > 0 {
				backoff += time.Duration(rand.Int63n(int64(backoff)/2 + 1))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := fn(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
