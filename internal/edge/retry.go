package edge

import (
	"context"
	"time"
)

// backoffSchedule is the exponential backoff used for
// edge-provider calls: 3 retries after 1s, 2s, 4s.
var backoffSchedule = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// WithRetry runs fn up to len(backoffSchedule)+1 times, sleeping the
// scheduled backoff between attempts, returning the last error if
// every attempt fails. ctx cancellation aborts the retry loop early.
func WithRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= len(backoffSchedule) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoffSchedule[attempt]):
		}
	}
}
