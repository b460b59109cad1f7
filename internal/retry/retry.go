package retry

import (
	"context"
	"fmt"
	"time"
)

// DefaultBackoffs is the wait schedule between attempts.
var DefaultBackoffs = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// WithBackoff runs fn up to maxRetries times, sleeping between attempts
// according to backoffs. The last entry is reused when there are more
// attempts than backoffs. Only use it for operations that are safe to repeat.
func WithBackoff(ctx context.Context, fn func(ctx context.Context) error, maxRetries int, backoffs []time.Duration) error {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if i == maxRetries-1 || len(backoffs) == 0 {
			continue
		}
		wait := backoffs[len(backoffs)-1]
		if i < len(backoffs) {
			wait = backoffs[i]
		}
		if err := Sleep(ctx, wait); err != nil {
			return fmt.Errorf("retry interrupted after %d attempts: %w", i+1, lastErr)
		}
	}

	return fmt.Errorf("failed after %d retries: %w", maxRetries, lastErr)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
