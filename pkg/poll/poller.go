package poll

import (
	"context"
	"time"
)

// Every runs fn once right away and then once per interval until ctx is
// done. fn is never invoked concurrently with itself; a slow run delays the
// next one instead of overlapping it. The iteration number starts at 1.
func Every(ctx context.Context, interval time.Duration, fn Func) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	iteration := 1
	fn(ctx, iteration)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			iteration++
			fn(ctx, iteration)
		}
	}
}
