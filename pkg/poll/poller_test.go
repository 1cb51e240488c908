package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestEvery_RunsImmediatelyAndRepeats(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	done := make(chan error, 1)
	go func() {
		done <- Every(ctx, 10*time.Millisecond, func(ctx context.Context, iteration int) {
			if atomic.AddInt32(&calls, 1) == 3 {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not stop")
	}

	if got := atomic.LoadInt32(&calls); got < 3 {
		t.Fatalf("expected at least 3 runs, got %d", got)
	}
}

func TestEvery_IterationNumbers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []int
	_ = Every(ctx, time.Millisecond, func(ctx context.Context, iteration int) {
		seen = append(seen, iteration)
		if iteration == 4 {
			cancel()
		}
	})

	for i, it := range seen {
		if it != i+1 {
			t.Fatalf("expected iteration %d, got %d", i+1, it)
		}
	}
}

func TestEvery_InvalidInterval(t *testing.T) {
	err := Every(context.Background(), 0, func(context.Context, int) {
		t.Fatalf("fn must not run")
	})
	if !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}
