package poll

import (
	"context"
	"errors"
)

// ErrInvalidInterval is returned when the interval is zero or negative.
var ErrInvalidInterval = errors.New("poll interval must be positive")

// Func is one unit of periodic work. It reports its own failures; the
// loop keeps going regardless.
type Func func(ctx context.Context, iteration int)
