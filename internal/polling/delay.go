package polling

import (
	"context"
	"math/rand"
	"time"
)

// Window is the inclusive range a reschedule delay is drawn from.
type Window struct {
	Min time.Duration
	Max time.Duration
}

var (
	FastWindow = Window{Min: 2000 * time.Millisecond, Max: 3000 * time.Millisecond}
	LongWindow = Window{Min: 10000 * time.Millisecond, Max: 15000 * time.Millisecond}
)

// DelayFunc picks the pause before the next poll attempt.
type DelayFunc func(w Window) time.Duration

// UniformDelay draws uniformly from [w.Min, w.Max].
func UniformDelay(w Window) time.Duration {
	if w.Max <= w.Min {
		return w.Min
	}
	return w.Min + time.Duration(rand.Int63n(int64(w.Max-w.Min+1)))
}

// Sleeper pauses between transient-fault retries. It returns early with the
// context error when ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
