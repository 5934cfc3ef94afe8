package polling

import (
	"context"
	"time"
)

// Scheduler runs fn after d on its own goroutine. The scheduled call is
// cancelled through ctx: cancelling it stops a pending call and cancels the
// context handed to a running one. The engine passes the generation context
// of the slot, which a new start or a terminal state cancels.
type Scheduler interface {
	Schedule(ctx context.Context, d time.Duration, fn func(ctx context.Context))
}

// TimerScheduler is backed by time.AfterFunc.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(parent context.Context, d time.Duration, fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(parent)
	timer := time.AfterFunc(d, func() {
		defer cancel()
		if ctx.Err() != nil {
			return
		}
		fn(ctx)
	})
	context.AfterFunc(ctx, func() { timer.Stop() })
}
