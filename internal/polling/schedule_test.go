package polling

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerScheduler_Runs(t *testing.T) {
	done := make(chan struct{})
	TimerScheduler{}.Schedule(context.Background(), time.Millisecond, func(ctx context.Context) {
		assert.NoError(t, ctx.Err())
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
}

func TestTimerScheduler_CancelBeforeFiring(t *testing.T) {
	var ran atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	TimerScheduler{}.Schedule(ctx, 20*time.Millisecond, func(context.Context) {
		ran.Store(true)
	})
	cancel()

	time.Sleep(60 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestTimerScheduler_AlreadyCancelled(t *testing.T) {
	var ran atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	TimerScheduler{}.Schedule(ctx, 0, func(context.Context) {
		ran.Store(true)
	})

	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestTimerScheduler_CancelWhileRunning(t *testing.T) {
	started := make(chan struct{})
	stopped := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	TimerScheduler{}.Schedule(ctx, 0, func(taskCtx context.Context) {
		close(started)
		<-taskCtx.Done()
		close(stopped)
	})

	<-started
	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("running task did not observe cancellation")
	}
}
