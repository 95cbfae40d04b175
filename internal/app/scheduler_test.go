package app_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"live-quiz-service/internal/app"
)

func TestTimerSchedulerRunsLatestRevision(t *testing.T) {
	s := app.NewTimerScheduler(time.Second)
	defer s.Close()

	var stale, fresh atomic.Int32
	done := make(chan struct{})
	s.Schedule("s1", 2, 20*time.Millisecond, func(context.Context) { stale.Add(1) })
	s.Schedule("s1", 3, 20*time.Millisecond, func(context.Context) {
		fresh.Add(1)
		close(done)
	})
	// An older arm must not replace a newer one.
	s.Schedule("s1", 1, time.Millisecond, func(context.Context) { stale.Add(1) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	require.Equal(t, int32(1), fresh.Load())
	require.Equal(t, int32(0), stale.Load())
	require.Equal(t, 0, s.Pending())
}

func TestTimerSchedulerCancel(t *testing.T) {
	s := app.NewTimerScheduler(time.Second)
	defer s.Close()

	var fired atomic.Int32
	s.Schedule("s1", 5, 30*time.Millisecond, func(context.Context) { fired.Add(1) })
	s.Cancel("s1", 4)
	require.Equal(t, 1, s.Pending(), "cancel with an older revision is ignored")
	s.Cancel("s1", 5)
	require.Equal(t, 0, s.Pending())

	time.Sleep(80 * time.Millisecond)
	require.Equal(t, int32(0), fired.Load())
}

func TestTimerSchedulerSurvivesPanickingTask(t *testing.T) {
	s := app.NewTimerScheduler(time.Second)
	defer s.Close()

	done := make(chan struct{})
	s.Schedule("s1", 1, time.Millisecond, func(context.Context) { panic("boom") })
	time.Sleep(20 * time.Millisecond)
	s.Schedule("s1", 2, time.Millisecond, func(ctx context.Context) {
		if _, ok := ctx.Deadline(); ok {
			close(done)
		}
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second timer did not fire with a deadline")
	}
}
