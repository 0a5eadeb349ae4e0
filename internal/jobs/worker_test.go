package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWorker_EnqueueRunsJob(t *testing.T) {
	w := NewWorker(1)
	defer w.Shutdown()

	done := make(chan struct{})
	w.Enqueue(func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job did not run")
	}
}

func TestWorker_AsyncFailureIsCounted(t *testing.T) {
	w := NewWorker(1)

	w.EnqueueAsync(func(ctx context.Context) error {
		return errors.New("boom")
	})
	w.EnqueueAsync(func(ctx context.Context) error {
		panic("kaboom")
	})

	w.Shutdown()

	stats := w.GetStats()
	assert.Equal(t, int64(2), stats.CompletedJobs)
	assert.Equal(t, int64(2), stats.FailedJobs)
	assert.Zero(t, stats.ActiveJobs)
}

func TestWorker_ScheduleEveryImmediateRecordsRun(t *testing.T) {
	w := NewWorker(1)

	var runs atomic.Int32
	w.ScheduleEveryImmediate("recover_sagas", time.Hour, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	assert.Eventually(t, func() bool {
		_, ok := w.GetStats().LastRuns["recover_sagas"]
		return ok
	}, time.Second, 10*time.Millisecond)

	w.Shutdown()
	assert.Equal(t, int32(1), runs.Load())
}

func TestWorker_ZeroIntervalDisablesSchedule(t *testing.T) {
	w := NewWorker(1)
	defer w.Shutdown()

	w.ScheduleEvery("never", 0, func(ctx context.Context) error {
		t.Error("job should not run")
		return nil
	})
	assert.Empty(t, w.GetStats().LastRuns)
}

func TestWorker_ShutdownDrainsQueuedJobs(t *testing.T) {
	w := NewWorker(1)

	var ran atomic.Int32
	var liveCtx atomic.Int32
	job := func(ctx context.Context) error {
		time.Sleep(5 * time.Millisecond)
		if ctx.Err() == nil {
			liveCtx.Add(1)
		}
		ran.Add(1)
		return nil
	}
	for i := 0; i < 5; i++ {
		w.Enqueue(job)
	}
	w.EnqueueAsync(job)

	w.Shutdown()

	assert.Equal(t, int32(6), ran.Load())
	assert.Equal(t, int32(6), liveCtx.Load())
	assert.Error(t, w.Context().Err())
}
