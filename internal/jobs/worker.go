package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sjperalta/khata-api/pkg/logger"
)

// Job represents a background task
type Job func(ctx context.Context) error

// Worker manages background jobs and scheduled tasks.
// Schedules stop on Shutdown; queued and async jobs still finish with a live context.
type Worker struct {
	ctx           context.Context
	cancel        context.CancelFunc
	jobCtx        context.Context
	jobCancel     context.CancelFunc
	wg            sync.WaitGroup
	poolWg        sync.WaitGroup
	queue         chan Job
	asyncSem      chan struct{}
	maxConcurrent int
	stats         WorkerStats
	statsMu       sync.RWMutex
	scheduled     map[string]time.Time
}

// WorkerStats holds statistics about the worker
type WorkerStats struct {
	ActiveJobs    int                  `json:"active_jobs"`
	CompletedJobs int64                `json:"completed_jobs"`
	FailedJobs    int64                `json:"failed_jobs"`
	QueueLength   int                  `json:"queue_length"`
	MaxConcurrent int                  `json:"max_concurrent"`
	LastRuns      map[string]time.Time `json:"last_runs,omitempty"`
}

// NewWorker creates a worker with N concurrent processors
func NewWorker(numWorkers int) *Worker {
	if numWorkers < 1 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	jobCtx, jobCancel := context.WithCancel(context.Background())
	// Allow 2x workers for async jobs
	asyncLimit := numWorkers * 2
	if asyncLimit < 10 {
		asyncLimit = 10
	}

	w := &Worker{
		ctx:           ctx,
		cancel:        cancel,
		jobCtx:        jobCtx,
		jobCancel:     jobCancel,
		queue:         make(chan Job, 100),
		asyncSem:      make(chan struct{}, asyncLimit),
		maxConcurrent: asyncLimit,
		scheduled:     make(map[string]time.Time),
	}

	for i := 0; i < numWorkers; i++ {
		w.poolWg.Add(1)
		go w.process(i)
	}

	return w
}

// Enqueue adds a job to be processed by the worker pool.
// When the queue is full the job runs on the caller's goroutine.
func (w *Worker) Enqueue(job Job) {
	select {
	case w.queue <- job:
	default:
		logger.Warn("worker queue full, running job synchronously")
		if err := job(w.jobCtx); err != nil {
			logger.Error("worker job failed", "error", err)
		}
	}
}

// EnqueueAsync runs a job in a new goroutine (fire-and-forget), bounded by semaphore
func (w *Worker) EnqueueAsync(job Job) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		w.asyncSem <- struct{}{}
		defer func() { <-w.asyncSem }()

		w.trackJobStart()
		defer w.trackJobEnd()

		defer func() {
			if r := recover(); r != nil {
				logger.Error("async job panic", "panic", fmt.Sprint(r))
				w.trackJobFailure()
			}
		}()

		if err := job(w.jobCtx); err != nil {
			logger.Error("async job failed", "error", err)
			w.trackJobFailure()
		}
	}()
}

func (w *Worker) process(workerID int) {
	defer w.poolWg.Done()
	// drains the queue until Shutdown closes it
	for job := range w.queue {
		w.trackJobStart()
		start := time.Now()
		if err := job(w.jobCtx); err != nil {
			logger.Error("job failed", "worker", workerID, "error", err)
			w.trackJobFailure()
		} else {
			logger.Debug("job completed", "worker", workerID, "duration", time.Since(start))
		}
		w.trackJobEnd()
	}
}

// ScheduleEvery runs a named job at fixed intervals. The first run happens after the interval.
func (w *Worker) ScheduleEvery(name string, interval time.Duration, job Job) {
	w.schedule(name, interval, false, job)
}

// ScheduleEveryImmediate runs a named job once at startup, then at fixed intervals.
func (w *Worker) ScheduleEveryImmediate(name string, interval time.Duration, job Job) {
	w.schedule(name, interval, true, job)
}

func (w *Worker) schedule(name string, interval time.Duration, immediate bool, job Job) {
	if interval <= 0 {
		logger.Warn("scheduled job disabled", "job", name, "interval", interval)
		return
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if immediate {
			w.runScheduledJob(name, job)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.ctx.Done():
				return
			case <-ticker.C:
				w.runScheduledJob(name, job)
			}
		}
	}()
}

func (w *Worker) runScheduledJob(name string, job Job) {
	w.trackJobStart()
	defer w.trackJobEnd()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("scheduled job panic", "job", name, "panic", fmt.Sprint(r))
			w.trackJobFailure()
		}
	}()

	start := time.Now()
	err := job(w.jobCtx)

	w.statsMu.Lock()
	w.scheduled[name] = start
	w.statsMu.Unlock()

	if err != nil {
		logger.Error("scheduled job failed", "job", name, "error", err)
		w.trackJobFailure()
		return
	}
	logger.Info("scheduled job completed", "job", name, "duration", time.Since(start))
}

// Shutdown stops the schedules, waits for running and queued jobs, then cancels their context
func (w *Worker) Shutdown() {
	w.cancel()
	w.wg.Wait()
	close(w.queue)
	w.poolWg.Wait()
	w.jobCancel()
}

// Context is done once Shutdown has begun
func (w *Worker) Context() context.Context {
	return w.ctx
}

// GetStats returns the current worker statistics
func (w *Worker) GetStats() WorkerStats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	stats := w.stats
	stats.QueueLength = len(w.queue)
	stats.MaxConcurrent = w.maxConcurrent
	stats.LastRuns = make(map[string]time.Time, len(w.scheduled))
	for name, at := range w.scheduled {
		stats.LastRuns[name] = at
	}
	return stats
}

func (w *Worker) trackJobStart() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.ActiveJobs++
}

func (w *Worker) trackJobEnd() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.ActiveJobs--
	w.stats.CompletedJobs++
}

// FailedJobs is a subset of CompletedJobs
func (w *Worker) trackJobFailure() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.stats.FailedJobs++
}
