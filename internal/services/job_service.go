package services

import (
	"github.com/sjperalta/khata-api/internal/jobs"
)

type JobService struct {
	worker *jobs.Worker
}

func NewJobService(worker *jobs.Worker) *JobService {
	return &JobService{
		worker: worker,
	}
}

func (s *JobService) GetStatus() map[string]interface{} {
	if s.worker == nil {
		return map[string]interface{}{"running": false}
	}
	stats := s.worker.GetStats()
	return map[string]interface{}{
		"running":        true,
		"active_jobs":    stats.ActiveJobs,
		"completed_jobs": stats.CompletedJobs,
		"failed_jobs":    stats.FailedJobs,
		"queue_length":   stats.QueueLength,
		"max_concurrent": stats.MaxConcurrent,
		"last_runs":      stats.LastRuns,
	}
}
