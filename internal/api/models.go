package api

import (
	"encoding/json"
	"time"

	"github.com/phrazzld/genqueue/internal/domain"
	"github.com/phrazzld/genqueue/internal/service"
)

// CreateJobRequest is the body of POST /jobs.
type CreateJobRequest struct {
	Type           string          `json:"type" validate:"required"`
	Params         json.RawMessage `json:"params" validate:"required"`
	TimeoutSeconds int             `json:"timeoutSeconds,omitempty" validate:"gte=0,lte=86400"`
}

// CreateJobResponse is returned with 202 Accepted.
type CreateJobResponse struct {
	JobID string `json:"jobId"`
}

// JobStatusResponse is the polling view of a job. RunningTime is in
// milliseconds.
type JobStatusResponse struct {
	JobID       string           `json:"jobId"`
	Type        domain.JobType   `json:"type"`
	Status      domain.JobStatus `json:"status"`
	Progress    string           `json:"progress,omitempty"`
	Result      json.RawMessage  `json:"result,omitempty"`
	Error       *domain.JobError `json:"error,omitempty"`
	Attempt     int              `json:"attempt"`
	RunningTime int64            `json:"runningTime"`
	CreatedAt   time.Time        `json:"createdAt"`
	StartedAt   *time.Time       `json:"startedAt,omitempty"`
	CompletedAt *time.Time       `json:"completedAt,omitempty"`
}

// StatsResponse is returned by GET /jobs/stats. AverageRunningTime is in
// milliseconds.
type StatsResponse struct {
	Pending            int   `json:"pending"`
	Processing         int   `json:"processing"`
	Completed          int   `json:"completed"`
	Failed             int   `json:"failed"`
	TotalProcessed     int   `json:"totalProcessed"`
	AverageRunningTime int64 `json:"averageRunningTime"`
}

func statusToResponse(v *service.StatusView) JobStatusResponse {
	return JobStatusResponse{
		JobID:       v.JobID.String(),
		Type:        v.Type,
		Status:      v.Status,
		Progress:    v.Progress,
		Result:      v.Result,
		Error:       v.Error,
		Attempt:     v.Attempt,
		RunningTime: v.RunningTime.Milliseconds(),
		CreatedAt:   v.CreatedAt,
		StartedAt:   v.StartedAt,
		CompletedAt: v.CompletedAt,
	}
}

func statsToResponse(s *service.Stats) StatsResponse {
	return StatsResponse{
		Pending:            s.Pending,
		Processing:         s.Processing,
		Completed:          s.Completed,
		Failed:             s.Failed,
		TotalProcessed:     s.TotalProcessed,
		AverageRunningTime: s.AverageRunningTime.Milliseconds(),
	}
}
