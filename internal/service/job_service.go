package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genqueue/internal/domain"
	"github.com/phrazzld/genqueue/internal/events"
	"github.com/phrazzld/genqueue/internal/platform/logger"
	"github.com/phrazzld/genqueue/internal/redact"
	"github.com/phrazzld/genqueue/internal/store"
)

// CreateJobInput is a request to run one generation job.
type CreateJobInput struct {
	Type   string
	Params json.RawMessage
	// TimeoutSeconds overrides the default execution budget. Zero means the
	// default; values above the configured maximum are clamped to it.
	TimeoutSeconds int
	// OwnerID scopes the job to an authenticated caller. Empty when auth is off.
	OwnerID string
}

// StatusView is what a caller sees when polling a job.
type StatusView struct {
	JobID       uuid.UUID
	Type        domain.JobType
	Status      domain.JobStatus
	Progress    string
	Result      json.RawMessage
	Error       *domain.JobError
	Attempt     int
	RunningTime time.Duration
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Stats is an advisory snapshot of queue activity.
type Stats struct {
	Pending            int
	Processing         int
	Completed          int
	Failed             int
	TotalProcessed     int
	AverageRunningTime time.Duration
}

// JobService is the job queue facade.
type JobService interface {
	// CreateJob validates input, stores a PENDING job and announces it.
	// Invalid input returns an error wrapping ErrInvalidInput and creates
	// nothing.
	CreateJob(ctx context.Context, input CreateJobInput) (uuid.UUID, error)

	// GetJobStatus returns a snapshot of the job. ownerID must match the
	// job's owner when the job has one.
	GetJobStatus(ctx context.Context, id uuid.UUID, ownerID string) (*StatusView, error)

	// GetStats returns counts per status and the mean running time of
	// finished jobs.
	GetStats(ctx context.Context) (*Stats, error)
}

// JobServiceConfig bounds the per-job timeout.
type JobServiceConfig struct {
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
}

type jobServiceImpl struct {
	store   store.JobStore
	emitter events.EventEmitter
	config  JobServiceConfig
	now     func() time.Time
	logger  *slog.Logger
}

// NewJobService creates a JobService. It returns an error if a required
// dependency is missing or the timeouts are inconsistent.
func NewJobService(
	jobStore store.JobStore,
	emitter events.EventEmitter,
	config JobServiceConfig,
	logger *slog.Logger,
) (JobService, error) {
	if jobStore == nil {
		return nil, errors.New("job store cannot be nil")
	}
	if emitter == nil {
		return nil, errors.New("event emitter cannot be nil")
	}
	if config.DefaultTimeout <= 0 {
		return nil, errors.New("default timeout must be positive")
	}
	if config.MaxTimeout < config.DefaultTimeout {
		return nil, errors.New("max timeout cannot be below the default timeout")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &jobServiceImpl{
		store:   jobStore,
		emitter: emitter,
		config:  config,
		now:     time.Now,
		logger:  logger.With("component", "job_service"),
	}, nil
}

func (s *jobServiceImpl) CreateJob(ctx context.Context, input CreateJobInput) (uuid.UUID, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	jobType, err := domain.ParseJobType(input.Type)
	if err != nil {
		return uuid.Nil, err
	}
	if _, err := domain.DecodeParams(jobType, input.Params); err != nil {
		log.Debug("rejected job params", "job_type", jobType, "error", err)
		return uuid.Nil, err
	}

	timeout, err := s.timeout(input.TimeoutSeconds)
	if err != nil {
		return uuid.Nil, err
	}

	job, err := domain.NewJob(jobType, input.Params, timeout, input.OwnerID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := s.store.Insert(ctx, job); err != nil {
		log.Error("failed to insert job",
			"job_id", job.ID,
			"job_type", jobType,
			"error", redact.Error(err))
		return uuid.Nil, NewJobServiceError("create", err)
	}

	// The runner also polls, so a lost wake-up only delays the job.
	if err := s.emitter.EmitEvent(ctx, events.NewJobEvent(job.ID, domain.JobStatusPending, 0, "")); err != nil {
		log.Warn("failed to announce new job", "job_id", job.ID, "error", redact.Error(err))
	}

	log.Info("job created",
		"job_id", job.ID,
		"job_type", jobType,
		"timeout", timeout)

	return job.ID, nil
}

func (s *jobServiceImpl) timeout(seconds int) (time.Duration, error) {
	switch {
	case seconds < 0:
		return 0, fmt.Errorf("%w: timeoutSeconds must not be negative", ErrInvalidInput)
	case seconds == 0:
		return s.config.DefaultTimeout, nil
	}

	// compare in seconds first so huge requests cannot overflow Duration
	if s.config.MaxTimeout > 0 && int64(seconds) > int64(s.config.MaxTimeout/time.Second) {
		return s.config.MaxTimeout, nil
	}
	if int64(seconds) > int64(math.MaxInt64/time.Second) {
		return 0, fmt.Errorf("%w: timeoutSeconds is too large", ErrInvalidInput)
	}
	return time.Duration(seconds) * time.Second, nil
}

func (s *jobServiceImpl) GetJobStatus(ctx context.Context, id uuid.UUID, ownerID string) (*StatusView, error) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrJobNotFound) {
			logger.FromContextOrDefault(ctx, s.logger).Error("failed to get job",
				"job_id", id,
				"error", redact.Error(err))
		}
		return nil, NewJobServiceError("get", err)
	}

	if job.OwnerID != "" && job.OwnerID != ownerID {
		return nil, ErrJobNotFound
	}

	return &StatusView{
		JobID:       job.ID,
		Type:        job.Type,
		Status:      job.Status,
		Progress:    job.Progress,
		Result:      job.Result,
		Error:       job.Error,
		Attempt:     job.Attempt,
		RunningTime: job.RunningTime(s.now()),
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}, nil
}

func (s *jobServiceImpl) GetStats(ctx context.Context) (*Stats, error) {
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to count jobs", "error", redact.Error(err))
		return nil, NewJobServiceError("stats", err)
	}

	stats := &Stats{
		Pending:        counts.Pending,
		Processing:     counts.Processing,
		Completed:      counts.Completed,
		Failed:         counts.Failed,
		TotalProcessed: counts.Completed + counts.Failed,
	}
	if counts.StartedTerminal > 0 {
		stats.AverageRunningTime = counts.TotalRunningTime / time.Duration(counts.StartedTerminal)
	}

	return stats, nil
}
