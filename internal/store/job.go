package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genqueue/internal/domain"
)

// JobCounts is an advisory aggregate over the jobs currently held by a store.
type JobCounts struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int

	// StartedTerminal is the number of terminal jobs that were ever started.
	StartedTerminal int
	// TotalRunningTime sums completedAt-startedAt over StartedTerminal jobs.
	TotalRunningTime time.Duration
}

// JobStore is the single source of truth for job state.
//
// Every transition is atomic with respect to concurrent callers. Complete
// and Fail only apply when the job is in a state that permits them and
// otherwise return ErrStaleWrite without changing anything, so an attempt
// superseded by a timeout cannot overwrite the recorded outcome.
type JobStore interface {
	// Insert writes a new PENDING job. Returns ErrDuplicateJob if the ID exists.
	Insert(ctx context.Context, job *domain.Job) error

	// ClaimNextPending moves one PENDING job to PROCESSING, sets startedAt and
	// returns a snapshot of it. Two concurrent callers never receive the same
	// job. Returns ErrNoPendingJobs when nothing is pending.
	ClaimNextPending(ctx context.Context) (*domain.Job, error)

	// UpdateProgress records an advisory progress note and the attempt count.
	// It is a no-op returning ErrStaleWrite unless the job is PROCESSING.
	UpdateProgress(ctx context.Context, id uuid.UUID, progress string, attempt int) error

	// Complete transitions PROCESSING -> COMPLETED and stores result.
	Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) error

	// Fail transitions PENDING or PROCESSING -> FAILED and stores jobErr.
	Fail(ctx context.Context, id uuid.UUID, jobErr *domain.JobError) error

	// Get returns a snapshot of the job or ErrJobNotFound.
	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// EvictOlderThan removes terminal jobs completed more than age ago and
	// returns how many were removed. PENDING and PROCESSING jobs are never
	// removed regardless of age.
	EvictOlderThan(ctx context.Context, age time.Duration) (int, error)

	// CountByStatus returns per-status counts and terminal running time totals.
	CountByStatus(ctx context.Context) (JobCounts, error)

	// FailOrphaned fails every PROCESSING job with jobErr. It is meant for
	// startup, when no execution in this process can own those jobs yet.
	FailOrphaned(ctx context.Context, jobErr *domain.JobError) (int, error)
}
