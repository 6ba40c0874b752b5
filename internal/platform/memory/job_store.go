// Package memory provides an in-process implementation of store.JobStore.
// Jobs do not survive a restart.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genqueue/internal/domain"
	"github.com/phrazzld/genqueue/internal/store"
)

// Option configures a JobStore.
type Option func(*JobStore)

// WithClock replaces time.Now, for tests that need to control eviction age.
func WithClock(now func() time.Time) Option {
	return func(s *JobStore) {
		s.now = now
	}
}

// JobStore keeps jobs in a map guarded by a single mutex. Every operation
// is a short critical section, which makes each transition atomic.
type JobStore struct {
	mu      sync.Mutex
	jobs    map[uuid.UUID]*domain.Job
	pending []uuid.UUID // FIFO of IDs inserted as PENDING; may hold stale entries
	now     func() time.Time
}

var _ store.JobStore = (*JobStore)(nil)

// NewJobStore creates an empty JobStore.
func NewJobStore(opts ...Option) *JobStore {
	s := &JobStore{
		jobs: make(map[uuid.UUID]*domain.Job),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Insert implements store.JobStore.
func (s *JobStore) Insert(ctx context.Context, job *domain.Job) error {
	if err := job.Validate(); err != nil {
		return store.NewStoreError("job", "insert", "invalid job", err)
	}
	if job.Status != domain.JobStatusPending {
		return store.NewStoreError("job", "insert", "new jobs must be PENDING", domain.ErrInvalidJobStatus)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return store.ErrDuplicateJob
	}

	rec := job.Clone()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}
	s.jobs[rec.ID] = rec
	s.pending = append(s.pending, rec.ID)
	return nil
}

// ClaimNextPending implements store.JobStore.
func (s *JobStore) ClaimNextPending(ctx context.Context) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.pending) > 0 {
		id := s.pending[0]
		s.pending[0] = uuid.Nil
		s.pending = s.pending[1:]

		job, ok := s.jobs[id]
		if !ok || job.Status != domain.JobStatusPending {
			continue
		}

		started := s.now().UTC()
		job.Status = domain.JobStatusProcessing
		job.StartedAt = &started
		return job.Clone(), nil
	}

	return nil, store.ErrNoPendingJobs
}

// UpdateProgress implements store.JobStore.
func (s *JobStore) UpdateProgress(ctx context.Context, id uuid.UUID, progress string, attempt int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		return store.NewStoreError("job", "update progress", "job is not processing", store.ErrStaleWrite)
	}

	job.Progress = progress
	job.Attempt = attempt
	return nil
}

// Complete implements store.JobStore.
func (s *JobStore) Complete(ctx context.Context, id uuid.UUID, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if !job.Status.CanTransitionTo(domain.JobStatusCompleted) {
		return store.NewStoreError("job", "complete", "job is "+string(job.Status), store.ErrStaleWrite)
	}

	done := s.now().UTC()
	job.Status = domain.JobStatusCompleted
	job.Result = append(json.RawMessage(nil), result...)
	job.CompletedAt = &done
	return nil
}

// Fail implements store.JobStore.
func (s *JobStore) Fail(ctx context.Context, id uuid.UUID, jobErr *domain.JobError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if !job.Status.CanTransitionTo(domain.JobStatusFailed) {
		return store.NewStoreError("job", "fail", "job is "+string(job.Status), store.ErrStaleWrite)
	}

	done := s.now().UTC()
	e := *jobErr
	job.Status = domain.JobStatusFailed
	job.Error = &e
	job.CompletedAt = &done
	return nil
}

// Get implements store.JobStore.
func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	return job.Clone(), nil
}

// EvictOlderThan implements store.JobStore.
func (s *JobStore) EvictOlderThan(ctx context.Context, age time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-age)
	evicted := 0
	for id, job := range s.jobs {
		if !job.Status.IsTerminal() || job.CompletedAt == nil {
			continue
		}
		if job.CompletedAt.After(cutoff) {
			continue
		}
		delete(s.jobs, id)
		evicted++
	}
	return evicted, nil
}

// CountByStatus implements store.JobStore.
func (s *JobStore) CountByStatus(ctx context.Context) (store.JobCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var counts store.JobCounts
	for _, job := range s.jobs {
		switch job.Status {
		case domain.JobStatusPending:
			counts.Pending++
		case domain.JobStatusProcessing:
			counts.Processing++
		case domain.JobStatusCompleted:
			counts.Completed++
		case domain.JobStatusFailed:
			counts.Failed++
		}
		if job.Status.IsTerminal() && job.StartedAt != nil && job.CompletedAt != nil {
			counts.StartedTerminal++
			counts.TotalRunningTime += job.CompletedAt.Sub(*job.StartedAt)
		}
	}
	return counts, nil
}

// FailOrphaned implements store.JobStore. An in-memory store starts empty,
// so this only matters when the store is shared across controller restarts
// within one process, as in tests.
func (s *JobStore) FailOrphaned(ctx context.Context, jobErr *domain.JobError) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	done := s.now().UTC()
	failed := 0
	for _, job := range s.jobs {
		if job.Status != domain.JobStatusProcessing {
			continue
		}
		e := *jobErr
		at := done
		job.Status = domain.JobStatusFailed
		job.Error = &e
		job.CompletedAt = &at
		failed++
	}
	return failed, nil
}
