// Package storetest holds behaviour tests every store.JobStore
// implementation must pass.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genqueue/internal/domain"
	"github.com/phrazzld/genqueue/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.JobStore

// NewPendingJob builds a valid PENDING job for tests.
func NewPendingJob(t *testing.T, jobType domain.JobType) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(jobType, json.RawMessage(`{"title":"test"}`), time.Minute, "")
	require.NoError(t, err)
	return job
}

// Run exercises the full JobStore contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, newStore(t)) })
	t.Run("ClaimTransitions", func(t *testing.T) { testClaimTransitions(t, newStore(t)) })
	t.Run("ConcurrentClaimsAreExclusive", func(t *testing.T) { testConcurrentClaims(t, newStore(t)) })
	t.Run("ProgressOnlyWhileProcessing", func(t *testing.T) { testProgressGuard(t, newStore(t)) })
	t.Run("TerminalStatesAreFinal", func(t *testing.T) { testTerminalFinal(t, newStore(t)) })
	t.Run("CompleteFailRace", func(t *testing.T) { testCompleteFailRace(t, newStore(t)) })
	t.Run("FailFromPending", func(t *testing.T) { testFailFromPending(t, newStore(t)) })
	t.Run("EvictionSkipsInFlight", func(t *testing.T) { testEviction(t, newStore(t)) })
	t.Run("CountByStatus", func(t *testing.T) { testCounts(t, newStore(t)) })
	t.Run("FailOrphaned", func(t *testing.T) { testFailOrphaned(t, newStore(t)) })
}

func testInsertAndGet(t *testing.T, s store.JobStore) {
	ctx := context.Background()
	job := NewPendingJob(t, domain.JobTypeLearningPlan)
	job.OwnerID = "user-1"

	require.NoError(t, s.Insert(ctx, job))
	assert.ErrorIs(t, s.Insert(ctx, job), store.ErrDuplicateJob)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, domain.JobTypeLearningPlan, got.Type)
	assert.Equal(t, domain.JobStatusPending, got.Status)
	assert.Equal(t, "user-1", got.OwnerID)
	assert.Equal(t, job.Timeout, got.Timeout)
	assert.JSONEq(t, `{"title":"test"}`, string(got.Params))
	assert.Nil(t, got.StartedAt)

	_, err = s.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrJobNotFound)
}

func testClaimTransitions(t *testing.T, s store.JobStore) {
	ctx := context.Background()

	_, err := s.ClaimNextPending(ctx)
	assert.ErrorIs(t, err, store.ErrNoPendingJobs)

	job := NewPendingJob(t, domain.JobTypeSubtaskGeneration)
	require.NoError(t, s.Insert(ctx, job))

	claimed, err := s.ClaimNextPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, domain.JobStatusProcessing, claimed.Status)
	require.NotNil(t, claimed.StartedAt)

	_, err = s.ClaimNextPending(ctx)
	assert.ErrorIs(t, err, store.ErrNoPendingJobs, "a claimed job must not be claimed again")

	require.NoError(t, s.UpdateProgress(ctx, job.ID, "attempt 1/3", 1))
	require.NoError(t, s.Complete(ctx, job.ID, json.RawMessage(`{"subtasks":[]}`)))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.JSONEq(t, `{"subtasks":[]}`, string(got.Result))
	assert.Nil(t, got.Error)
	assert.Equal(t, 1, got.Attempt)
	require.NotNil(t, got.CompletedAt)
	assert.False(t, got.CompletedAt.Before(*got.StartedAt))
}

func testConcurrentClaims(t *testing.T, s store.JobStore) {
	ctx := context.Background()
	const jobs = 20
	const claimers = 8

	for i := 0; i < jobs; i++ {
		require.NoError(t, s.Insert(ctx, NewPendingJob(t, domain.JobTypePersonalization)))
	}

	var (
		mu      sync.Mutex
		seen    = make(map[uuid.UUID]int)
		wg      sync.WaitGroup
		errs    = make(chan error, claimers)
		release = make(chan struct{})
	)

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-release
			for {
				job, err := s.ClaimNextPending(ctx)
				if err != nil {
					if !errors.Is(err, store.ErrNoPendingJobs) {
						errs <- err
					}
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}()
	}

	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("unexpected claim error: %v", err)
	}
	assert.Len(t, seen, jobs)
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %s claimed %d times", id, n)
	}
}

func testProgressGuard(t *testing.T, s store.JobStore) {
	ctx := context.Background()
	job := NewPendingJob(t, domain.JobTypeLearningPlan)
	require.NoError(t, s.Insert(ctx, job))

	err := s.UpdateProgress(ctx, job.ID, "too early", 1)
	assert.True(t, store.IsStaleWrite(err), "progress on PENDING must be rejected, got %v", err)

	_, err = s.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Fail(ctx, job.ID, domain.NewJobError(domain.ErrorCodeTimeout, "deadline exceeded")))

	err = s.UpdateProgress(ctx, job.ID, "too late", 2)
	assert.True(t, store.IsStaleWrite(err), "progress on FAILED must be rejected, got %v", err)

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Progress)
	assert.Equal(t, 0, got.Attempt)
}

func testTerminalFinal(t *testing.T, s store.JobStore) {
	ctx := context.Background()
	job := NewPendingJob(t, domain.JobTypeLearningPlan)
	require.NoError(t, s.Insert(ctx, job))

	err := s.Complete(ctx, job.ID, json.RawMessage(`{}`))
	assert.True(t, store.IsStaleWrite(err), "PENDING cannot complete, got %v", err)

	_, err = s.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Fail(ctx, job.ID, domain.NewJobError(domain.ErrorCodeTimeout, "deadline exceeded")))

	assert.True(t, store.IsStaleWrite(s.Complete(ctx, job.ID, json.RawMessage(`{"late":true}`))))
	assert.True(t, store.IsStaleWrite(s.Fail(ctx, job.ID, domain.NewJobError(domain.ErrorCodeProviderError, "again"))))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Empty(t, got.Result)
	require.NotNil(t, got.Error)
	assert.Equal(t, domain.ErrorCodeTimeout, got.Error.Code)

	assert.ErrorIs(t, s.Complete(ctx, uuid.New(), nil), store.ErrJobNotFound)
	assert.ErrorIs(t, s.Fail(ctx, uuid.New(), domain.NewJobError(domain.ErrorCodeTimeout, "")), store.ErrJobNotFound)
}

func testCompleteFailRace(t *testing.T, s store.JobStore) {
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		job := NewPendingJob(t, domain.JobTypeSubtaskGeneration)
		require.NoError(t, s.Insert(ctx, job))
		_, err := s.ClaimNextPending(ctx)
		require.NoError(t, err)

		var wg sync.WaitGroup
		var completeErr, failErr error
		start := make(chan struct{})

		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			completeErr = s.Complete(ctx, job.ID, json.RawMessage(`{"ok":true}`))
		}()
		go func() {
			defer wg.Done()
			<-start
			failErr = s.Fail(ctx, job.ID, domain.NewJobError(domain.ErrorCodeTimeout, "deadline exceeded"))
		}()
		close(start)
		wg.Wait()

		got, err := s.Get(ctx, job.ID)
		require.NoError(t, err)

		switch got.Status {
		case domain.JobStatusCompleted:
			assert.NoError(t, completeErr)
			assert.True(t, store.IsStaleWrite(failErr))
			assert.Nil(t, got.Error)
			assert.JSONEq(t, `{"ok":true}`, string(got.Result))
		case domain.JobStatusFailed:
			assert.NoError(t, failErr)
			assert.True(t, store.IsStaleWrite(completeErr))
			assert.Empty(t, got.Result)
			require.NotNil(t, got.Error)
		default:
			t.Fatalf("job left in non-terminal status %s", got.Status)
		}
	}
}

func testFailFromPending(t *testing.T, s store.JobStore) {
	ctx := context.Background()
	job := NewPendingJob(t, domain.JobTypePersonalization)
	require.NoError(t, s.Insert(ctx, job))

	require.NoError(t, s.Fail(ctx, job.ID, domain.NewJobError(domain.ErrorCodeInvalidInput, "bad params")))

	_, err := s.ClaimNextPending(ctx)
	assert.ErrorIs(t, err, store.ErrNoPendingJobs, "a failed job must never be claimed")

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Nil(t, got.StartedAt)
	assert.Equal(t, time.Duration(0), got.RunningTime(time.Now()))
}

func testEviction(t *testing.T, s store.JobStore) {
	ctx := context.Background()

	pending := NewPendingJob(t, domain.JobTypeLearningPlan)
	pending.CreatedAt = time.Now().Add(-48 * time.Hour).UTC()
	require.NoError(t, s.Insert(ctx, pending))

	processing := NewPendingJob(t, domain.JobTypeLearningPlan)
	require.NoError(t, s.Insert(ctx, processing))

	done := NewPendingJob(t, domain.JobTypeLearningPlan)
	require.NoError(t, s.Insert(ctx, done))

	// Claims are FIFO, so the oldest job is claimed first and stays PROCESSING.
	first, err := s.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.Equal(t, pending.ID, first.ID)

	stillPending := NewPendingJob(t, domain.JobTypeLearningPlan)
	stillPending.CreatedAt = time.Now().Add(time.Hour).UTC()

	second, err := s.ClaimNextPending(ctx)
	require.NoError(t, err)
	third, err := s.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []uuid.UUID{processing.ID, done.ID}, []uuid.UUID{second.ID, third.ID})
	require.NoError(t, s.Complete(ctx, done.ID, json.RawMessage(`{}`)))
	require.NoError(t, s.Insert(ctx, stillPending))

	time.Sleep(5 * time.Millisecond)

	// Nothing is old enough at a one hour threshold.
	n, err := s.EvictOlderThan(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// A zero threshold evicts every terminal job but never in-flight ones.
	n, err = s.EvictOlderThan(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(ctx, done.ID)
	assert.ErrorIs(t, err, store.ErrJobNotFound)

	for _, id := range []uuid.UUID{pending.ID, processing.ID, stillPending.ID} {
		got, err := s.Get(ctx, id)
		require.NoError(t, err, "in-flight job %s must survive eviction", id)
		assert.False(t, got.Status.IsTerminal())
	}
}

func testCounts(t *testing.T, s store.JobStore) {
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Insert(ctx, NewPendingJob(t, domain.JobTypeSubtaskGeneration)))
	}

	a, err := s.ClaimNextPending(ctx)
	require.NoError(t, err)
	b, err := s.ClaimNextPending(ctx)
	require.NoError(t, err)
	c, err := s.ClaimNextPending(ctx)
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.Complete(ctx, a.ID, json.RawMessage(`{}`)))
	require.NoError(t, s.Fail(ctx, b.ID, domain.NewJobError(domain.ErrorCodeTruncated, "response truncated")))
	_ = c

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Pending)
	assert.Equal(t, 1, counts.Processing)
	assert.Equal(t, 1, counts.Completed)
	assert.Equal(t, 1, counts.Failed)
	assert.Equal(t, 2, counts.StartedTerminal)
	assert.Greater(t, counts.TotalRunningTime, time.Duration(0))
}

func testFailOrphaned(t *testing.T, s store.JobStore) {
	ctx := context.Background()

	pending := NewPendingJob(t, domain.JobTypeLearningPlan)
	orphan := NewPendingJob(t, domain.JobTypeLearningPlan)
	orphan.CreatedAt = pending.CreatedAt.Add(-time.Second)
	require.NoError(t, s.Insert(ctx, orphan))
	require.NoError(t, s.Insert(ctx, pending))

	claimed, err := s.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.Equal(t, orphan.ID, claimed.ID)

	n, err := s.FailOrphaned(ctx, domain.NewJobError(domain.ErrorCodeInternal, "interrupted by restart"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Get(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, domain.ErrorCodeInternal, got.Error.Code)

	got, err = s.Get(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, got.Status, "pending jobs are left for the workers")
}
