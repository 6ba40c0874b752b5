package memory_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/genqueue/internal/domain"
	"github.com/phrazzld/genqueue/internal/platform/memory"
	"github.com/phrazzld/genqueue/internal/store"
	"github.com/phrazzld/genqueue/internal/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.JobStore {
		return memory.NewJobStore()
	})
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestEvictOlderThanUsesCompletionTime(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := memory.NewJobStore(memory.WithClock(clock.Now))

	old := storetest.NewPendingJob(t, domain.JobTypeLearningPlan)
	require.NoError(t, s.Insert(ctx, old))
	_, err := s.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, old.ID, json.RawMessage(`{}`)))

	clock.Advance(2 * time.Hour)

	recent := storetest.NewPendingJob(t, domain.JobTypeLearningPlan)
	require.NoError(t, s.Insert(ctx, recent))
	_, err = s.ClaimNextPending(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Fail(ctx, recent.ID, domain.NewJobError(domain.ErrorCodeTimeout, "deadline exceeded")))

	clock.Advance(30 * time.Minute)

	n, err := s.EvictOlderThan(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(ctx, old.ID)
	assert.ErrorIs(t, err, store.ErrJobNotFound)
	_, err = s.Get(ctx, recent.ID)
	assert.NoError(t, err)
}

func TestClaimSkipsJobsFailedWhilePending(t *testing.T) {
	ctx := context.Background()
	s := memory.NewJobStore()

	first := storetest.NewPendingJob(t, domain.JobTypeSubtaskGeneration)
	second := storetest.NewPendingJob(t, domain.JobTypeSubtaskGeneration)
	require.NoError(t, s.Insert(ctx, first))
	require.NoError(t, s.Insert(ctx, second))
	require.NoError(t, s.Fail(ctx, first.ID, domain.NewJobError(domain.ErrorCodeInvalidInput, "rejected")))

	claimed, err := s.ClaimNextPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, claimed.ID)
}

func TestSnapshotsDoNotAliasStoredState(t *testing.T) {
	ctx := context.Background()
	s := memory.NewJobStore()

	job := storetest.NewPendingJob(t, domain.JobTypePersonalization)
	require.NoError(t, s.Insert(ctx, job))

	job.Params[2] = 'X'
	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"test"}`, string(got.Params))

	got.Status = domain.JobStatusCompleted
	again, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, again.Status)
}

func TestInsertRejectsInvalidJobs(t *testing.T) {
	ctx := context.Background()
	s := memory.NewJobStore()

	notPending := storetest.NewPendingJob(t, domain.JobTypeLearningPlan)
	notPending.Status = domain.JobStatusProcessing
	assert.ErrorIs(t, s.Insert(ctx, notPending), domain.ErrInvalidJobStatus)

	noTimeout := storetest.NewPendingJob(t, domain.JobTypeLearningPlan)
	noTimeout.Timeout = 0
	assert.ErrorIs(t, s.Insert(ctx, noTimeout), domain.ErrInvalidTimeout)
}
