package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/genqueue/internal/domain"
	"github.com/phrazzld/genqueue/internal/events"
	"github.com/phrazzld/genqueue/internal/generation"
	"github.com/phrazzld/genqueue/internal/redact"
	"github.com/phrazzld/genqueue/internal/store"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Runner is the execution controller. It owns the worker pool and the
// janitor, and is the only writer of job state after creation.
type Runner struct {
	store    store.JobStore
	catalog  *generation.Catalog
	provider generation.Provider
	emitter  events.EventEmitter
	config   RunnerConfig
	logger   *slog.Logger

	// sem bounds in-flight provider calls, including calls abandoned by a
	// timed out job that have not returned yet.
	sem  *semaphore.Weighted
	wake chan struct{}

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewRunner creates a Runner. It does not start any goroutines.
func NewRunner(
	jobStore store.JobStore,
	catalog *generation.Catalog,
	provider generation.Provider,
	config RunnerConfig,
	logger *slog.Logger,
) (*Runner, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = DefaultRunnerConfig().StoreTimeout
	}

	return &Runner{
		store:    jobStore,
		catalog:  catalog,
		provider: provider,
		config:   config,
		logger:   logger.With("component", "task_runner"),
		sem:      semaphore.NewWeighted(int64(config.WorkerCount)),
		wake:     make(chan struct{}, config.WorkerCount),
	}, nil
}

// SetEmitter sets where job status events are published. Call before Start.
func (r *Runner) SetEmitter(emitter events.EventEmitter) {
	r.emitter = emitter
}

// Start fails jobs orphaned by a previous process, then launches the workers
// and the janitor. The runner keeps running until Stop, independent of ctx
// cancellation; ctx only scopes the startup work and carries values.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return ErrRunnerStarted
	}

	orphaned, err := r.store.FailOrphaned(ctx,
		domain.NewJobError(domain.ErrorCodeInternal, "job was interrupted by a restart"))
	if err != nil {
		return fmt.Errorf("failed to recover orphaned jobs: %w", err)
	}
	if orphaned > 0 {
		r.logger.Warn("failed jobs orphaned by previous process", "count", orphaned)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	group, groupCtx := errgroup.WithContext(runCtx)

	for i := 0; i < r.config.WorkerCount; i++ {
		workerID := i
		group.Go(func() error {
			r.worker(groupCtx, workerID)
			return nil
		})
	}

	if r.config.JanitorInterval > 0 {
		group.Go(func() error {
			r.janitor(groupCtx)
			return nil
		})
	}

	r.cancel = cancel
	r.group = group

	r.logger.Info("task runner started",
		"worker_count", r.config.WorkerCount,
		"max_attempts", r.config.MaxAttempts,
		"poll_interval", r.config.PollInterval,
		"retention", r.config.Retention)

	return nil
}

// Stop cancels every in-flight job and waits for the workers and janitor to
// exit. Jobs cut short are failed with internal_error. Provider calls that
// ignore cancellation are abandoned, not awaited.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel == nil {
		return
	}

	r.cancel()
	_ = r.group.Wait()
	r.cancel = nil
	r.group = nil

	r.logger.Info("task runner stopped")
}

// Notify wakes an idle worker so a newly inserted job is claimed without
// waiting for the next poll. It never blocks.
func (r *Runner) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// janitor periodically evicts terminal jobs older than the retention period
func (r *Runner) janitor(ctx context.Context) {
	ticker := time.NewTicker(r.config.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evict(ctx)
		}
	}
}

func (r *Runner) evict(ctx context.Context) {
	evicted, err := r.store.EvictOlderThan(ctx, r.config.Retention)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("failed to evict expired jobs", "error", redact.Error(err))
		}
		return
	}
	if evicted > 0 {
		r.logger.Info("evicted expired jobs", "count", evicted, "retention", r.config.Retention)
	}
}

// storeContext detaches store writes from job cancellation so an outcome
// can still be recorded after the job's deadline has passed.
func (r *Runner) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), r.config.StoreTimeout)
}

func (r *Runner) emit(ctx context.Context, job *domain.Job, status domain.JobStatus, attempt int, progress string) {
	if r.emitter == nil {
		return
	}
	if err := r.emitter.EmitEvent(ctx, events.NewJobEvent(job.ID, status, attempt, progress)); err != nil {
		r.logger.Debug("failed to emit job event", "job_id", job.ID, "status", status, "error", err)
	}
}
