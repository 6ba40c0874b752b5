package task

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/phrazzld/genqueue/internal/domain"
	"github.com/phrazzld/genqueue/internal/redact"
	"github.com/phrazzld/genqueue/internal/store"
)

// worker claims and executes jobs until ctx is cancelled. With nothing to
// claim it sleeps until woken by Notify, the poll ticker or shutdown.
func (r *Runner) worker(ctx context.Context, id int) {
	log := r.logger.With("worker_id", id)
	log.Debug("starting worker")

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			log.Debug("stopping worker")
			return
		}

		job, err := r.claim(ctx, log)
		if job != nil {
			r.execute(ctx, job, log)
			continue
		}
		if err != nil {
			// back off until the next tick rather than spinning on a broken store
			select {
			case <-ctx.Done():
			case <-ticker.C:
			}
			continue
		}

		select {
		case <-ctx.Done():
		case <-r.wake:
		case <-ticker.C:
		}
	}
}

// claim returns the next job, nil with a nil error when the queue is empty,
// or the store error.
func (r *Runner) claim(ctx context.Context, log *slog.Logger) (*domain.Job, error) {
	claimCtx, cancel := r.storeContext(ctx)
	defer cancel()

	job, err := r.store.ClaimNextPending(claimCtx)
	if errors.Is(err, store.ErrNoPendingJobs) {
		return nil, nil
	}
	if err != nil {
		log.Error("failed to claim pending job", "error", redact.Error(err))
		return nil, err
	}

	log.Info("claimed job",
		"job_id", job.ID,
		"job_type", job.Type,
		"queued_ms", job.StartedAt.Sub(job.CreatedAt).Milliseconds())
	r.emit(ctx, job, domain.JobStatusProcessing, 0, "")
	return job, nil
}
