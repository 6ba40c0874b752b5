package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/phrazzld/genqueue/internal/domain"
	"github.com/phrazzld/genqueue/internal/generation"
	"github.com/phrazzld/genqueue/internal/redact"
	"github.com/phrazzld/genqueue/internal/store"
	"github.com/phrazzld/genqueue/internal/validate"
)

type callResult struct {
	text string
	err  error
}

// execute runs one claimed job to a terminal state. parent is the worker
// context; the job's own deadline is derived from it.
func (r *Runner) execute(parent context.Context, job *domain.Job, log *slog.Logger) {
	log = log.With("job_id", job.ID, "job_type", job.Type)

	ctx, cancel := context.WithTimeout(parent, job.Timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			log.Error("job execution panicked",
				"panic", redact.String(fmt.Sprint(p)),
				"stack", string(debug.Stack()))
			r.fail(parent, job, domain.NewJobError(domain.ErrorCodeInternal, "internal error during execution"), log)
		}
	}()

	result, jobErr := r.attempts(parent, ctx, job, log)
	if jobErr != nil {
		r.fail(parent, job, jobErr, log)
		return
	}
	r.complete(parent, job, result, log)
}

// attempts renders the prompt and makes up to MaxAttempts provider calls,
// returning either a validated result or the error to fail the job with.
func (r *Runner) attempts(parent, ctx context.Context, job *domain.Job, log *slog.Logger) (json.RawMessage, *domain.JobError) {
	kind, err := r.catalog.Lookup(job.Type)
	if err != nil {
		return nil, domain.NewJobError(domain.ErrorCodeInvalidInput, err.Error())
	}

	prompt, err := kind.Render(job.Params)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return nil, domain.NewJobError(domain.ErrorCodeInvalidInput, redact.Error(err))
		}
		log.Error("failed to render prompt", "error", redact.Error(err))
		return nil, domain.NewJobError(domain.ErrorCodeInternal, "failed to render prompt")
	}

	maxAttempts := r.config.MaxAttempts
	var last *domain.JobError
	reason := ""

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, r.deadlineError(parent, job)
		}

		note := fmt.Sprintf("attempt %d/%d", attempt, maxAttempts)
		if attempt > 1 {
			note = fmt.Sprintf("retry %d/%d: %s", attempt, maxAttempts, reason)
		}
		r.progress(parent, job, note, attempt, log)

		text, err := r.call(ctx, prompt, kind.Schema)
		if ctx.Err() != nil {
			// a result that lands with the deadline is dropped
			return nil, r.deadlineError(parent, job)
		}

		if err != nil {
			if errors.Is(err, errProviderPanic) {
				log.Error("provider call panicked", "attempt", attempt, "error", redact.Error(err))
				return nil, domain.NewJobError(domain.ErrorCodeInternal, "internal error during provider call")
			}
			if !generation.IsTransient(err) {
				log.Warn("provider call failed permanently", "attempt", attempt, "error", redact.Error(err))
				return nil, domain.NewJobError(domain.ErrorCodeProviderError, redact.Error(err))
			}
			log.Warn("provider call failed", "attempt", attempt, "error", redact.Error(err))
			last = domain.NewJobError(domain.ErrorCodeProviderError, redact.Error(err))
			reason = "transient provider error"
			continue
		}

		res, err := validate.Validate(text, kind.Schema)
		if err == nil {
			if res.Repaired {
				log.Info("accepted repaired response", "attempt", attempt)
			}
			return res.Value, nil
		}

		var verr *validate.Error
		if !errors.As(err, &verr) {
			return nil, domain.NewJobError(domain.ErrorCodeInternal, "validator failed")
		}
		log.Warn("response rejected",
			"attempt", attempt,
			"classification", verr.Code,
			"detail", redact.String(verr.Detail),
			"excerpt", redact.Excerpt(text, 200))
		last = domain.NewJobError(verr.Code, verr.Error())
		reason = verr.Reason()
	}

	log.Warn("retry budget exhausted", "max_attempts", maxAttempts, "classification", last.Code)
	return nil, last
}

// call makes one provider call holding a semaphore slot. The slot is held
// by the calling goroutine until the provider returns, even if ctx ends
// first and the call is abandoned.
func (r *Runner) call(ctx context.Context, prompt string, schema *openapi3.Schema) (string, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}

	done := make(chan callResult, 1)
	go func() {
		defer r.sem.Release(1)
		defer func() {
			if p := recover(); p != nil {
				done <- callResult{err: fmt.Errorf("%w: %v", errProviderPanic, p)}
			}
		}()

		text, err := r.provider.Generate(ctx, prompt, schema)
		done <- callResult{text: text, err: err}
	}()

	select {
	case res := <-done:
		return res.text, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// deadlineError classifies a finished job context: the job's own deadline
// is a timeout, a cancelled worker means shutdown.
func (r *Runner) deadlineError(parent context.Context, job *domain.Job) *domain.JobError {
	if parent.Err() != nil {
		return domain.NewJobError(domain.ErrorCodeInternal, "job was interrupted by shutdown")
	}
	return domain.NewJobError(domain.ErrorCodeTimeout,
		fmt.Sprintf("job exceeded its %s timeout", job.Timeout))
}

func (r *Runner) progress(parent context.Context, job *domain.Job, note string, attempt int, log *slog.Logger) {
	ctx, cancel := r.storeContext(parent)
	defer cancel()

	if err := r.store.UpdateProgress(ctx, job.ID, note, attempt); err != nil {
		if store.IsStaleWrite(err) {
			log.Debug("skipped progress update on job that is no longer processing", "attempt", attempt)
			return
		}
		log.Error("failed to update job progress", "attempt", attempt, "error", redact.Error(err))
		return
	}
	job.Progress, job.Attempt = note, attempt
	r.emit(ctx, job, domain.JobStatusProcessing, attempt, note)
}

func (r *Runner) complete(parent context.Context, job *domain.Job, result json.RawMessage, log *slog.Logger) {
	ctx, cancel := r.storeContext(parent)
	defer cancel()

	if err := r.store.Complete(ctx, job.ID, result); err != nil {
		if store.IsStaleWrite(err) {
			log.Warn("dropped result for job that already reached a terminal state")
			return
		}
		log.Error("failed to record job result", "error", redact.Error(err))
		r.fail(parent, job, domain.NewJobError(domain.ErrorCodeInternal, "failed to record result"), log)
		return
	}

	log.Info("job completed", "attempt", job.Attempt)
	r.emit(ctx, job, domain.JobStatusCompleted, job.Attempt, job.Progress)
}

func (r *Runner) fail(parent context.Context, job *domain.Job, jobErr *domain.JobError, log *slog.Logger) {
	ctx, cancel := r.storeContext(parent)
	defer cancel()

	if err := r.store.Fail(ctx, job.ID, jobErr); err != nil {
		if store.IsStaleWrite(err) {
			log.Warn("dropped failure for job that already reached a terminal state", "classification", jobErr.Code)
			return
		}
		log.Error("failed to record job failure", "classification", jobErr.Code, "error", redact.Error(err))
		return
	}

	log.Info("job failed", "attempt", job.Attempt, "classification", jobErr.Code)
	r.emit(ctx, job, domain.JobStatusFailed, job.Attempt, job.Progress)
}
