package task

import (
	"context"
	"log/slog"

	"github.com/phrazzld/genqueue/internal/domain"
	"github.com/phrazzld/genqueue/internal/events"
)

// Notifier is woken when claimable work may exist. *Runner implements it.
type Notifier interface {
	Notify()
}

var _ Notifier = (*Runner)(nil)

// WakeEventHandler turns job-created events into runner wake-ups so a new
// job is claimed without waiting for the next poll tick.
type WakeEventHandler struct {
	notifier Notifier
	logger   *slog.Logger
}

var _ events.EventHandler = (*WakeEventHandler)(nil)

// NewWakeEventHandler returns a handler that calls notifier.Notify for each
// PENDING event.
func NewWakeEventHandler(notifier Notifier, logger *slog.Logger) *WakeEventHandler {
	return &WakeEventHandler{notifier: notifier, logger: logger.With("component", "runner_wake")}
}

// HandleEvent notifies on PENDING. Other transitions come from the runner
// itself and need no wake-up.
func (h *WakeEventHandler) HandleEvent(_ context.Context, event *events.JobEvent) error {
	if event.Status == domain.JobStatusPending {
		h.logger.Debug("new job, waking runner", "job_id", event.JobID)
		h.notifier.Notify()
	}
	return nil
}
