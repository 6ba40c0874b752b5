package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genqueue/internal/domain"
)

// JobEvent reports that a job's stored state changed.
type JobEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	JobID    uuid.UUID        `json:"job_id"`
	Status   domain.JobStatus `json:"status"`
	Attempt  int              `json:"attempt"`
	Progress string           `json:"progress,omitempty"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// NewJobEvent creates a JobEvent for a transition of jobID into status.
func NewJobEvent(jobID uuid.UUID, status domain.JobStatus, attempt int, progress string) *JobEvent {
	return &JobEvent{
		ID:        uuid.New(),
		JobID:     jobID,
		Status:    status,
		Attempt:   attempt,
		Progress:  progress,
		CreatedAt: time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *JobEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows the controller to publish events without knowing its listeners.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *JobEvent) error
}
