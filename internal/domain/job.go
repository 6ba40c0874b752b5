package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobType is the closed set of generation jobs the queue accepts.
type JobType string

// Supported job types
const (
	JobTypePersonalization   JobType = "personalization"
	JobTypeLearningPlan      JobType = "learning_plan"
	JobTypeSubtaskGeneration JobType = "subtask_generation"
)

// AllJobTypes lists every supported job type in a stable order.
func AllJobTypes() []JobType {
	return []JobType{JobTypePersonalization, JobTypeLearningPlan, JobTypeSubtaskGeneration}
}

// ParseJobType converts a caller supplied string into a JobType.
func ParseJobType(s string) (JobType, error) {
	t := JobType(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownJobType, s)
	}
	return t, nil
}

// Valid reports whether t is one of the supported job types.
func (t JobType) Valid() bool {
	switch t {
	case JobTypePersonalization, JobTypeLearningPlan, JobTypeSubtaskGeneration:
		return true
	}
	return false
}

// JobStatus represents where a job is in its lifecycle.
type JobStatus string

// Possible job status values
const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// rank orders statuses along the state machine; both terminal states share a rank.
func (s JobStatus) rank() int {
	switch s {
	case JobStatusPending:
		return 0
	case JobStatusProcessing:
		return 1
	case JobStatusCompleted, JobStatusFailed:
		return 2
	}
	return -1
}

// Precedes reports whether s comes strictly before next on the state machine.
func (s JobStatus) Precedes(next JobStatus) bool {
	return s.rank() < next.rank()
}

// CanTransitionTo reports whether the state machine allows moving from s to next.
//
// PENDING may move to PROCESSING, or directly to FAILED when a job is
// rejected before dispatch. PROCESSING may move to either terminal state.
// Terminal states never move.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing || next == JobStatusFailed
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	}
	return false
}

// Job validation errors
var (
	ErrEmptyJobID       = errors.New("job ID cannot be empty")
	ErrInvalidJobStatus = errors.New("invalid job status")
	ErrInvalidTimeout   = errors.New("job timeout must be positive")
	ErrResultAndError   = errors.New("job cannot carry both a result and an error")
)

// Job is one request for AI generated content tracked to a terminal outcome.
//
// A Job value handed out by a store is a snapshot. Mutations go through the
// store's transition operations, never through a held reference.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Type        JobType         `json:"type"`
	Params      json.RawMessage `json:"params"`
	OwnerID     string          `json:"owner_id,omitempty"`
	Status      JobStatus       `json:"status"`
	Progress    string          `json:"progress,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *JobError       `json:"error,omitempty"`
	Attempt     int             `json:"attempt"`
	Timeout     time.Duration   `json:"timeout"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NewJob creates a PENDING job with a fresh ID.
// Params are stored verbatim; shape validation happens in DecodeParams.
func NewJob(jobType JobType, params json.RawMessage, timeout time.Duration, ownerID string) (*Job, error) {
	job := &Job{
		ID:        uuid.New(),
		Type:      jobType,
		Params:    params,
		OwnerID:   ownerID,
		Status:    JobStatusPending,
		Timeout:   timeout,
		CreatedAt: time.Now().UTC(),
	}

	if err := job.Validate(); err != nil {
		return nil, err
	}

	return job, nil
}

// Validate checks the structural invariants of a Job.
func (j *Job) Validate() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}
	if !j.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownJobType, j.Type)
	}
	if !j.Status.Valid() {
		return ErrInvalidJobStatus
	}
	if j.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if len(j.Result) > 0 && j.Error != nil {
		return ErrResultAndError
	}
	return nil
}

// RunningTime is now-startedAt while processing and completedAt-startedAt once
// terminal. A job that never started has zero running time.
func (j *Job) RunningTime(now time.Time) time.Duration {
	if j.StartedAt == nil {
		return 0
	}
	end := now
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	if d := end.Sub(*j.StartedAt); d > 0 {
		return d
	}
	return 0
}

// Clone returns a deep copy so callers can never alias store-owned state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Params = cloneRaw(j.Params)
	c.Result = cloneRaw(j.Result)
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func cloneRaw(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	out := make(json.RawMessage, len(b))
	copy(out, b)
	return out
}
