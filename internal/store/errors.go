package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound and ErrDuplicate are the driver-neutral forms sqlstore maps
	// database errors onto.
	ErrNotFound  = errors.New("entity not found")
	ErrDuplicate = errors.New("entity already exists")

	// ErrJobNotFound means the job never existed or has been evicted.
	ErrJobNotFound  = fmt.Errorf("%w: job", ErrNotFound)
	ErrDuplicateJob = fmt.Errorf("%w: job", ErrDuplicate)

	// ErrStaleWrite rejects a transition the job's current status does not
	// allow, such as completing a job a timeout already failed. The job is
	// unchanged.
	ErrStaleWrite = errors.New("stale write")

	ErrNoPendingJobs = errors.New("no pending jobs")
)

// IsStaleWrite reports whether err came from a transition guard.
func IsStaleWrite(err error) bool {
	return errors.Is(err, ErrStaleWrite)
}

// StoreError records which store operation failed on which entity.
type StoreError struct {
	Entity    string
	Operation string
	Message   string
	Err       error
}

func (e *StoreError) Error() string {
	msg := e.Entity + " " + e.Operation + ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error { return e.Err }

func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{Entity: entity, Operation: operation, Message: message, Err: err}
}
