package service

import (
	"errors"

	"github.com/phrazzld/genqueue/internal/domain"
	"github.com/phrazzld/genqueue/internal/store"
)

var (
	// ErrInvalidInput covers an unknown job type, malformed params and an
	// out of range timeout. No job is created.
	ErrInvalidInput = domain.ErrInvalidInput

	// ErrJobNotFound covers unknown, evicted and foreign-owned job ids alike.
	ErrJobNotFound = store.ErrJobNotFound
)

// ServiceError is an unexpected failure of a job service operation,
// usually from the store.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	if e.Err == nil {
		return "job service: " + e.Op
	}
	return "job service: " + e.Op + ": " + e.Err.Error()
}

func (e *ServiceError) Unwrap() error { return e.Err }

// NewJobServiceError wraps err in a ServiceError unless it already carries
// ErrInvalidInput or ErrJobNotFound, which callers match directly.
func NewJobServiceError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrJobNotFound):
		return err
	}
	return &ServiceError{Op: op, Err: err}
}
