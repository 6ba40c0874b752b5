package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrInvalidInput is returned when a job request is rejected before a
	// record is created. It is always wrapped with a specific reason.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownJobType is returned for a type outside the closed job type set.
	ErrUnknownJobType = fmt.Errorf("%w: unknown job type", ErrInvalidInput)

	// ErrInvalidParams is returned when params do not have the minimum shape
	// required by the job type.
	ErrInvalidParams = fmt.Errorf("%w: invalid params", ErrInvalidInput)
)

// ErrorCode is the stable classification a FAILED job carries.
type ErrorCode string

// Error classifications
const (
	ErrorCodeInvalidInput   ErrorCode = "invalid_input"
	ErrorCodeTruncated      ErrorCode = "truncated"
	ErrorCodeSchemaMismatch ErrorCode = "schema_mismatch"
	ErrorCodeUnparseable    ErrorCode = "unparseable"
	ErrorCodeProviderError  ErrorCode = "provider_error"
	ErrorCodeTimeout        ErrorCode = "timeout"
	ErrorCodeInternal       ErrorCode = "internal_error"
)

// Retryable reports whether an attempt that ended with this code may be
// followed by another attempt within the job's retry budget.
//
// provider_error is only retryable when the underlying provider failure is
// transient; the execution controller makes that distinction before
// consulting the code.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrorCodeTruncated, ErrorCodeSchemaMismatch, ErrorCodeUnparseable, ErrorCodeProviderError:
		return true
	}
	return false
}

// Valid reports whether c is a known classification.
func (c ErrorCode) Valid() bool {
	switch c {
	case ErrorCodeInvalidInput, ErrorCodeTruncated, ErrorCodeSchemaMismatch,
		ErrorCodeUnparseable, ErrorCodeProviderError, ErrorCodeTimeout, ErrorCodeInternal:
		return true
	}
	return false
}

// JobError is the terminal error recorded on a FAILED job.
type JobError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// NewJobError builds a JobError from a classification and message.
func NewJobError(code ErrorCode, message string) *JobError {
	return &JobError{Code: code, Message: message}
}

// Error implements the error interface.
func (e *JobError) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
