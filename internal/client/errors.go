package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrJobNotFound is returned when the server answers 404 for a job. The
	// job is unknown or was evicted, so polling stops.
	ErrJobNotFound = errors.New("job not found")

	// ErrWaitTimeout is returned when a job does not reach a terminal state
	// within the client's maximum wait.
	ErrWaitTimeout = errors.New("timed out waiting for job")
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps a 404 onto ErrJobNotFound.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrJobNotFound
	}
	return nil
}

// Temporary reports whether the request may succeed if repeated.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// retryable reports whether Wait should keep polling after err.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	// transport errors
	return true
}
