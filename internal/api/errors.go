package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/genqueue/internal/api/shared"
	"github.com/phrazzld/genqueue/internal/domain"
	"github.com/phrazzld/genqueue/internal/service"
	"github.com/phrazzld/genqueue/internal/service/auth"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes. Unknown
// errors are 500.
func MapErrorToStatusCode(err error) int {
	if _, rejected := auth.RejectionMessage(err); rejected {
		return http.StatusUnauthorized
	}

	switch {
	case errors.Is(err, service.ErrJobNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client safe message for err. Validation
// errors from the domain describe only the offending field, so their text
// is passed through.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	if msg, rejected := auth.RejectionMessage(err); rejected {
		return msg
	}

	var verr *domain.ValidationError
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		return "Job not found"

	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, domain.ErrUnknownJobType):
		return "Unknown job type"
	case errors.Is(err, service.ErrInvalidInput):
		return "Invalid request"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the status and safe message for err and logs the
// redacted detail. defaultMsg replaces the message of 500 responses when set.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && defaultMsg != "" {
		message = defaultMsg
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
