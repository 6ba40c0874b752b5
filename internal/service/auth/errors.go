package auth

import "errors"

var (
	ErrMissingToken     = errors.New("authentication token is missing")
	ErrInvalidToken     = errors.New("invalid authentication token")
	ErrExpiredToken     = errors.New("authentication token has expired")
	ErrTokenNotYetValid = errors.New("authentication token not yet valid")
	// ErrMissingSubject means the token names no owner to scope jobs to.
	ErrMissingSubject = errors.New("authentication token has no subject")
)

// RejectionMessage reports whether err means the caller's credentials were
// refused, and if so the message safe to return to them. Errors outside this
// package's set report false.
func RejectionMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "Authorization header required", true
	case errors.Is(err, ErrExpiredToken):
		return "Token expired", true
	case errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrTokenNotYetValid),
		errors.Is(err, ErrMissingSubject):
		return "Invalid token", true
	}
	return "", false
}
