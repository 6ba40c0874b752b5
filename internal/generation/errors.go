package generation

import (
	"errors"
	"fmt"
)

// Common errors returned by the generation package and its providers
var (
	// ErrProviderFailed is the root of every provider call failure.
	ErrProviderFailed = errors.New("provider call failed")

	// ErrTransient marks failures that may succeed on another attempt:
	// network errors, 5xx responses and rate limiting.
	ErrTransient = fmt.Errorf("%w: transient", ErrProviderFailed)

	// ErrPermanent marks failures another attempt cannot fix, such as a
	// rejected request or invalid credentials.
	ErrPermanent = fmt.Errorf("%w: permanent", ErrProviderFailed)

	// ErrContentBlocked is returned when the provider refuses the prompt on
	// safety grounds.
	ErrContentBlocked = fmt.Errorf("%w: content blocked", ErrPermanent)

	// ErrEmptyResponse is returned when the provider answers with no text.
	ErrEmptyResponse = fmt.Errorf("%w: empty response", ErrTransient)

	// ErrInvalidConfig is returned when a provider or catalog is misconfigured.
	ErrInvalidConfig = errors.New("invalid generation configuration")

	// ErrPromptRender is returned when params cannot be rendered into a prompt.
	ErrPromptRender = errors.New("failed to render prompt")
)

// IsTransient reports whether err is a provider failure worth retrying.
// Errors a provider did not classify, such as a raw network error, count
// as transient.
func IsTransient(err error) bool {
	return err != nil && !errors.Is(err, ErrPermanent)
}
