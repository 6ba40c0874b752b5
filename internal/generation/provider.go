package generation

import (
	"context"

	"github.com/getkin/kin-openapi/openapi3"
)

// Provider is the AI provider boundary. Generate sends prompt, asks for
// output conforming to schema and returns the raw text of the answer.
//
// Implementations make exactly one outbound call per invocation and do not
// retry or validate. Errors should wrap ErrTransient or ErrPermanent so the
// caller can decide whether another attempt is worthwhile.
type Provider interface {
	Generate(ctx context.Context, prompt string, schema *openapi3.Schema) (string, error)
}
