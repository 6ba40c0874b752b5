package generation

import (
	"context"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"golang.org/x/time/rate"
)

// RateLimitedProvider delays calls to next so they never exceed the
// limiter's rate. Waiting honours ctx, so a job timeout also cuts the wait.
type RateLimitedProvider struct {
	next    Provider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps next with a token bucket of rps calls per
// second and the given burst. A non-positive rps returns next unchanged.
func NewRateLimitedProvider(next Provider, rps float64, burst int) Provider {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedProvider{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Generate implements Provider.
func (p *RateLimitedProvider) Generate(ctx context.Context, prompt string, schema *openapi3.Schema) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		// Wait gives up early when no token frees before the deadline; the
		// call could not have happened in time, so surface the deadline.
		if _, ok := ctx.Deadline(); ok {
			<-ctx.Done()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: rate limiter: %v", ErrTransient, err)
	}
	return p.next.Generate(ctx, prompt, schema)
}
