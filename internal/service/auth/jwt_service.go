package auth

import (
	"context"
	"time"
)

// JWTService issues and validates the bearer tokens that scope jobs to an
// owner. The token subject becomes the job's owner id.
type JWTService interface {
	// GenerateToken signs a token for subject that expires after the
	// configured lifetime.
	GenerateToken(ctx context.Context, subject string) (string, error)

	// ValidateToken verifies signature and time claims and extracts the
	// claims. It returns ErrExpiredToken, ErrTokenNotYetValid,
	// ErrMissingSubject or ErrInvalidToken on failure.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims are the validated contents of a bearer token.
type Claims struct {
	Subject   string    `json:"sub"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
	ID        string    `json:"jti,omitempty"`
}
