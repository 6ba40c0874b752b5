package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/phrazzld/genqueue/internal/service/auth"
)

// MockJWTService implements auth.JWTService. With no fields set it is an
// identity signer: the token for subject s is s itself, and validating a
// token yields claims whose subject is the token.
type MockJWTService struct {
	GenerateTokenFn func(ctx context.Context, subject string) (string, error)
	ValidateTokenFn func(ctx context.Context, token string) (*auth.Claims, error)

	// ValidateErr and Claims fix the ValidateToken result when set.
	ValidateErr error
	Claims      *auth.Claims

	mu        sync.Mutex
	validated []string
}

var _ auth.JWTService = (*MockJWTService)(nil)

func (m *MockJWTService) GenerateToken(ctx context.Context, subject string) (string, error) {
	if m.GenerateTokenFn != nil {
		return m.GenerateTokenFn(ctx, subject)
	}
	return subject, nil
}

func (m *MockJWTService) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	m.mu.Lock()
	m.validated = append(m.validated, token)
	m.mu.Unlock()

	switch {
	case m.ValidateTokenFn != nil:
		return m.ValidateTokenFn(ctx, token)
	case m.ValidateErr != nil:
		return nil, m.ValidateErr
	case m.Claims != nil:
		return m.Claims, nil
	}
	now := time.Now().UTC()
	return &auth.Claims{Subject: token, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}, nil
}

// ValidatedTokens returns every token passed to ValidateToken, in order.
func (m *MockJWTService) ValidatedTokens() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.validated...)
}
