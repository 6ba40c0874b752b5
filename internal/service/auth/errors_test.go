package auth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRejectionMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantMsg  string
		rejected bool
	}{
		{"missing", ErrMissingToken, "Authorization header required", true},
		{"expired", fmt.Errorf("validate: %w", ErrExpiredToken), "Token expired", true},
		{"bad signature", ErrInvalidToken, "Invalid token", true},
		{"not yet valid", ErrTokenNotYetValid, "Invalid token", true},
		{"no subject", ErrMissingSubject, "Invalid token", true},
		{"other", errors.New("keystore unavailable"), "", false},
		{"nil", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, rejected := RejectionMessage(tt.err)
			assert.Equal(t, tt.rejected, rejected)
			assert.Equal(t, tt.wantMsg, msg)
		})
	}
}
