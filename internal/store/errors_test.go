package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		notFound bool
		stale    bool
	}{
		{name: "nil error"},
		{name: "generic error", err: errors.New("some error")},
		{name: "ErrNotFound", err: ErrNotFound, notFound: true},
		{name: "ErrJobNotFound", err: ErrJobNotFound, notFound: true},
		{name: "wrapped ErrJobNotFound", err: fmt.Errorf("get: %w", ErrJobNotFound), notFound: true},
		{name: "ErrStaleWrite", err: ErrStaleWrite, stale: true},
		{
			name:  "store error wrapping stale write",
			err:   NewStoreError("job", "complete", "job is terminal", ErrStaleWrite),
			stale: true,
		},
		{name: "duplicate is not not-found", err: ErrDuplicateJob},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.notFound, errors.Is(tc.err, ErrNotFound))
			assert.Equal(t, tc.stale, IsStaleWrite(tc.err))
		})
	}
}

func TestStoreErrorMessage(t *testing.T) {
	err := NewStoreError("job", "claim", "query failed", errors.New("conn reset"))
	assert.Equal(t, "job claim: query failed: conn reset", err.Error())

	bare := NewStoreError("job", "evict", "no rows", nil)
	assert.Equal(t, "job evict: no rows", bare.Error())
}
