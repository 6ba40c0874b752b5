package events

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/genqueue/internal/domain"
	"github.com/phrazzld/genqueue/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitEventDeliversInOrder(t *testing.T) {
	_, log := logger.SetupTestLogger(t)
	emitter := NewInMemoryEventEmitter(log)

	var seen []string
	record := func(name string) HandlerFunc {
		return func(_ context.Context, ev *JobEvent) error {
			seen = append(seen, name+":"+string(ev.Status))
			return nil
		}
	}
	emitter.RegisterHandler(record("wake"))
	emitter.RegisterHandler(record("stream"))

	err := emitter.EmitEvent(context.Background(), NewJobEvent(uuid.New(), domain.JobStatusPending, 0, ""))

	require.NoError(t, err)
	assert.Equal(t, []string{"wake:PENDING", "stream:PENDING"}, seen)
}

func TestEmitEventWithoutHandlers(t *testing.T) {
	_, log := logger.SetupTestLogger(t)
	emitter := NewInMemoryEventEmitter(log)

	assert.NoError(t, emitter.EmitEvent(context.Background(), NewJobEvent(uuid.New(), domain.JobStatusCompleted, 1, "")))
}

func TestEmitEventJoinsHandlerFailures(t *testing.T) {
	buf, log := logger.SetupTestLogger(t)
	emitter := NewInMemoryEventEmitter(log)

	errFull := errors.New("subscriber full")
	errGone := errors.New("runner stopped")
	tail := &countingHandler{}

	emitter.RegisterHandler(HandlerFunc(func(context.Context, *JobEvent) error { return errFull }))
	emitter.RegisterHandler(HandlerFunc(func(context.Context, *JobEvent) error { return errGone }))
	emitter.RegisterHandler(tail)

	err := emitter.EmitEvent(context.Background(), NewJobEvent(uuid.New(), domain.JobStatusFailed, 3, ""))

	require.Error(t, err)
	assert.ErrorIs(t, err, errFull)
	assert.ErrorIs(t, err, errGone)
	assert.Contains(t, err.Error(), "handler 1")
	assert.Equal(t, 1, tail.handled, "later handlers still receive the event")
	logger.AssertLogContains(t, buf, "event handler failed")
}
