package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/genqueue/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingHandler struct {
	handled int
	last    *JobEvent
}

func (h *countingHandler) HandleEvent(_ context.Context, event *JobEvent) error {
	h.handled++
	h.last = event
	return nil
}

func TestNewJobEvent(t *testing.T) {
	jobID := uuid.New()
	event := NewJobEvent(jobID, domain.JobStatusProcessing, 2, "retry 2/3: response truncated")

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, jobID, event.JobID)
	assert.Equal(t, domain.JobStatusProcessing, event.Status)
	assert.Equal(t, 2, event.Attempt)
	assert.Equal(t, "retry 2/3: response truncated", event.Progress)
	assert.WithinDuration(t, time.Now(), event.CreatedAt, 2*time.Second)
}

func TestJobEventOmitsEmptyProgress(t *testing.T) {
	data, err := json.Marshal(NewJobEvent(uuid.New(), domain.JobStatusPending, 0, ""))
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.NotContains(t, fields, "progress")
	assert.Equal(t, "PENDING", fields["status"])
}
