package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeParams(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		jobType JobType
		raw     string
		wantErr error
		errMsg  string
	}{
		{
			name:    "personalization minimal",
			jobType: JobTypePersonalization,
			raw:     `{"title":"Run a marathon"}`,
		},
		{
			name:    "learning plan with answers",
			jobType: JobTypeLearningPlan,
			raw:     `{"title":"Learn Go","answers":[{"question":"Experience?","answer":"Python"}],"hoursPerWeek":5}`,
		},
		{
			name:    "subtasks with unknown fields tolerated",
			jobType: JobTypeSubtaskGeneration,
			raw:     `{"title":"Ship v1","colour":"blue"}`,
		},
		{
			name:    "missing title",
			jobType: JobTypeLearningPlan,
			raw:     `{"description":"no title"}`,
			wantErr: ErrInvalidParams,
			errMsg:  "Title is required",
		},
		{
			name:    "answer missing text",
			jobType: JobTypeLearningPlan,
			raw:     `{"title":"x","answers":[{"question":"q"}]}`,
			wantErr: ErrInvalidParams,
			errMsg:  "Answer is required",
		},
		{
			name:    "subtask bound exceeded",
			jobType: JobTypeSubtaskGeneration,
			raw:     `{"title":"x","maxSubtasks":100}`,
			wantErr: ErrInvalidParams,
			errMsg:  "MaxSubtasks exceeds maximum of 25",
		},
		{
			name:    "not an object",
			jobType: JobTypePersonalization,
			raw:     `["title"]`,
			wantErr: ErrInvalidParams,
			errMsg:  "must be a JSON object",
		},
		{
			name:    "empty",
			jobType: JobTypePersonalization,
			raw:     ``,
			wantErr: ErrInvalidParams,
		},
		{
			name:    "wrong field type",
			jobType: JobTypePersonalization,
			raw:     `{"title":42}`,
			wantErr: ErrInvalidParams,
			errMsg:  "invalid format",
		},
		{
			name:    "unknown type",
			jobType: "essay",
			raw:     `{"title":"x"}`,
			wantErr: ErrUnknownJobType,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			params, err := DecodeParams(tc.jobType, json.RawMessage(tc.raw))
			if tc.wantErr == nil {
				require.NoError(t, err)
				assert.NotNil(t, params)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.ErrorIs(t, err, ErrInvalidInput)
			if tc.errMsg != "" {
				assert.Contains(t, err.Error(), tc.errMsg)
			}
		})
	}
}

func TestDecodeParamsReturnsTypedStruct(t *testing.T) {
	t.Parallel()

	params, err := DecodeParams(JobTypeSubtaskGeneration, json.RawMessage(`{"title":"Ship","maxSubtasks":4}`))
	require.NoError(t, err)

	sp, ok := params.(*SubtaskParams)
	require.True(t, ok, "expected *SubtaskParams, got %T", params)
	assert.Equal(t, "Ship", sp.Title)
	assert.Equal(t, 4, sp.MaxSubtasks)
}

func TestParseJobType(t *testing.T) {
	t.Parallel()

	for _, jt := range AllJobTypes() {
		got, err := ParseJobType(string(jt))
		require.NoError(t, err)
		assert.Equal(t, jt, got)
	}

	_, err := ParseJobType(strings.ToUpper(string(JobTypeLearningPlan)))
	assert.ErrorIs(t, err, ErrUnknownJobType)
}
