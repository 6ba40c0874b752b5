package generation

import (
	"encoding/json"
	"testing"

	"github.com/phrazzld/genqueue/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCatalogCoversEveryJobType(t *testing.T) {
	catalog, err := NewCatalog()
	require.NoError(t, err)

	for _, jt := range domain.AllJobTypes() {
		kind, err := catalog.Lookup(jt)
		require.NoError(t, err, "job type %s", jt)
		assert.Equal(t, jt, kind.Type)
		require.NotNil(t, kind.Schema)
		assert.NotEmpty(t, kind.Schema.Required, "schema for %s should require fields", jt)
	}

	_, err = catalog.Lookup("essay")
	assert.ErrorIs(t, err, domain.ErrUnknownJobType)
}

func TestKindRender(t *testing.T) {
	catalog, err := NewCatalog()
	require.NoError(t, err)

	tests := []struct {
		name     string
		jobType  domain.JobType
		params   string
		contains []string
		absent   []string
	}{
		{
			name:     "personalization",
			jobType:  domain.JobTypePersonalization,
			params:   `{"title":"Run a marathon","deadline":"2026-04-01"}`,
			contains: []string{"Goal: Run a marathon", "Deadline: 2026-04-01", `"questions"`},
			absent:   []string{"Details:"},
		},
		{
			name:     "learning plan with answers",
			jobType:  domain.JobTypeLearningPlan,
			params:   `{"title":"Learn Go","hoursPerWeek":6,"answers":[{"question":"Experience","answer":"Python"}]}`,
			contains: []string{"Goal: Learn Go", "6 hours per week", "- Experience: Python", `"milestones"`},
		},
		{
			name:     "subtasks default bound",
			jobType:  domain.JobTypeSubtaskGeneration,
			params:   `{"title":"Ship v1"}`,
			contains: []string{"Task: Ship v1", "at most 8 subtasks", `"estimatedMinutes"`},
		},
		{
			name:     "subtasks explicit bound",
			jobType:  domain.JobTypeSubtaskGeneration,
			params:   `{"title":"Ship v1","maxSubtasks":3}`,
			contains: []string{"at most 3 subtasks"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			kind, err := catalog.Lookup(tc.jobType)
			require.NoError(t, err)

			prompt, err := kind.Render(json.RawMessage(tc.params))
			require.NoError(t, err)
			for _, s := range tc.contains {
				assert.Contains(t, prompt, s)
			}
			for _, s := range tc.absent {
				assert.NotContains(t, prompt, s)
			}
		})
	}
}

func TestKindRenderRejectsInvalidParams(t *testing.T) {
	catalog, err := NewCatalog()
	require.NoError(t, err)

	kind, err := catalog.Lookup(domain.JobTypeLearningPlan)
	require.NoError(t, err)

	_, err = kind.Render(json.RawMessage(`{"description":"missing title"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidParams)
}

func TestResponseSchemasAcceptExamples(t *testing.T) {
	examples := map[domain.JobType]string{
		domain.JobTypePersonalization: `{"questions":[{"id":"q1","question":"How fit are you?","kind":"scale"}]}`,
		domain.JobTypeLearningPlan:    `{"title":"Go","summary":"Learn Go","milestones":[{"title":"Basics","description":"Syntax","durationDays":7}]}`,
		domain.JobTypeSubtaskGeneration: `{"subtasks":[{"title":"Plan","description":"Write plan","estimatedMinutes":30}]}`,
	}

	for jt, doc := range examples {
		schema, ok := ResponseSchema(jt)
		require.True(t, ok)

		var value any
		require.NoError(t, json.Unmarshal([]byte(doc), &value))
		assert.NoError(t, schema.VisitJSON(value), "example for %s", jt)
	}

	schema, _ := ResponseSchema(domain.JobTypeSubtaskGeneration)
	var missing any
	require.NoError(t, json.Unmarshal([]byte(`{"subtasks":[{"title":"Plan"}]}`), &missing))
	assert.Error(t, schema.VisitJSON(missing))
}
