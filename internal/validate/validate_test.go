package validate_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/phrazzld/genqueue/internal/domain"
	"github.com/phrazzld/genqueue/internal/generation"
	"github.com/phrazzld/genqueue/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPlan = `{
  "title": "Learn Go",
  "summary": "Four weeks from syntax to services, with \"real\" projects.",
  "milestones": [
    {"title": "Basics", "description": "Syntax, types and tooling", "durationDays": 7, "tasks": ["Tour of Go", "Write a CLI"]},
    {"title": "Concurrency", "description": "Goroutines, channels and context → the hard part", "durationDays": 10},
    {"title": "Services", "description": "HTTP, databases, tests", "durationDays": 11}
  ]
}`

const validSubtasks = `{"subtasks":[{"title":"Outline","description":"Draft the outline","estimatedMinutes":30},{"title":"Write","description":"Write the first draft é","estimatedMinutes":120}]}`

const validQuestions = `{"questions":[{"id":"q1","question":"How much time per week?","kind":"choice","options":["1-2h","3-5h","6h+"]},{"id":"q2","question":"Rate your experience","kind":"scale"}]}`

func schemaFor(t *testing.T, jt domain.JobType) *openapi3.Schema {
	t.Helper()
	schema, ok := generation.ResponseSchema(jt)
	require.True(t, ok)
	return schema
}

func codeOf(t *testing.T, err error) domain.ErrorCode {
	t.Helper()
	require.Error(t, err)
	var verr *validate.Error
	require.ErrorAs(t, err, &verr)
	return verr.Code
}

func TestValidateAcceptsValidDocuments(t *testing.T) {
	tests := []struct {
		name    string
		jobType domain.JobType
		raw     string
	}{
		{"learning plan", domain.JobTypeLearningPlan, validPlan},
		{"subtasks", domain.JobTypeSubtaskGeneration, validSubtasks},
		{"questions", domain.JobTypePersonalization, validQuestions},
		{"fenced", domain.JobTypeSubtaskGeneration, "```json\n" + validSubtasks + "\n```"},
		{"leading prose", domain.JobTypeSubtaskGeneration, "Here is the breakdown:\n" + validSubtasks},
		{"trailing prose", domain.JobTypeSubtaskGeneration, validSubtasks + "\nLet me know if you need more."},
		{"bracketed prose", domain.JobTypeSubtaskGeneration, "Here is the plan [v2]:\n" + validSubtasks},
		{"braced prose", domain.JobTypeSubtaskGeneration, "Using {your} notes: " + validSubtasks},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := validate.Validate(tc.raw, schemaFor(t, tc.jobType))
			require.NoError(t, err)
			assert.False(t, res.Repaired)
			assert.True(t, json.Valid(res.Value))
		})
	}
}

func TestValidateClassifiesFailures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want domain.ErrorCode
	}{
		{"empty", "", domain.ErrorCodeUnparseable},
		{"whitespace", "   \n", domain.ErrorCodeUnparseable},
		{"prose only", "I cannot help with that.", domain.ErrorCodeUnparseable},
		{"bad literal", `{"subtasks": tru}`, domain.ErrorCodeUnparseable},
		{"unquoted key", `{subtasks: "none"}`, domain.ErrorCodeUnparseable},
		{"bracketed prose only", "Pick [a] or [b]", domain.ErrorCodeUnparseable},
		{"bracketed prose then cut", "Plan [v2]:\n" + `{"subtasks":[{"title":"a","descr`, domain.ErrorCodeTruncated},
		{"missing colon", `{"subtasks" []}`, domain.ErrorCodeUnparseable},
		{"stray closer", `{"subtasks": []]}`, domain.ErrorCodeUnparseable},
		{"wrong top-level type", `[{"title":"a","description":"b","estimatedMinutes":1}]`, domain.ErrorCodeSchemaMismatch},
		{"missing required field", `{"subtasks":[{"title":"a","description":"b"}]}`, domain.ErrorCodeSchemaMismatch},
		{"wrong field type", `{"subtasks":[{"title":"a","description":"b","estimatedMinutes":"ten"}]}`, domain.ErrorCodeSchemaMismatch},
		{"empty list", `{"subtasks":[]}`, domain.ErrorCodeSchemaMismatch},
		{"fractional integer", `{"subtasks":[{"title":"a","description":"b","estimatedMinutes":1.5}]}`, domain.ErrorCodeSchemaMismatch},
		{"cut inside element", `{"subtasks":[{"title":"a","descr`, domain.ErrorCodeTruncated},
		{"cut after key", `{"subtasks":[{"title":"a","description":`, domain.ErrorCodeTruncated},
		{"cut inside number", `{"subtasks":[{"title":"a","description":"b","estimatedMinutes":12`, domain.ErrorCodeTruncated},
		{"cut before list", `{"subtasks":`, domain.ErrorCodeTruncated},
	}

	schema := schemaFor(t, domain.JobTypeSubtaskGeneration)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := validate.Validate(tc.raw, schema)
			assert.Nil(t, res)
			assert.Equal(t, tc.want, codeOf(t, err))
			assert.Equal(t, tc.want, validate.CodeOf(err))
		})
	}
}

func TestValidateRepairsTruncatedTail(t *testing.T) {
	schema := schemaFor(t, domain.JobTypeSubtaskGeneration)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "missing closers",
			raw:  `{"subtasks":[{"title":"a","description":"b","estimatedMinutes":5}`,
			want: `{"subtasks":[{"title":"a","description":"b","estimatedMinutes":5}]}`,
		},
		{
			name: "dangling comma",
			raw:  `{"subtasks":[{"title":"a","description":"b","estimatedMinutes":5},`,
			want: `{"subtasks":[{"title":"a","description":"b","estimatedMinutes":5}]}`,
		},
		{
			name: "unterminated optional string",
			raw:  `{"subtasks":[{"title":"a","estimatedMinutes":5,"description":"write the`,
			want: `{"subtasks":[{"title":"a","estimatedMinutes":5,"description":"write the"}]}`,
		},
		{
			name: "dangling key dropped",
			raw:  `{"subtasks":[{"title":"a","description":"b","estimatedMinutes":5,"no`,
			want: `{"subtasks":[{"title":"a","description":"b","estimatedMinutes":5}]}`,
		},
		{
			name: "partial escape dropped",
			raw:  `{"subtasks":[{"title":"a","estimatedMinutes":5,"description":"caf\u00`,
			want: `{"subtasks":[{"title":"a","estimatedMinutes":5,"description":"caf"}]}`,
		},
		{
			name: "unpaired high surrogate dropped",
			raw:  `{"subtasks":[{"title":"a","estimatedMinutes":5,"description":"x\ud83d`,
			want: `{"subtasks":[{"title":"a","estimatedMinutes":5,"description":"x"}]}`,
		},
		{
			name: "surrogate pair cut in low half",
			raw:  `{"subtasks":[{"title":"a","estimatedMinutes":5,"description":"x\ud83d\ude`,
			want: `{"subtasks":[{"title":"a","estimatedMinutes":5,"description":"x"}]}`,
		},
		{
			name: "escaped backslash before u kept",
			raw:  `{"subtasks":[{"title":"a","estimatedMinutes":5,"description":"x\\ud83d`,
			want: `{"subtasks":[{"title":"a","estimatedMinutes":5,"description":"x\\ud83d"}]}`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := validate.Validate(tc.raw, schema)
			require.NoError(t, err)
			assert.True(t, res.Repaired)
			assert.JSONEq(t, tc.want, string(res.Value))
		})
	}
}

// Repair only restores closure. An element cut short keeps only the fields
// it actually had, so required fields it lost make the document fail.
func TestValidateRepairNeverInventsContent(t *testing.T) {
	schema := schemaFor(t, domain.JobTypeSubtaskGeneration)

	raw := `{"subtasks":[{"title":"a","description":"b","estimatedMinutes":5},{"title":"c"`
	res, err := validate.Validate(raw, schema)

	assert.Nil(t, res)
	assert.Equal(t, domain.ErrorCodeTruncated, codeOf(t, err))
	assert.Contains(t, err.Error(), "incomplete")
}

func TestValidateTruncationAtEveryOffset(t *testing.T) {
	docs := map[domain.JobType]string{
		domain.JobTypeLearningPlan:      validPlan,
		domain.JobTypeSubtaskGeneration: validSubtasks,
		domain.JobTypePersonalization:   validQuestions,
	}

	for jt, doc := range docs {
		schema := schemaFor(t, jt)

		for cut := 0; cut < len(doc); cut++ {
			res, err := validate.Validate(doc[:cut], schema)
			if err != nil {
				code := validate.CodeOf(err)
				assert.Contains(t,
					[]domain.ErrorCode{domain.ErrorCodeTruncated, domain.ErrorCodeUnparseable},
					code, "%s cut at %d: unexpected classification", jt, cut)
				continue
			}

			// A success must be a complete, schema-valid document.
			var value any
			require.NoError(t, json.Unmarshal(res.Value, &value), "%s cut at %d", jt, cut)
			assert.NoError(t, schema.VisitJSON(value), "%s cut at %d returned invalid success", jt, cut)
			assert.True(t, res.Repaired, "%s cut at %d", jt, cut)
		}

		res, err := validate.Validate(doc, schema)
		require.NoError(t, err, "full %s document", jt)
		assert.False(t, res.Repaired)
	}
}

func TestValidateRoundTrip(t *testing.T) {
	schema := schemaFor(t, domain.JobTypeLearningPlan)

	plan := map[string]any{
		"title":   "Plan with \"quotes\", commas, and ] brackets }",
		"summary": strings.Repeat("long summary ", 50),
		"milestones": []any{
			map[string]any{"title": "m1", "description": "line\nbreak\ttab", "durationDays": 3},
			map[string]any{"title": "m2 ✓", "description": "unicode ünïcødé", "durationDays": 1, "tasks": []any{"a", "b"}},
		},
	}

	for _, indent := range []string{"", "  "} {
		var data []byte
		var err error
		if indent == "" {
			data, err = json.Marshal(plan)
		} else {
			data, err = json.MarshalIndent(plan, "", indent)
		}
		require.NoError(t, err)

		res, err := validate.Validate(string(data), schema)
		require.NoError(t, err)
		assert.JSONEq(t, string(data), string(res.Value))
	}
}

func TestErrorReason(t *testing.T) {
	assert.Equal(t, "response truncated", (&validate.Error{Code: domain.ErrorCodeTruncated}).Reason())
	assert.Equal(t, "response did not match schema", (&validate.Error{Code: domain.ErrorCodeSchemaMismatch}).Reason())
	assert.Equal(t, "response was not valid JSON", (&validate.Error{Code: domain.ErrorCodeUnparseable}).Reason())
	assert.Equal(t, domain.ErrorCode(""), validate.CodeOf(nil))
}
