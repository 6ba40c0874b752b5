package generation

import (
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/phrazzld/genqueue/internal/domain"
)

func nonEmptyString() *openapi3.Schema {
	return openapi3.NewStringSchema().WithMinLength(1)
}

func object(required []string, props map[string]*openapi3.Schema) *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	for name, prop := range props {
		s.WithProperty(name, prop)
	}
	s.Required = required
	return s
}

func arrayOf(items *openapi3.Schema, minItems int64) *openapi3.Schema {
	return openapi3.NewArraySchema().WithItems(items).WithMinItems(minItems)
}

func positiveInteger() *openapi3.Schema {
	return openapi3.NewIntegerSchema().WithMin(1)
}

// personalizationSchema: clarifying questions to ask before planning.
func personalizationSchema() *openapi3.Schema {
	question := object([]string{"id", "question", "kind"}, map[string]*openapi3.Schema{
		"id":       nonEmptyString(),
		"question": nonEmptyString(),
		"kind":     openapi3.NewStringSchema().WithEnum("text", "choice", "scale"),
		"options":  openapi3.NewArraySchema().WithItems(nonEmptyString()),
	})
	return object([]string{"questions"}, map[string]*openapi3.Schema{
		"questions": arrayOf(question, 1),
	})
}

func learningPlanSchema() *openapi3.Schema {
	milestone := object([]string{"title", "description", "durationDays"}, map[string]*openapi3.Schema{
		"title":        nonEmptyString(),
		"description":  nonEmptyString(),
		"durationDays": positiveInteger(),
		"tasks":        openapi3.NewArraySchema().WithItems(nonEmptyString()),
	})
	return object([]string{"title", "summary", "milestones"}, map[string]*openapi3.Schema{
		"title":      nonEmptyString(),
		"summary":    nonEmptyString(),
		"milestones": arrayOf(milestone, 1),
	})
}

func subtaskSchema() *openapi3.Schema {
	subtask := object([]string{"title", "description", "estimatedMinutes"}, map[string]*openapi3.Schema{
		"title":            nonEmptyString(),
		"description":      nonEmptyString(),
		"estimatedMinutes": positiveInteger(),
	})
	return object([]string{"subtasks"}, map[string]*openapi3.Schema{
		"subtasks": arrayOf(subtask, 1),
	})
}

// ResponseSchema returns a fresh copy of the response schema for jobType.
func ResponseSchema(jobType domain.JobType) (*openapi3.Schema, bool) {
	switch jobType {
	case domain.JobTypePersonalization:
		return personalizationSchema(), true
	case domain.JobTypeLearningPlan:
		return learningPlanSchema(), true
	case domain.JobTypeSubtaskGeneration:
		return subtaskSchema(), true
	}
	return nil, false
}
