package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Answer is a single question/answer pair collected from an earlier
// personalization job.
type Answer struct {
	Question string `json:"question" validate:"required,max=1000"`
	Answer   string `json:"answer" validate:"required,max=2000"`
}

// PersonalizationParams are the minimum inputs for generating clarifying
// questions about a goal.
type PersonalizationParams struct {
	Title       string `json:"title" validate:"required,max=500"`
	Description string `json:"description,omitempty" validate:"max=5000"`
	Deadline    string `json:"deadline,omitempty" validate:"max=64"`
}

// LearningPlanParams are the inputs for a unified learning plan.
type LearningPlanParams struct {
	Title        string   `json:"title" validate:"required,max=500"`
	Description  string   `json:"description,omitempty" validate:"max=5000"`
	Deadline     string   `json:"deadline,omitempty" validate:"max=64"`
	HoursPerWeek int      `json:"hoursPerWeek,omitempty" validate:"omitempty,min=1,max=168"`
	Answers      []Answer `json:"answers,omitempty" validate:"omitempty,max=50,dive"`
}

// SubtaskParams are the inputs for decomposing a task into subtasks.
type SubtaskParams struct {
	Title       string   `json:"title" validate:"required,max=500"`
	Description string   `json:"description,omitempty" validate:"max=5000"`
	Deadline    string   `json:"deadline,omitempty" validate:"max=64"`
	MaxSubtasks int      `json:"maxSubtasks,omitempty" validate:"omitempty,min=1,max=25"`
	Answers     []Answer `json:"answers,omitempty" validate:"omitempty,max=50,dive"`
}

// NewParams returns a zero value of the params struct for jobType.
func NewParams(jobType JobType) (any, error) {
	switch jobType {
	case JobTypePersonalization:
		return &PersonalizationParams{}, nil
	case JobTypeLearningPlan:
		return &LearningPlanParams{}, nil
	case JobTypeSubtaskGeneration:
		return &SubtaskParams{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, jobType)
}

// DecodeParams decodes raw into the params struct for jobType and checks it
// has the minimum shape that type requires. Unknown fields are tolerated
// because params are opaque to the queue beyond those minimums.
func DecodeParams(jobType JobType, raw json.RawMessage) (any, error) {
	params, err := NewParams(jobType)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, NewValidationError("params", "must be a JSON object", ErrInvalidParams)
	}

	if err := json.Unmarshal(trimmed, params); err != nil {
		return nil, NewValidationError("params", "has invalid format", ErrInvalidParams)
	}

	if err := validate.Struct(params); err != nil {
		return nil, fromValidatorError(err)
	}

	return params, nil
}

// ValidationError describes which field of a request failed validation.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError creates a ValidationError wrapping err.
func NewValidationError(field, message string, err error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: err}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Unwrap exposes the sentinel for errors.Is checks.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

func fromValidatorError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return NewValidationError("params", "failed validation", ErrInvalidParams)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, describeFieldError(fe))
	}

	return NewValidationError("params", strings.Join(fields, "; "), ErrInvalidParams)
}

func describeFieldError(fe validator.FieldError) string {
	name := fe.Namespace()
	if i := strings.IndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "max":
		return fmt.Sprintf("%s exceeds maximum of %s", name, fe.Param())
	case "min":
		return fmt.Sprintf("%s is below minimum of %s", name, fe.Param())
	}
	return fmt.Sprintf("%s failed %s", name, fe.Tag())
}
