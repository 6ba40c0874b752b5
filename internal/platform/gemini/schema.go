package gemini

import (
	"maps"
	"slices"

	"github.com/getkin/kin-openapi/openapi3"
	"google.golang.org/genai"
)

// toGenaiSchema converts the subset of OpenAPI schema keywords Gemini
// understands. Unsupported keywords are dropped; the validator still checks
// the full schema afterwards.
func toGenaiSchema(s *openapi3.Schema) *genai.Schema {
	if s == nil {
		return nil
	}

	out := &genai.Schema{
		Type:        schemaType(s),
		Description: s.Description,
		Required:    slices.Clone(s.Required),
		Minimum:     s.Min,
		Maximum:     s.Max,
	}

	for _, v := range s.Enum {
		if str, ok := v.(string); ok {
			out.Enum = append(out.Enum, str)
		}
	}
	if s.Nullable {
		out.Nullable = ptr(true)
	}
	if s.MinItems > 0 {
		out.MinItems = ptr(int64(s.MinItems))
	}
	if s.MaxItems != nil {
		out.MaxItems = ptr(int64(*s.MaxItems))
	}
	if s.MinLength > 0 {
		out.MinLength = ptr(int64(s.MinLength))
	}

	if s.Items != nil {
		out.Items = toGenaiSchema(s.Items.Value)
	}

	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		names := slices.Sorted(maps.Keys(s.Properties))
		for _, name := range names {
			ref := s.Properties[name]
			if ref == nil || ref.Value == nil {
				continue
			}
			out.Properties[name] = toGenaiSchema(ref.Value)
			out.PropertyOrdering = append(out.PropertyOrdering, name)
		}
	}

	return out
}

func schemaType(s *openapi3.Schema) genai.Type {
	if s.Type == nil {
		return genai.TypeUnspecified
	}
	switch {
	case s.Type.Is(openapi3.TypeObject):
		return genai.TypeObject
	case s.Type.Is(openapi3.TypeArray):
		return genai.TypeArray
	case s.Type.Is(openapi3.TypeString):
		return genai.TypeString
	case s.Type.Is(openapi3.TypeInteger):
		return genai.TypeInteger
	case s.Type.Is(openapi3.TypeNumber):
		return genai.TypeNumber
	case s.Type.Is(openapi3.TypeBoolean):
		return genai.TypeBoolean
	}
	return genai.TypeUnspecified
}

func ptr[T any](v T) *T { return &v }
