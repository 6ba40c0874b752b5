package generation

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/phrazzld/genqueue/internal/domain"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

// Kind pairs a job type with its prompt template and response schema.
type Kind struct {
	Type     domain.JobType
	Schema   *openapi3.Schema
	template *template.Template
	// schemaJSON is the schema as shown to the model inside the prompt.
	schemaJSON string
}

type promptData struct {
	Params any
	Schema string
}

// Render decodes params for k.Type and executes the prompt template.
// Params that fail the type's minimum shape yield domain.ErrInvalidParams.
func (k Kind) Render(params json.RawMessage) (string, error) {
	typed, err := domain.DecodeParams(k.Type, params)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if err := k.template.Execute(&b, promptData{Params: typed, Schema: k.schemaJSON}); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrPromptRender, k.Type, err)
	}
	return b.String(), nil
}

// Catalog is the closed table of job types the controller can execute.
type Catalog struct {
	kinds map[domain.JobType]Kind
}

// NewCatalog parses the embedded prompt templates and builds a Kind for
// every domain job type. A missing template is a configuration error.
func NewCatalog() (*Catalog, error) {
	tmpl, err := template.New("prompts").Option("missingkey=error").ParseFS(promptFS, "prompts/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("%w: parse prompt templates: %v", ErrInvalidConfig, err)
	}

	c := &Catalog{kinds: make(map[domain.JobType]Kind)}
	for _, jt := range domain.AllJobTypes() {
		t := tmpl.Lookup(string(jt) + ".tmpl")
		if t == nil {
			return nil, fmt.Errorf("%w: no prompt template for %s", ErrInvalidConfig, jt)
		}

		schema, ok := ResponseSchema(jt)
		if !ok {
			return nil, fmt.Errorf("%w: no response schema for %s", ErrInvalidConfig, jt)
		}

		schemaJSON, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("%w: marshal schema for %s: %v", ErrInvalidConfig, jt, err)
		}

		c.kinds[jt] = Kind{Type: jt, Schema: schema, template: t, schemaJSON: string(schemaJSON)}
	}

	return c, nil
}

// Lookup returns the Kind for jobType.
func (c *Catalog) Lookup(jobType domain.JobType) (Kind, error) {
	kind, ok := c.kinds[jobType]
	if !ok {
		return Kind{}, fmt.Errorf("%w: %q", domain.ErrUnknownJobType, jobType)
	}
	return kind, nil
}
