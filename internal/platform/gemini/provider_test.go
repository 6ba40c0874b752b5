package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/phrazzld/genqueue/internal/config"
	"github.com/phrazzld/genqueue/internal/generation"
	"github.com/phrazzld/genqueue/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type fakeModels struct {
	resp *genai.GenerateContentResponse
	err  error

	calls  int
	model  string
	prompt string
	config *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	config *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.model = model
	f.config = config
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		f.prompt = contents[0].Parts[0].Text
	}
	return f.resp, f.err
}

func textResponse(reason genai.FinishReason, parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: content, FinishReason: reason}},
	}
}

func TestGenerateSendsSchemaConstrainedRequest(t *testing.T) {
	_, log := logger.SetupTestLogger(t)
	fake := &fakeModels{resp: textResponse(genai.FinishReasonStop, `{"subtasks":`, `[]}`)}
	p := newProvider(fake, "gemini-test", 0.4, log)

	schema := openapi3.NewObjectSchema().WithProperty("subtasks", openapi3.NewArraySchema())
	text, err := p.Generate(context.Background(), "break it down", schema)

	require.NoError(t, err)
	assert.Equal(t, `{"subtasks":[]}`, text)
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, "gemini-test", fake.model)
	assert.Equal(t, "break it down", fake.prompt)
	require.NotNil(t, fake.config)
	assert.Equal(t, "application/json", fake.config.ResponseMIMEType)
	require.NotNil(t, fake.config.Temperature)
	assert.InDelta(t, 0.4, *fake.config.Temperature, 0.0001)
	require.NotNil(t, fake.config.ResponseSchema)
	assert.Equal(t, genai.TypeObject, fake.config.ResponseSchema.Type)
}

func TestGenerateReturnsTruncatedText(t *testing.T) {
	_, log := logger.SetupTestLogger(t)
	fake := &fakeModels{resp: textResponse(genai.FinishReasonMaxTokens, `{"subtasks":[{"ti`)}
	p := newProvider(fake, "gemini-test", 0, log)

	text, err := p.Generate(context.Background(), "prompt", nil)

	require.NoError(t, err)
	assert.Equal(t, `{"subtasks":[{"ti`, text)
}

func TestGenerateClassifiesFailures(t *testing.T) {
	tests := []struct {
		name      string
		resp      *genai.GenerateContentResponse
		err       error
		wantErr   error
		transient bool
	}{
		{
			name:      "rate limited",
			err:       genai.APIError{Code: 429, Message: "quota"},
			wantErr:   generation.ErrTransient,
			transient: true,
		},
		{
			name:      "server error",
			err:       fmt.Errorf("send: %w", genai.APIError{Code: 503, Message: "unavailable"}),
			wantErr:   generation.ErrTransient,
			transient: true,
		},
		{
			name:    "bad request",
			err:     genai.APIError{Code: 400, Message: "invalid argument"},
			wantErr: generation.ErrPermanent,
		},
		{
			name:    "bad key",
			err:     genai.APIError{Code: 403, Message: "permission denied"},
			wantErr: generation.ErrPermanent,
		},
		{
			name:      "network error",
			err:       errors.New("dial tcp: connection reset"),
			wantErr:   generation.ErrTransient,
			transient: true,
		},
		{
			name:      "deadline",
			err:       context.DeadlineExceeded,
			wantErr:   context.DeadlineExceeded,
			transient: true,
		},
		{
			name: "prompt blocked",
			resp: &genai.GenerateContentResponse{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
			},
			wantErr: generation.ErrContentBlocked,
		},
		{
			name:    "safety finish",
			resp:    textResponse(genai.FinishReasonSafety, `{"partial":`),
			wantErr: generation.ErrContentBlocked,
		},
		{
			name:      "no candidates",
			resp:      &genai.GenerateContentResponse{},
			wantErr:   generation.ErrEmptyResponse,
			transient: true,
		},
		{
			name:      "nil response",
			wantErr:   generation.ErrEmptyResponse,
			transient: true,
		},
		{
			name:      "blank text",
			resp:      textResponse(genai.FinishReasonStop, "  ", "\n"),
			wantErr:   generation.ErrEmptyResponse,
			transient: true,
		},
		{
			name: "no content",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{FinishReason: genai.FinishReasonStop}},
			},
			wantErr:   generation.ErrEmptyResponse,
			transient: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, log := logger.SetupTestLogger(t)
			fake := &fakeModels{resp: tt.resp, err: tt.err}
			p := newProvider(fake, "gemini-test", 0, log)

			text, err := p.Generate(context.Background(), "prompt", nil)

			assert.Empty(t, text)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, generation.ErrProviderFailed)
			assert.Equal(t, tt.transient, generation.IsTransient(err))
			assert.Equal(t, 1, fake.calls, "no retries inside the provider")
		})
	}
}

func TestNewProviderRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LLMConfig
	}{
		{"missing key", config.LLMConfig{ModelName: "gemini-2.0-flash"}},
		{"blank key", config.LLMConfig{GeminiAPIKey: "  ", ModelName: "gemini-2.0-flash"}},
		{"missing model", config.LLMConfig{GeminiAPIKey: "key"}},
		{"temperature too high", config.LLMConfig{GeminiAPIKey: "key", ModelName: "m", Temperature: 2.5}},
		{"negative temperature", config.LLMConfig{GeminiAPIKey: "key", ModelName: "m", Temperature: -0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, log := logger.SetupTestLogger(t)
			p, err := NewProvider(context.Background(), log, tt.cfg)
			assert.ErrorIs(t, err, generation.ErrInvalidConfig)
			assert.Nil(t, p)
		})
	}
}
