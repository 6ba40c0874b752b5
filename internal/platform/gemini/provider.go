package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/phrazzld/genqueue/internal/config"
	"github.com/phrazzld/genqueue/internal/generation"
	"github.com/phrazzld/genqueue/internal/platform/logger"
	"google.golang.org/genai"
)

// contentGenerator is the part of the genai client the provider uses.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Provider sends prompts to a Gemini model.
type Provider struct {
	models      contentGenerator
	model       string
	temperature float32
	logger      *slog.Logger
}

var _ generation.Provider = (*Provider)(nil)

// NewProvider creates a Provider backed by the Gemini API.
//
// It returns an error wrapping generation.ErrInvalidConfig when the API key
// or model name is missing or the temperature is out of range.
func NewProvider(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Provider, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return newProvider(client.Models, cfg.ModelName, cfg.Temperature, logger), nil
}

func newProvider(models contentGenerator, model string, temperature float32, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{
		models:      models,
		model:       model,
		temperature: temperature,
		logger:      log.With("component", "gemini", "model", model),
	}
}

func validateConfig(cfg config.LLMConfig) error {
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.ModelName) == "" {
		return fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return fmt.Errorf("%w: temperature %.2f outside [0, 2]", generation.ErrInvalidConfig, cfg.Temperature)
	}
	return nil
}

// Generate implements generation.Provider. It makes exactly one API call.
func (p *Provider) Generate(ctx context.Context, prompt string, schema *openapi3.Schema) (string, error) {
	log := logger.FromContextOrDefault(ctx, p.logger)

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}}
	genConfig := &genai.GenerateContentConfig{
		Temperature:      ptr(p.temperature),
		ResponseMIMEType: "application/json",
		ResponseSchema:   toGenaiSchema(schema),
	}

	start := time.Now()
	resp, err := p.models.GenerateContent(ctx, p.model, contents, genConfig)
	if err != nil {
		classified := classifyError(err)
		log.Warn("gemini call failed",
			"duration", time.Since(start),
			"transient", generation.IsTransient(classified),
			"error", err)
		return "", classified
	}

	text, err := responseText(resp)
	if err != nil {
		log.Warn("gemini returned no usable text", "duration", time.Since(start), "error", err)
		return "", err
	}

	if finishReason(resp) == genai.FinishReasonMaxTokens {
		log.Warn("gemini output hit the token limit", "response_length", len(text))
	}
	log.Debug("gemini call succeeded",
		"duration", time.Since(start),
		"prompt_length", len(prompt),
		"response_length", len(text))

	return text, nil
}

// classifyError maps a client error onto the generation error taxonomy.
func classifyError(err error) error {
	code, ok := apiErrorCode(err)
	if !ok {
		// Network failures and cancelled contexts.
		return fmt.Errorf("%w: %w", generation.ErrTransient, err)
	}

	switch {
	case code == http.StatusTooManyRequests,
		code == http.StatusRequestTimeout,
		code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: gemini status %d: %w", generation.ErrTransient, code, err)
	default:
		return fmt.Errorf("%w: gemini status %d: %w", generation.ErrPermanent, code, err)
	}
}

func apiErrorCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}

func finishReason(resp *genai.GenerateContentResponse) genai.FinishReason {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return ""
	}
	return resp.Candidates[0].FinishReason
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", generation.ErrEmptyResponse)
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != genai.BlockedReasonUnspecified {
		return "", fmt.Errorf("%w: prompt blocked: %s", generation.ErrContentBlocked, fb.BlockReason)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", fmt.Errorf("%w: no candidates", generation.ErrEmptyResponse)
	}

	candidate := resp.Candidates[0]
	switch candidate.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return "", fmt.Errorf("%w: finish reason %s", generation.ErrContentBlocked, candidate.FinishReason)
	}

	if candidate.Content == nil {
		return "", fmt.Errorf("%w: candidate has no content", generation.ErrEmptyResponse)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", fmt.Errorf("%w: candidate text is empty", generation.ErrEmptyResponse)
	}
	return b.String(), nil
}
