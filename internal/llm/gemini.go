package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"dbxagent/internal/logging"
)

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey     string
	MaxTokens  int
	HTTPClient *http.Client
	Logger     logging.Logger
}

type geminiClient struct {
	model     string
	maxTokens int
	client    *genai.Client
	logger    logging.Logger
}

// NewGeminiClient constructs a Gemini API client for model.
func NewGeminiClient(ctx context.Context, model string, cfg GeminiConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &geminiClient{
		model:     model,
		maxTokens: cfg.MaxTokens,
		client:    client,
		logger:    logging.OrNop(cfg.Logger),
	}, nil
}

func (c *geminiClient) Model() string {
	return c.model
}

func (c *geminiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	system, turns := SplitSystem(req.Messages)

	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		var role genai.Role = genai.RoleUser
		if turn.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, &APIError{Provider: "gemini", StatusCode: apiErr.Code, Body: apiErr.Message}
		}
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return nil, ErrEmptyResponse
	}

	var usage TokenUsage
	if meta := resp.UsageMetadata; meta != nil {
		usage.PromptTokens = int(meta.PromptTokenCount)
		usage.CompletionTokens = int(meta.CandidatesTokenCount)
		usage.TotalTokens = int(meta.TotalTokenCount)
	}
	var stop string
	if len(resp.Candidates) > 0 {
		stop = string(resp.Candidates[0].FinishReason)
	}
	logging.FromContext(ctx, c.logger).Debug("gemini completion stop=%s tokens=%d", stop, usage.TotalTokens)

	return &CompletionResponse{Content: text, StopReason: stop, Usage: usage}, nil
}
