package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"dbxagent/internal/httpclient"
	"dbxagent/internal/logging"
)

// OpenAIConfig configures an OpenAI-compatible chat completions client.
// Databricks model serving speaks the same protocol under
// {host}/serving-endpoints.
type OpenAIConfig struct {
	Provider   string
	BaseURL    string
	APIKey     string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     logging.Logger
}

type openaiClient struct {
	provider   string
	model      string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
	logger     logging.Logger
}

// NewOpenAIClient constructs a client for model.
func NewOpenAIClient(model string, cfg OpenAIConfig) (Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "openai"
	}
	logger := logging.OrNop(cfg.Logger)
	client := cfg.HTTPClient
	if client == nil {
		client = httpclient.New(httpclient.Options{
			Timeout: cfg.Timeout,
			Token:   cfg.APIKey,
			Logger:  logger,
		})
	}
	return &openaiClient{
		provider:   provider,
		model:      model,
		baseURL:    baseURL,
		maxTokens:  cfg.MaxTokens,
		httpClient: client,
		logger:     logger,
	}, nil
}

// DatabricksServingURL returns the OpenAI-compatible base URL of a workspace.
func DatabricksServingURL(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		return ""
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	return host + "/serving-endpoints"
}

func (c *openaiClient) Model() string {
	return c.model
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage TokenUsage `json:"usage"`
}

func (c *openaiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	logger := logging.FromContext(ctx, c.logger)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	logger.Debug("POST %s model=%s messages=%d", endpoint, c.model, len(req.Messages))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", c.provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := httpclient.ReadAllWithLimit(resp.Body, httpclient.MaxResponseBytes)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn("%s returned status %d", c.provider, resp.StatusCode)
		return nil, &APIError{
			Provider:   c.provider,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			RetryAfter: parseRetryAfter(resp.Header),
		}
	}

	var decoded chatResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := decoded.Choices[0]
	if decoded.Usage.TotalTokens == 0 {
		decoded.Usage.TotalTokens = decoded.Usage.PromptTokens + decoded.Usage.CompletionTokens
	}
	logger.Debug("%s completion finish=%s tokens=%d", c.provider, choice.FinishReason, decoded.Usage.TotalTokens)
	return &CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
		Usage:      decoded.Usage,
	}, nil
}
