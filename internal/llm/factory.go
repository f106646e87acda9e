package llm

import (
	"context"
	"fmt"
	"time"

	"dbxagent/internal/logging"
)

// ProviderConfig selects and configures a provider.
type ProviderConfig struct {
	Provider string
	// Host is the workspace URL used by the databricks provider when BaseURL is empty.
	Host      string
	BaseURL   string
	APIKey    string
	MaxTokens int
	Timeout   time.Duration
	// Responses script the mock provider.
	Responses []string
	Logger    logging.Logger
}

// New builds an uninstrumented client for model.
func New(ctx context.Context, model string, cfg ProviderConfig) (Client, error) {
	switch cfg.Provider {
	case "databricks", "":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DatabricksServingURL(cfg.Host)
		}
		return NewOpenAIClient(model, OpenAIConfig{
			Provider:  "databricks",
			BaseURL:   baseURL,
			APIKey:    cfg.APIKey,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
			Logger:    cfg.Logger,
		})
	case "openai":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com/v1"
		}
		return NewOpenAIClient(model, OpenAIConfig{
			Provider:  "openai",
			BaseURL:   baseURL,
			APIKey:    cfg.APIKey,
			MaxTokens: cfg.MaxTokens,
			Timeout:   cfg.Timeout,
			Logger:    cfg.Logger,
		})
	case "anthropic":
		return NewAnthropicClient(model, AnthropicConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			MaxTokens: cfg.MaxTokens,
			Logger:    cfg.Logger,
		})
	case "gemini":
		return NewGeminiClient(ctx, model, GeminiConfig{
			APIKey:    cfg.APIKey,
			MaxTokens: cfg.MaxTokens,
			Logger:    cfg.Logger,
		})
	case "mock":
		return NewScriptedClient(model, cfg.Responses...), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
