// Package config loads the dbxagent configuration file.
//
// The file is YAML (JSON is accepted as a subset). ${VAR} and ${VAR:-default}
// references are expanded before parsing. Environment overrides for workspace
// credentials are applied by the command layer, never here.
package config

import (
	"time"

	"dbxagent/internal/observability"
)

// Config is the parsed configuration file.
type Config struct {
	Workspace     WorkspaceConfig      `yaml:"workspace"`
	LLM           LLMConfig            `yaml:"llm"`
	Genie         GenieConfig          `yaml:"genie"`
	VectorSearch  VectorSearchConfig   `yaml:"vector_search"`
	Supervisor    SupervisorConfig     `yaml:"supervisor"`
	Agents        Agents               `yaml:"agents"`
	Server        ServerConfig         `yaml:"server"`
	Observability observability.Config `yaml:"observability"`
}

// WorkspaceConfig locates the workspace REST API.
type WorkspaceConfig struct {
	Host  string `yaml:"host"`
	Token string `yaml:"token"`
}

// LLMConfig configures the default text-generation model.
type LLMConfig struct {
	// Provider is one of databricks, openai, anthropic, gemini or mock.
	Provider    string        `yaml:"provider"`
	Endpoint    string        `yaml:"endpoint"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	// PoolSize caps the number of cached per-model clients.
	PoolSize int         `yaml:"pool_size"`
	Retry    RetryConfig `yaml:"retry"`
	// Responses feeds the mock provider, consumed in order.
	Responses []string `yaml:"responses"`
}

// RetryConfig tunes model call retries.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// GenieConfig configures the conversational query client.
type GenieConfig struct {
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
	MaxRows      int           `yaml:"max_rows"`
}

// VectorSearchConfig configures document retrieval.
type VectorSearchConfig struct {
	// Backend is databricks (remote indexes) or local (embedded store).
	Backend  string `yaml:"backend"`
	Endpoint string `yaml:"endpoint"`
	// LocalPath persists the embedded store; empty keeps it in memory.
	LocalPath          string `yaml:"local_path"`
	EmbeddingModel     string `yaml:"embedding_model"`
	EmbeddingBaseURL   string `yaml:"embedding_base_url"`
	EmbeddingCacheSize int    `yaml:"embedding_cache_size"`
}

// SupervisorConfig configures routing.
type SupervisorConfig struct {
	RoutingStrategy string `yaml:"routing_strategy"`
	// EnableFallback defaults to true when omitted.
	EnableFallback *bool  `yaml:"enable_fallback"`
	DefaultAgent   string `yaml:"default_agent"`
	// RouterModel overrides llm.endpoint for the routing classifier.
	RouterModel string `yaml:"router_model"`
}

// FallbackEnabled reports the effective fallback flag.
func (s SupervisorConfig) FallbackEnabled() bool {
	return s.EnableFallback == nil || *s.EnableFallback
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
}

// Defaults.
const (
	DefaultLLMProvider     = "databricks"
	DefaultLLMEndpoint     = "databricks-meta-llama-3-1-70b-instruct"
	DefaultRoutingStrategy = "llm"
	DefaultAgentName       = "general"
	DefaultServerAddr      = ":8080"
)

// Default returns a configuration with every default applied.
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = DefaultLLMProvider
	}
	if c.LLM.Endpoint == "" {
		c.LLM.Endpoint = DefaultLLMEndpoint
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.1
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1024
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60 * time.Second
	}
	if c.LLM.PoolSize == 0 {
		c.LLM.PoolSize = 16
	}
	if c.LLM.Retry.MaxAttempts == 0 {
		c.LLM.Retry.MaxAttempts = 3
	}
	if c.LLM.Retry.BaseDelay == 0 {
		c.LLM.Retry.BaseDelay = time.Second
	}
	if c.LLM.Retry.MaxDelay == 0 {
		c.LLM.Retry.MaxDelay = 30 * time.Second
	}

	if c.Genie.Timeout == 0 {
		c.Genie.Timeout = 60 * time.Second
	}
	if c.Genie.PollInterval == 0 {
		c.Genie.PollInterval = 2 * time.Second
	}
	if c.Genie.HTTPTimeout == 0 {
		c.Genie.HTTPTimeout = 30 * time.Second
	}
	if c.Genie.MaxRows == 0 {
		c.Genie.MaxRows = 10
	}

	if c.VectorSearch.Backend == "" {
		c.VectorSearch.Backend = "databricks"
	}
	if c.VectorSearch.EmbeddingModel == "" {
		c.VectorSearch.EmbeddingModel = "databricks-bge-large-en"
	}
	if c.VectorSearch.EmbeddingCacheSize == 0 {
		c.VectorSearch.EmbeddingCacheSize = 1024
	}

	if c.Supervisor.RoutingStrategy == "" {
		c.Supervisor.RoutingStrategy = DefaultRoutingStrategy
	}
	if c.Supervisor.DefaultAgent == "" {
		c.Supervisor.DefaultAgent = DefaultAgentName
	}

	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = 1 << 20
	}

	c.Observability = c.Observability.WithDefaults()
}
