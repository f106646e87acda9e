package supervisor

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dbxagent/internal/config"
	"dbxagent/internal/vectorsearch"
)

// AgentType selects the settings variant and the default executor of an agent.
type AgentType string

const (
	AgentGenie  AgentType = "genie"
	AgentRAG    AgentType = "rag"
	AgentLLM    AgentType = "llm"
	AgentMCP    AgentType = "mcp"
	AgentCustom AgentType = "custom"
)

const (
	DefaultSystemMessage = "You are a helpful assistant."
	DefaultTemperature   = 0.1
)

// Settings is the typed configuration of one agent type.
type Settings interface {
	Kind() AgentType
	Validate() error
}

// GenieSettings configures a conversational query agent.
type GenieSettings struct {
	SpaceID string        `yaml:"space_id"`
	MaxRows int           `yaml:"max_rows"`
	Timeout time.Duration `yaml:"timeout"`
}

func (GenieSettings) Kind() AgentType { return AgentGenie }

func (s GenieSettings) Validate() error {
	if strings.TrimSpace(s.SpaceID) == "" {
		return fmt.Errorf("space_id is required")
	}
	if s.MaxRows < 0 {
		return fmt.Errorf("max_rows must not be negative")
	}
	return nil
}

// RetrievalSettings configures a retrieval-augmented agent.
type RetrievalSettings struct {
	IndexName    string   `yaml:"index_name"`
	EndpointName string   `yaml:"endpoint_name"`
	NumResults   int      `yaml:"num_results"`
	Model        string   `yaml:"llm_endpoint"`
	TextColumn   string   `yaml:"text_column"`
	Columns      []string `yaml:"columns"`
	// SelfQuery derives a metadata filter from the question first.
	SelfQuery          bool                         `yaml:"self_query"`
	ContentDescription string                       `yaml:"document_content_description"`
	Attributes         []vectorsearch.AttributeInfo `yaml:"metadata_fields"`
	EnableLimit        bool                         `yaml:"enable_limit"`
	MaxContextTokens   int                          `yaml:"max_context_tokens"`
	StripHTML          bool                         `yaml:"strip_html"`
}

func (RetrievalSettings) Kind() AgentType { return AgentRAG }

func (s RetrievalSettings) Validate() error {
	if strings.TrimSpace(s.IndexName) == "" {
		return fmt.Errorf("index_name is required")
	}
	if strings.TrimSpace(s.EndpointName) == "" {
		return fmt.Errorf("endpoint_name is required")
	}
	if s.NumResults <= 0 {
		return fmt.Errorf("num_results must be positive")
	}
	if s.MaxContextTokens < 0 {
		return fmt.Errorf("max_context_tokens must not be negative")
	}
	return nil
}

// LLMSettings configures a plain text-generation agent.
type LLMSettings struct {
	Model         string   `yaml:"model"`
	Temperature   *float64 `yaml:"temperature"`
	SystemMessage string   `yaml:"system_message"`
	MaxTokens     int      `yaml:"max_tokens"`
}

func (LLMSettings) Kind() AgentType { return AgentLLM }

func (s LLMSettings) Validate() error {
	if s.Temperature != nil && (*s.Temperature < 0 || *s.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	return nil
}

// EffectiveTemperature returns the configured temperature or the default.
func (s LLMSettings) EffectiveTemperature() float64 {
	if s.Temperature == nil {
		return DefaultTemperature
	}
	return *s.Temperature
}

// CustomSettings carries the untyped configuration of agents whose executor
// is supplied by the embedding program.
type CustomSettings struct {
	Type   AgentType
	Values map[string]any
}

func (s CustomSettings) Kind() AgentType { return s.Type }

func (CustomSettings) Validate() error { return nil }

// AgentConfig describes one worker agent. It is immutable once a registry
// has been built from it.
type AgentConfig struct {
	Name        string
	Type        AgentType
	Description string
	Keywords    []string
	Enabled     bool
	Settings    Settings
}

// Defaults fill settings the agent configuration leaves out.
type Defaults struct {
	// Model is the serving endpoint used when an agent names none.
	Model string
	// VectorSearchEndpoint is used by rag agents without endpoint_name.
	VectorSearchEndpoint string
	// GenieMaxRows caps tables of genie agents without max_rows.
	GenieMaxRows int
}

// AgentsFromConfig converts file entries into agent configurations,
// decoding and validating each agent's settings for its type.
func AgentsFromConfig(entries config.Agents, defaults Defaults) ([]AgentConfig, error) {
	agents := make([]AgentConfig, 0, len(entries))
	for _, entry := range entries {
		agent, err := agentFromEntry(entry, defaults)
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", entry.Name, err)
		}
		agents = append(agents, agent)
	}
	return agents, nil
}

func agentFromEntry(entry config.AgentEntry, defaults Defaults) (AgentConfig, error) {
	agent := AgentConfig{
		Name:        entry.Name,
		Type:        AgentType(strings.ToLower(strings.TrimSpace(entry.Type))),
		Description: strings.TrimSpace(entry.Description),
		Keywords:    keywordsOf(entry),
		Enabled:     entry.IsEnabled(),
	}

	var settings Settings
	switch agent.Type {
	case AgentGenie:
		s := GenieSettings{MaxRows: defaults.GenieMaxRows}
		if err := decodeSettings(entry.Config, &s); err != nil {
			return agent, err
		}
		settings = s
	case AgentRAG:
		s := RetrievalSettings{
			EndpointName: defaults.VectorSearchEndpoint,
			NumResults:   vectorsearch.DefaultNumResults,
			Model:        defaults.Model,
			TextColumn:   vectorsearch.DefaultTextColumn,
		}
		if err := decodeSettings(entry.Config, &s); err != nil {
			return agent, err
		}
		settings = s
	case AgentLLM:
		s := LLMSettings{Model: defaults.Model, SystemMessage: DefaultSystemMessage}
		if err := decodeSettings(entry.Config, &s); err != nil {
			return agent, err
		}
		settings = s
	case AgentCustom, AgentMCP:
		settings = CustomSettings{Type: agent.Type, Values: entry.Config}
	default:
		return agent, fmt.Errorf("unknown agent type %q", entry.Type)
	}

	if err := settings.Validate(); err != nil {
		return agent, fmt.Errorf("%s settings: %w", agent.Type, err)
	}
	agent.Settings = settings
	return agent, nil
}

// keywordsOf merges top-level keywords with a config.keywords list.
func keywordsOf(entry config.AgentEntry) []string {
	keywords := append([]string(nil), entry.Keywords...)
	if raw, ok := entry.Config["keywords"].([]any); ok {
		for _, item := range raw {
			if kw, ok := item.(string); ok {
				keywords = append(keywords, kw)
			}
		}
	}
	out := keywords[:0]
	for _, kw := range keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

func decodeSettings(raw map[string]any, out any) error {
	if len(raw) == 0 {
		return nil
	}
	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode settings: %w", err)
	}
	return nil
}
