package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	validProviders  = []string{"databricks", "openai", "anthropic", "gemini", "mock"}
	validStrategies = []string{"llm", "rules"}
	validBackends   = []string{"databricks", "local"}
)

// Validate checks field-level constraints. Cross-agent rules such as the
// default agent being enabled are checked when the supervisor registry is built.
func (c Config) Validate() error {
	var errs []error

	if !oneOf(c.LLM.Provider, validProviders) {
		errs = append(errs, fmt.Errorf("llm.provider %q must be one of %s", c.LLM.Provider, strings.Join(validProviders, ", ")))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %v out of range [0, 2]", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens < 0 {
		errs = append(errs, errors.New("llm.max_tokens must not be negative"))
	}
	if !oneOf(c.Supervisor.RoutingStrategy, validStrategies) {
		errs = append(errs, fmt.Errorf("supervisor.routing_strategy %q must be one of %s",
			c.Supervisor.RoutingStrategy, strings.Join(validStrategies, ", ")))
	}
	if !oneOf(c.VectorSearch.Backend, validBackends) {
		errs = append(errs, fmt.Errorf("vector_search.backend %q must be one of %s",
			c.VectorSearch.Backend, strings.Join(validBackends, ", ")))
	}
	if c.Genie.PollInterval < 0 || c.Genie.Timeout < 0 {
		errs = append(errs, errors.New("genie durations must not be negative"))
	}
	if c.Genie.MaxRows < 0 {
		errs = append(errs, errors.New("genie.max_rows must not be negative"))
	}

	seen := make(map[string]bool, len(c.Agents))
	for _, agent := range c.Agents {
		name := strings.TrimSpace(agent.Name)
		switch {
		case name == "":
			errs = append(errs, errors.New("agents: empty agent name"))
		case seen[name]:
			errs = append(errs, fmt.Errorf("agents: duplicate agent %q", name))
		}
		seen[name] = true
		if strings.TrimSpace(agent.Type) == "" {
			errs = append(errs, fmt.Errorf("agents.%s: type is required", name))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %w", errors.Join(errs...))
}

func oneOf(value string, allowed []string) bool {
	for _, candidate := range allowed {
		if value == candidate {
			return true
		}
	}
	return false
}
