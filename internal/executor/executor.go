// Package executor holds the reference agent executors: conversational
// queries against a Genie space, retrieval-augmented answers over a vector
// index, plain text generation, and adapters for custom executors.
package executor

import (
	"fmt"

	"dbxagent/internal/llm"
	"dbxagent/internal/logging"
	"dbxagent/internal/supervisor"
	"dbxagent/internal/vectorsearch"
)

// ModelSource returns a text-generation client for a serving endpoint.
// *llm.Pool satisfies it.
type ModelSource interface {
	Get(model string) (llm.Client, error)
}

// Deps are the shared clients executors are built from. Nil members leave
// the matching agent types without a default executor.
type Deps struct {
	Genie   GenieClient
	Indexes vectorsearch.Opener
	Models  ModelSource
	Logger  logging.Logger
}

// Defaults maps agent types to the reference executors deps can support.
// Custom and mcp agents have no default and must be bound by name.
func Defaults(deps Deps) map[supervisor.AgentType]supervisor.Executor {
	table := map[supervisor.AgentType]supervisor.Executor{}
	if deps.Genie != nil {
		table[supervisor.AgentGenie] = &GenieExecutor{Client: deps.Genie, Logger: deps.Logger}
	}
	if deps.Models != nil {
		table[supervisor.AgentLLM] = &TextGenerationExecutor{Models: deps.Models}
		if deps.Indexes != nil {
			table[supervisor.AgentRAG] = &RetrievalExecutor{Indexes: deps.Indexes, Models: deps.Models, Logger: deps.Logger}
		}
	}
	return table
}

func settingsOf[S supervisor.Settings](agent supervisor.AgentConfig) (S, error) {
	s, ok := agent.Settings.(S)
	if !ok {
		var zero S
		return zero, fmt.Errorf("agent %s has %T settings, want %T", agent.Name, agent.Settings, zero)
	}
	return s, nil
}
