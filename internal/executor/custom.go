package executor

import (
	"context"

	"dbxagent/internal/supervisor"
)

// Func adapts a function over an agent's raw configuration values into an
// executor for custom and mcp agents.
type Func func(ctx context.Context, values map[string]any, query string) (string, error)

func (f Func) Execute(ctx context.Context, agent supervisor.AgentConfig, query string) (string, error) {
	var values map[string]any
	if custom, ok := agent.Settings.(supervisor.CustomSettings); ok {
		values = custom.Values
	}
	return f(ctx, values, query)
}
