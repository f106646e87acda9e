package supervisor

import (
	"context"
	"fmt"
	"strings"

	"dbxagent/internal/llm"
	"dbxagent/internal/logging"
)

// RoutingStrategy names how an agent is chosen.
type RoutingStrategy string

const (
	StrategyLLM   RoutingStrategy = "llm"
	StrategyRules RoutingStrategy = "rules"
)

// Decision is the outcome of routing one query.
type Decision struct {
	Agent string
	// Matched is false when the default was used because nothing matched.
	Matched bool
	// Raw is the classifier output, if any.
	Raw string
}

// Router picks the agent for a query. Implementations always return an
// enabled agent or the registry default.
type Router interface {
	Strategy() RoutingStrategy
	Route(ctx context.Context, query string, reg *Registry) Decision
}

// NewRouter returns the router for strategy. The llm strategy needs model.
func NewRouter(strategy RoutingStrategy, model llm.Client, logger logging.Logger) (Router, error) {
	switch strategy {
	case StrategyLLM, "":
		if model == nil {
			return nil, fmt.Errorf("llm routing requires a model")
		}
		return &ClassifierRouter{Model: model, Logger: logger}, nil
	case StrategyRules:
		return RuleRouter{}, nil
	default:
		return nil, fmt.Errorf("unknown routing strategy: %s", strategy)
	}
}

// ClassifierRouter asks a model to name the agent.
type ClassifierRouter struct {
	Model  llm.Client
	Logger logging.Logger
}

func (c *ClassifierRouter) Strategy() RoutingStrategy { return StrategyLLM }

// Route submits the routing prompt and accepts the answer only when it names
// an enabled agent. Model errors fall back to the default.
func (c *ClassifierRouter) Route(ctx context.Context, query string, reg *Registry) Decision {
	logger := logging.FromContext(ctx, logging.OrNop(c.Logger))
	enabled := reg.Enabled()

	resp, err := c.Model.Complete(ctx, llm.Prompt(RoutingPrompt(enabled, query, reg.Default()), DefaultTemperature))
	if err != nil {
		logger.Warn("Routing model failed, using default %s: %v", reg.Default(), err)
		return Decision{Agent: reg.Default()}
	}

	selected := strings.ToLower(strings.TrimSpace(resp.Content))
	for _, agent := range enabled {
		if strings.ToLower(agent.Name) == selected {
			return Decision{Agent: agent.Name, Matched: true, Raw: resp.Content}
		}
	}
	logger.Info("Invalid agent %q, using default %s", selected, reg.Default())
	return Decision{Agent: reg.Default(), Raw: resp.Content}
}

// RoutingPrompt renders the classifier prompt for the enabled agents.
func RoutingPrompt(agents []AgentConfig, query, defaultAgent string) string {
	lines := make([]string, 0, len(agents))
	for _, agent := range agents {
		lines = append(lines, fmt.Sprintf("- %s: %s", agent.Name, agent.Description))
	}
	return fmt.Sprintf(`You are a supervisor coordinating specialized agents.

Available agents:
%s

User query: %s

Instructions:
1. Analyze the user's query carefully
2. Select the MOST appropriate agent
3. Respond with ONLY the agent name
4. If no agent is appropriate, respond with "%s"

Agent name:`, strings.Join(lines, "\n"), query, defaultAgent)
}

// RuleRouter picks the first enabled agent, in registry order, that has a
// keyword occurring in the query. Matching ignores case.
type RuleRouter struct{}

func (RuleRouter) Strategy() RoutingStrategy { return StrategyRules }

func (RuleRouter) Route(_ context.Context, query string, reg *Registry) Decision {
	lowered := strings.ToLower(query)
	for _, agent := range reg.Enabled() {
		for _, kw := range agent.Keywords {
			if kw != "" && strings.Contains(lowered, strings.ToLower(kw)) {
				return Decision{Agent: agent.Name, Matched: true}
			}
		}
	}
	return Decision{Agent: reg.Default()}
}
