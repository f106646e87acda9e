package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbxagent/internal/llm"
	"dbxagent/internal/logging"
)

func staticExecutor(output string, calls *atomic.Int32) Executor {
	return ExecutorFunc(func(context.Context, AgentConfig, string) (string, error) {
		if calls != nil {
			calls.Add(1)
		}
		return output, nil
	})
}

func failingExecutor(err error, calls *atomic.Int32) Executor {
	return ExecutorFunc(func(context.Context, AgentConfig, string) (string, error) {
		if calls != nil {
			calls.Add(1)
		}
		return "", err
	})
}

func testAgents() []AgentConfig {
	return []AgentConfig{
		{Name: "genie", Type: AgentCustom, Description: "Sales data questions", Keywords: []string{"sales", "revenue"}, Enabled: true},
		{Name: "docs", Type: AgentCustom, Description: "Product documentation", Keywords: []string{"how do i"}, Enabled: true},
		{Name: "archive", Type: AgentCustom, Description: "Old reports", Keywords: []string{"sales"}, Enabled: false},
		{Name: "default", Type: AgentCustom, Description: "General questions", Enabled: true},
	}
}

func newSupervisor(t *testing.T, router Router, fallback bool, opts ...RegistryOption) (*Supervisor, *Metrics) {
	t.Helper()
	reg, err := NewRegistry(testAgents(), "default", opts...)
	require.NoError(t, err)
	metrics := MustNewMetrics(prometheus.NewRegistry())
	sup, err := New(Config{Registry: reg, Router: router, EnableFallback: fallback, Metrics: metrics, Logger: logging.Nop()})
	require.NoError(t, err)
	return sup, metrics
}

func allExecutors(genie, docs, archive, def Executor) []RegistryOption {
	return []RegistryOption{
		WithExecutor("genie", genie),
		WithExecutor("docs", docs),
		WithExecutor("archive", archive),
		WithExecutor("default", def),
	}
}

func TestRuleRoutingScenario(t *testing.T) {
	agents := []AgentConfig{
		{Name: "genie", Type: AgentCustom, Keywords: []string{"sales"}, Enabled: true},
		{Name: "default", Type: AgentCustom, Enabled: true},
	}
	reg, err := NewRegistry(agents, "default", WithTypeExecutor(AgentCustom, staticExecutor("ok", nil)))
	require.NoError(t, err)

	decision := RuleRouter{}.Route(context.Background(), "What were Q4 sales?", reg)
	assert.Equal(t, Decision{Agent: "genie", Matched: true}, decision)
}

func TestRuleRouterOrderDisabledAndDefault(t *testing.T) {
	sup, _ := newSupervisor(t, RuleRouter{}, true, allExecutors(
		staticExecutor("genie", nil), staticExecutor("docs", nil), staticExecutor("archive", nil), staticExecutor("default", nil))...)
	reg := sup.Registry()

	assert.Equal(t, "genie", RuleRouter{}.Route(context.Background(), "SALES and how do I", reg).Agent)
	assert.Equal(t, "docs", RuleRouter{}.Route(context.Background(), "How do I reset it?", reg).Agent)

	decision := RuleRouter{}.Route(context.Background(), "tell me a joke", reg)
	assert.Equal(t, "default", decision.Agent)
	assert.False(t, decision.Matched)
}

func TestClassifierRouting(t *testing.T) {
	cases := []struct {
		name   string
		answer string
		want   string
	}{
		{"exact", "docs", "docs"},
		{"padded and cased", "  GENIE\n", "genie"},
		{"unknown", "weather", "default"},
		{"disabled", "archive", "default"},
		{"chatty", "I think genie", "default"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			model := llm.NewScriptedClient("router", tc.answer)
			sup, _ := newSupervisor(t, &ClassifierRouter{Model: model}, true, allExecutors(
				staticExecutor("g", nil), staticExecutor("d", nil), staticExecutor("a", nil), staticExecutor("def", nil))...)

			state := sup.Invoke(context.Background(), "question")
			assert.Equal(t, tc.want, state.NextAgent)
		})
	}
}

func TestClassifierPromptListsEnabledAgents(t *testing.T) {
	model := llm.NewScriptedClient("router", "docs")
	sup, _ := newSupervisor(t, &ClassifierRouter{Model: model}, true, allExecutors(
		staticExecutor("g", nil), staticExecutor("d", nil), staticExecutor("a", nil), staticExecutor("def", nil))...)

	sup.Invoke(context.Background(), "How do I export?")
	calls := model.Calls()
	require.Len(t, calls, 1)
	prompt := calls[0].Messages[0].Content
	assert.Contains(t, prompt, "- genie: Sales data questions\n- docs: Product documentation\n- default: General questions")
	assert.NotContains(t, prompt, "archive")
	assert.Contains(t, prompt, "User query: How do I export?")
	assert.Contains(t, prompt, `respond with "default"`)
	assert.InDelta(t, DefaultTemperature, calls[0].Temperature, 1e-9)
}

func TestClassifierErrorRoutesToDefault(t *testing.T) {
	model := llm.NewScriptedClient("router").FailNext(errors.New("endpoint down"))
	reg, err := NewRegistry(testAgents(), "default", WithTypeExecutor(AgentCustom, staticExecutor("x", nil)))
	require.NoError(t, err)

	decision := (&ClassifierRouter{Model: model}).Route(context.Background(), "q", reg)
	assert.Equal(t, "default", decision.Agent)
}

func TestInvokeSuccessTranscript(t *testing.T) {
	sup, metrics := newSupervisor(t, RuleRouter{}, true, allExecutors(
		staticExecutor("Q4 sales were 300", nil), staticExecutor("d", nil), staticExecutor("a", nil), staticExecutor("def", nil))...)

	state := sup.Invoke(context.Background(), "What were Q4 sales?", WithMetadata(map[string]any{"user": "u1"}))

	assert.Equal(t, "genie", state.NextAgent)
	assert.Equal(t, "Q4 sales were 300", state.FinalResponse)
	assert.Equal(t, map[string]string{"genie": "Q4 sales were 300"}, state.AgentResults)
	assert.False(t, state.Fallback)
	assert.False(t, state.Failed)
	assert.Equal(t, "u1", state.Metadata["user"])
	assert.Equal(t, []Message{
		{Role: RoleUser, Content: "What were Q4 sales?"},
		{Role: RoleSupervisor, Content: "Routing to genie"},
		{Role: RoleAgent, Agent: "genie", Content: "Q4 sales were 300"},
	}, state.Messages)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.routingDecisions.WithLabelValues("genie", "rules", "true")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.invocations))
}

func TestFallbackRunsDefaultExactlyOnce(t *testing.T) {
	var primaryCalls, defaultCalls atomic.Int32
	sup, metrics := newSupervisor(t, RuleRouter{}, true, allExecutors(
		failingExecutor(errors.New("warehouse offline"), &primaryCalls),
		staticExecutor("d", nil), staticExecutor("a", nil),
		staticExecutor("general answer", &defaultCalls))...)

	state := sup.Invoke(context.Background(), "sales please")

	assert.EqualValues(t, 1, primaryCalls.Load())
	assert.EqualValues(t, 1, defaultCalls.Load())
	assert.Equal(t, "general answer", state.FinalResponse)
	assert.True(t, state.Fallback)
	assert.False(t, state.Failed)
	assert.Equal(t, "genie", state.NextAgent)
	assert.Equal(t, "general answer", state.AgentResults["default"])
	assert.NotContains(t, state.AgentResults, "genie")
	assert.Equal(t, "Error in genie: warehouse offline", state.Metadata["primary_error"])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.fallbacks.WithLabelValues("genie", "success")))
}

func TestFallbackFailureYieldsErrorText(t *testing.T) {
	var defaultCalls atomic.Int32
	sup, _ := newSupervisor(t, RuleRouter{}, true, allExecutors(
		failingExecutor(errors.New("warehouse offline"), nil),
		staticExecutor("d", nil), staticExecutor("a", nil),
		failingExecutor(errors.New("model overloaded"), &defaultCalls))...)

	var state *State
	require.NotPanics(t, func() { state = sup.Invoke(context.Background(), "sales please") })

	assert.EqualValues(t, 1, defaultCalls.Load())
	assert.Equal(t, "Error in genie: warehouse offline", state.FinalResponse)
	assert.True(t, state.Failed)
	assert.False(t, state.Fallback)
	assert.Equal(t, "Error in default: model overloaded", state.Metadata["fallback_error"])
	assert.Empty(t, state.AgentResults)
	last := state.Messages[len(state.Messages)-1]
	assert.Equal(t, Message{Role: RoleAgent, Agent: "genie", Content: "Error in genie: warehouse offline"}, last)
}

func TestNoFallbackWhenDisabledOrDefaultFails(t *testing.T) {
	var defaultCalls atomic.Int32
	sup, _ := newSupervisor(t, RuleRouter{}, false, allExecutors(
		failingExecutor(errors.New("boom"), nil),
		staticExecutor("d", nil), staticExecutor("a", nil),
		staticExecutor("general", &defaultCalls))...)

	state := sup.Invoke(context.Background(), "sales")
	assert.Equal(t, "Error in genie: boom", state.FinalResponse)
	assert.Zero(t, defaultCalls.Load())

	defaultCalls.Store(0)
	sup, _ = newSupervisor(t, RuleRouter{}, true, allExecutors(
		staticExecutor("g", nil), staticExecutor("d", nil), staticExecutor("a", nil),
		failingExecutor(errors.New("down"), &defaultCalls))...)
	state = sup.Invoke(context.Background(), "unmatched question")
	assert.Equal(t, "Error in default: down", state.FinalResponse)
	assert.EqualValues(t, 1, defaultCalls.Load())
}

func TestExecutorPanicIsContained(t *testing.T) {
	panicky := ExecutorFunc(func(context.Context, AgentConfig, string) (string, error) {
		panic("nil map")
	})
	sup, _ := newSupervisor(t, RuleRouter{}, true, allExecutors(
		panicky, staticExecutor("d", nil), staticExecutor("a", nil), staticExecutor("recovered", nil))...)

	state := sup.Invoke(context.Background(), "sales")
	assert.Equal(t, "recovered", state.FinalResponse)
	assert.Contains(t, state.Metadata["primary_error"], "executor panicked: nil map")
}

func TestWithAgentOverridesRouting(t *testing.T) {
	sup, _ := newSupervisor(t, RuleRouter{}, true, allExecutors(
		staticExecutor("g", nil), staticExecutor("docs answer", nil), staticExecutor("a", nil), staticExecutor("def", nil))...)

	state := sup.Invoke(context.Background(), "sales", WithAgent("docs"))
	assert.Equal(t, "docs", state.NextAgent)
	assert.Equal(t, "docs answer", state.FinalResponse)

	state = sup.Invoke(context.Background(), "sales", WithAgent("archive"))
	assert.Equal(t, "genie", state.NextAgent)
}

func TestNewRouter(t *testing.T) {
	router, err := NewRouter(StrategyRules, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyRules, router.Strategy())

	_, err = NewRouter(StrategyLLM, nil, nil)
	require.Error(t, err)

	_, err = NewRouter("sequential", llm.NewScriptedClient("m"), nil)
	require.EqualError(t, err, "unknown routing strategy: sequential")
}

func TestOnRoutedFiresBeforeExecutor(t *testing.T) {
	var events []string
	recording := ExecutorFunc(func(context.Context, AgentConfig, string) (string, error) {
		events = append(events, "execute")
		return "done", nil
	})
	sup, _ := newSupervisor(t, RuleRouter{}, true, allExecutors(
		recording, staticExecutor("d", nil), staticExecutor("a", nil), staticExecutor("def", nil))...)

	sup.Invoke(context.Background(), "sales", OnRouted(func(agent string) {
		events = append(events, "routed:"+agent)
	}))
	assert.Equal(t, []string{"routed:genie", "execute"}, events)
}
