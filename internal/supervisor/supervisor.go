// Package supervisor routes a user query to one of several worker agents,
// runs it, and falls back once to the default agent when the chosen agent
// fails. Every invocation yields a response, failures included.
package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"dbxagent/internal/logging"
	"dbxagent/internal/observability"
)

// Config wires a Supervisor.
type Config struct {
	Registry       *Registry
	Router         Router
	EnableFallback bool
	Metrics        *Metrics
	Logger         logging.Logger
}

// Supervisor is safe for concurrent use: the registry is read-only and each
// invocation owns its State.
type Supervisor struct {
	registry *Registry
	router   Router
	fallback bool
	metrics  *Metrics
	logger   logging.Logger
}

// New validates cfg.
func New(cfg Config) (*Supervisor, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("supervisor requires a registry")
	}
	if cfg.Router == nil {
		return nil, fmt.Errorf("supervisor requires a router")
	}
	return &Supervisor{
		registry: cfg.Registry,
		router:   cfg.Router,
		fallback: cfg.EnableFallback,
		metrics:  cfg.Metrics,
		logger:   logging.OrNop(cfg.Logger),
	}, nil
}

// Registry returns the agent registry.
func (s *Supervisor) Registry() *Registry {
	return s.registry
}

// InvokeOption customizes one invocation.
type InvokeOption func(*invokeOptions)

type invokeOptions struct {
	metadata map[string]any
	agent    string
	onRouted func(agent string)
}

// WithMetadata copies metadata into the invocation state.
func WithMetadata(metadata map[string]any) InvokeOption {
	return func(o *invokeOptions) {
		for k, v := range metadata {
			o.metadata[k] = v
		}
	}
}

// WithAgent skips routing and sends the query to agent, which must be
// enabled; otherwise routing proceeds as usual.
func WithAgent(agent string) InvokeOption {
	return func(o *invokeOptions) {
		o.agent = agent
	}
}

// OnRouted calls fn with the chosen agent before its executor runs.
func OnRouted(fn func(agent string)) InvokeOption {
	return func(o *invokeOptions) {
		o.onRouted = fn
	}
}

// Invoke handles query end to end and returns the final state.
func (s *Supervisor) Invoke(ctx context.Context, query string, opts ...InvokeOption) *State {
	options := invokeOptions{metadata: map[string]any{}}
	for _, opt := range opts {
		opt(&options)
	}
	if logging.LogIDFromContext(ctx) == "" {
		ctx = logging.ContextWithLogID(ctx, logging.NewLogID())
	}
	logger := logging.FromContext(ctx, s.logger)

	ctx, span := observability.StartSpan(ctx, observability.SpanSupervisorInvoke,
		attribute.String(observability.AttrStrategy, string(s.router.Strategy())))
	s.metrics.incActive()
	defer s.metrics.decActive()

	state := newState(query, options.metadata)
	state.Strategy = s.router.Strategy()

	agent := s.route(ctx, query, options.agent)
	state.NextAgent = agent
	state.append(RoleSupervisor, "", "Routing to "+agent)
	span.SetAttributes(attribute.String(observability.AttrAgent, agent))
	logger.Info("Supervisor routing to: %s", agent)
	if options.onRouted != nil {
		options.onRouted(agent)
	}

	output, err := s.run(ctx, agent, query)
	if err == nil {
		state.AgentResults[agent] = output
		state.FinalResponse = output
		state.append(RoleAgent, agent, output)
		observability.EndSpan(span, nil)
		return state
	}

	primary := &ExecutorError{Agent: agent, Err: err}
	logger.Warn("%s", primary.Error())

	defaultAgent := s.registry.Default()
	if s.fallback && agent != defaultAgent {
		logger.Info("Trying fallback to: %s", defaultAgent)
		span.SetAttributes(attribute.Bool(observability.AttrFallback, true))

		fallbackOutput, fallbackErr := s.run(ctx, defaultAgent, query)
		if fallbackErr == nil {
			s.metrics.IncFallback(agent, "success")
			state.Fallback = true
			state.Metadata["primary_error"] = primary.Error()
			state.AgentResults[defaultAgent] = fallbackOutput
			state.FinalResponse = fallbackOutput
			state.append(RoleAgent, defaultAgent, fallbackOutput)
			observability.EndSpan(span, nil)
			return state
		}
		s.metrics.IncFallback(agent, "failure")
		secondary := &ExecutorError{Agent: defaultAgent, Err: fallbackErr}
		state.Metadata["fallback_error"] = secondary.Error()
		logger.Warn("Fallback failed: %s", secondary.Error())
	}

	state.Failed = true
	state.FinalResponse = primary.Error()
	state.append(RoleAgent, agent, primary.Error())
	observability.EndSpan(span, primary)
	return state
}

func (s *Supervisor) route(ctx context.Context, query, forced string) string {
	ctx, span := observability.StartSpan(ctx, observability.SpanSupervisorRoute)
	defer span.End()

	if forced != "" {
		if s.registry.IsEnabled(forced) {
			s.metrics.ObserveRouting(forced, "forced", true)
			return forced
		}
		logging.FromContext(ctx, s.logger).Warn("Requested agent %q is not enabled, routing normally", forced)
	}

	decision := s.router.Route(ctx, query, s.registry)
	agent := decision.Agent
	if !s.registry.IsEnabled(agent) {
		agent = s.registry.Default()
	}
	s.metrics.ObserveRouting(agent, s.router.Strategy(), decision.Matched)
	span.SetAttributes(attribute.String(observability.AttrAgent, agent))
	return agent
}

// run executes agent, converting panics and missing executors into errors.
func (s *Supervisor) run(ctx context.Context, name, query string) (output string, err error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanExecutorRun,
		attribute.String(observability.AttrAgent, name))
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		s.metrics.ObserveExecutor(name, status, time.Since(start))
		observability.EndSpan(span, err)
	}()

	agent, ok := s.registry.Get(name)
	if !ok {
		return "", fmt.Errorf("unknown agent: %s", name)
	}
	executor, ok := s.registry.Executor(name)
	if !ok {
		return "", fmt.Errorf("no executor registered for agent: %s", name)
	}

	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx, s.logger).Error("Executor %s panicked: %v\n%s", name, r, debug.Stack())
			output, err = "", &PanicError{Value: r}
		}
	}()
	return executor.Execute(ctx, agent, query)
}
