package supervisor

import (
	"errors"
	"fmt"
	"strings"
)

// Registry is the ordered, read-only set of agents and their executors.
// Order is configuration order and decides rule routing ties.
type Registry struct {
	agents       []AgentConfig
	index        map[string]int
	executors    map[string]Executor
	defaultAgent string
}

type registryOptions struct {
	byName map[string]Executor
	byType map[AgentType]Executor
}

// RegistryOption binds executors while building a registry.
type RegistryOption func(*registryOptions)

// WithExecutor binds ex to the agent called name, taking precedence over
// type bindings.
func WithExecutor(name string, ex Executor) RegistryOption {
	return func(o *registryOptions) {
		o.byName[name] = ex
	}
}

// WithTypeExecutor binds ex to every agent of type t.
func WithTypeExecutor(t AgentType, ex Executor) RegistryOption {
	return func(o *registryOptions) {
		o.byType[t] = ex
	}
}

// WithTypeExecutors binds a whole type table.
func WithTypeExecutors(table map[AgentType]Executor) RegistryOption {
	return func(o *registryOptions) {
		for t, ex := range table {
			o.byType[t] = ex
		}
	}
}

// NewRegistry validates agents and resolves their executors. Every enabled
// agent needs an executor and defaultAgent must be registered and enabled.
func NewRegistry(agents []AgentConfig, defaultAgent string, opts ...RegistryOption) (*Registry, error) {
	options := registryOptions{byName: map[string]Executor{}, byType: map[AgentType]Executor{}}
	for _, opt := range opts {
		opt(&options)
	}

	reg := &Registry{
		agents:       make([]AgentConfig, 0, len(agents)),
		index:        make(map[string]int, len(agents)),
		executors:    make(map[string]Executor, len(agents)),
		defaultAgent: defaultAgent,
	}

	var errs []error
	for _, agent := range agents {
		name := agent.Name
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("agent name must not be empty"))
			continue
		}
		if _, dup := reg.index[name]; dup {
			errs = append(errs, fmt.Errorf("duplicate agent %q", name))
			continue
		}
		if agent.Settings != nil {
			if agent.Settings.Kind() != agent.Type {
				errs = append(errs, fmt.Errorf("agent %q: %s settings given for type %s", name, agent.Settings.Kind(), agent.Type))
				continue
			}
			if err := agent.Settings.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("agent %q: %w", name, err))
				continue
			}
		}

		ex, ok := options.byName[name]
		if !ok {
			ex, ok = options.byType[agent.Type]
		}
		if ok && ex != nil {
			reg.executors[name] = ex
		} else if agent.Enabled {
			errs = append(errs, fmt.Errorf("no executor registered for agent %q (type %s)", name, agent.Type))
			continue
		}

		agent.Keywords = append([]string(nil), agent.Keywords...)
		reg.index[name] = len(reg.agents)
		reg.agents = append(reg.agents, agent)
	}

	if len(errs) == 0 {
		switch def, ok := reg.Get(defaultAgent); {
		case !ok:
			errs = append(errs, fmt.Errorf("default agent %q is not registered", defaultAgent))
		case !def.Enabled:
			errs = append(errs, fmt.Errorf("default agent %q is disabled", defaultAgent))
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid agent registry: %w", errors.Join(errs...))
	}
	return reg, nil
}

// Get returns the agent called name.
func (r *Registry) Get(name string) (AgentConfig, bool) {
	i, ok := r.index[name]
	if !ok {
		return AgentConfig{}, false
	}
	return r.agents[i], true
}

// Agents returns every agent in registry order.
func (r *Registry) Agents() []AgentConfig {
	return append([]AgentConfig(nil), r.agents...)
}

// Enabled returns the enabled agents in registry order.
func (r *Registry) Enabled() []AgentConfig {
	out := make([]AgentConfig, 0, len(r.agents))
	for _, agent := range r.agents {
		if agent.Enabled {
			out = append(out, agent)
		}
	}
	return out
}

// IsEnabled reports whether name is registered and enabled.
func (r *Registry) IsEnabled(name string) bool {
	agent, ok := r.Get(name)
	return ok && agent.Enabled
}

// Executor returns the executor bound to name.
func (r *Registry) Executor(name string) (Executor, bool) {
	ex, ok := r.executors[name]
	return ex, ok
}

// Default returns the default agent name.
func (r *Registry) Default() string {
	return r.defaultAgent
}
