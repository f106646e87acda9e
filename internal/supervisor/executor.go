package supervisor

import (
	"context"
	"fmt"
)

// Executor produces the answer of one agent.
type Executor interface {
	Execute(ctx context.Context, agent AgentConfig, query string) (string, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, agent AgentConfig, query string) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, agent AgentConfig, query string) (string, error) {
	return f(ctx, agent, query)
}

// ExecutorError wraps the failure of an agent's executor.
type ExecutorError struct {
	Agent string
	Err   error
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("Error in %s: %v", e.Agent, e.Err)
}

func (e *ExecutorError) Unwrap() error {
	return e.Err
}

// PanicError is returned when an executor panics.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("executor panicked: %v", e.Value)
}
