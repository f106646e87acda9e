package llm

import (
	"context"
	"strings"
	"sync"
)

// ScriptedClient replays canned completions. It backs the mock provider and
// tests that need a deterministic model.
type ScriptedClient struct {
	model string

	mu        sync.Mutex
	responses []string
	errs      []error
	calls     []CompletionRequest
	// Respond, when set, computes the answer instead of the script.
	Respond func(req CompletionRequest) (string, error)
}

// NewScriptedClient returns a client answering with responses in order. The
// last response repeats once the script is exhausted.
func NewScriptedClient(model string, responses ...string) *ScriptedClient {
	return &ScriptedClient{model: model, responses: responses}
}

// FailNext queues errors returned before any scripted response.
func (c *ScriptedClient) FailNext(errs ...error) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, errs...)
	return c
}

func (c *ScriptedClient) Model() string {
	return c.model
}

func (c *ScriptedClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.calls = append(c.calls, req)
	if len(c.errs) > 0 {
		err := c.errs[0]
		c.errs = c.errs[1:]
		c.mu.Unlock()
		return nil, err
	}
	respond := c.Respond
	var content string
	switch {
	case respond != nil:
	case len(c.responses) == 0:
		content = "This is a mock response."
	case len(c.responses) == 1:
		content = c.responses[0]
	default:
		content = c.responses[0]
		c.responses = c.responses[1:]
	}
	c.mu.Unlock()

	if respond != nil {
		var err error
		if content, err = respond(req); err != nil {
			return nil, err
		}
	}

	prompt := 0
	for _, msg := range req.Messages {
		prompt += len(strings.Fields(msg.Content))
	}
	completion := len(strings.Fields(content))
	return &CompletionResponse{
		Content:    content,
		StopReason: "stop",
		Usage:      TokenUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion},
	}, nil
}

// Calls returns a copy of every request received.
func (c *ScriptedClient) Calls() []CompletionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CompletionRequest(nil), c.calls...)
}
