// Package llm talks to text-generation models. The same Client serves routing
// classification, grounded answering and structured filter construction.
package llm

import "context"

// Role tags a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a provider-neutral completion call.
type CompletionRequest struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	Metadata    map[string]any
}

// TokenUsage reports token accounting when the provider returns it.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is the text answer of a completion call.
type CompletionResponse struct {
	Content    string
	StopReason string
	Usage      TokenUsage
}

// Client completes prompts against one model.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Model() string
}

// Prompt builds a request holding a single user message.
func Prompt(text string, temperature float64) CompletionRequest {
	return CompletionRequest{
		Messages:    []Message{{Role: RoleUser, Content: text}},
		Temperature: temperature,
	}
}

// SplitSystem separates system messages, joined by blank lines, from the
// conversational turns. Providers with a dedicated system field use this.
func SplitSystem(messages []Message) (string, []Message) {
	var system string
	turns := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		turns = append(turns, msg)
	}
	return system, turns
}
