package server

import (
	"time"

	"dbxagent/internal/genie"
	"dbxagent/internal/supervisor"
)

// APIResponse is the envelope of every JSON reply.
type APIResponse struct {
	Success   bool   `json:"success"`
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

// InvokeRequest asks the supervisor to answer a query.
type InvokeRequest struct {
	Query string `json:"query"`
	// Agent skips routing when it names an enabled agent.
	Agent    string         `json:"agent,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AgentInfo describes one registered agent.
type AgentInfo struct {
	Name        string               `json:"name"`
	Type        supervisor.AgentType `json:"type"`
	Description string               `json:"description"`
	Keywords    []string             `json:"keywords,omitempty"`
	Enabled     bool                 `json:"enabled"`
	Default     bool                 `json:"default"`
}

// GenieQueryRequest asks a Genie space a question, optionally continuing a
// conversation.
type GenieQueryRequest struct {
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id,omitempty"`
	MaxRows        int    `json:"max_rows,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// GenieQueryResponse carries the settled message and its rendered result.
type GenieQueryResponse struct {
	ConversationID string       `json:"conversation_id"`
	MessageID      string       `json:"message_id"`
	Status         genie.Status `json:"status"`
	Result         genie.Result `json:"result"`
	Table          string       `json:"table"`
}

// StreamMessage is one websocket frame.
type StreamMessage struct {
	Type      string    `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream frame types.
const (
	StreamRouted = "routed"
	StreamResult = "result"
	StreamError  = "error"
)
