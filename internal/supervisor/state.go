package supervisor

// Role tags a transcript entry with its producer.
type Role string

const (
	RoleUser       Role = "user"
	RoleSupervisor Role = "supervisor"
	RoleAgent      Role = "agent"
)

// Message is one transcript entry.
type Message struct {
	Role    Role   `json:"role"`
	Agent   string `json:"agent,omitempty"`
	Content string `json:"content"`
}

// State records one invocation end to end. The transcript is append-only.
type State struct {
	Query         string            `json:"query"`
	Messages      []Message         `json:"messages"`
	NextAgent     string            `json:"next_agent"`
	Strategy      RoutingStrategy   `json:"strategy"`
	AgentResults  map[string]string `json:"agent_results"`
	FinalResponse string            `json:"final_response"`
	// Fallback is set when the default agent produced the final response
	// after the routed agent failed.
	Fallback bool           `json:"fallback"`
	Failed   bool           `json:"failed"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func newState(query string, metadata map[string]any) *State {
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	return &State{
		Query:        query,
		Messages:     []Message{{Role: RoleUser, Content: query}},
		AgentResults: map[string]string{},
		Metadata:     meta,
	}
}

func (s *State) append(role Role, agent, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Agent: agent, Content: content})
}
