package executor

import (
	"context"
	"fmt"
	"time"

	"dbxagent/internal/genie"
	"dbxagent/internal/logging"
	"dbxagent/internal/supervisor"
)

// GenieClient is the part of *genie.Client the executor needs.
type GenieClient interface {
	StartConversation(ctx context.Context, spaceID, content string) (*genie.Message, error)
	WaitForCompletion(ctx context.Context, spaceID, conversationID, messageID string, timeout time.Duration) (*genie.Message, error)
}

// GenieExecutor asks the agent's Genie space and renders the result table.
type GenieExecutor struct {
	Client GenieClient
	Logger logging.Logger
}

func (e *GenieExecutor) Execute(ctx context.Context, agent supervisor.AgentConfig, query string) (string, error) {
	settings, err := settingsOf[supervisor.GenieSettings](agent)
	if err != nil {
		return "", err
	}

	msg, err := e.Client.StartConversation(ctx, settings.SpaceID, query)
	if err != nil {
		return "", err
	}
	// Start responses carry neither the payload nor the failure text, even
	// when they already report a final status.
	if !msg.HasResult() {
		msg, err = e.Client.WaitForCompletion(ctx, settings.SpaceID, msg.ConversationID, msg.ID, settings.Timeout)
		if err != nil {
			return "", err
		}
	}

	result := genie.Extract(msg)
	if !result.OK() {
		return "", fmt.Errorf("genie space %s: %s", settings.SpaceID, result.Error)
	}
	logging.FromContext(ctx, logging.OrNop(e.Logger)).Debug("Genie returned %d rows for agent %s", result.RowCount, agent.Name)
	return "Query results:\n\n" + genie.FormatMarkdownTable(result, settings.MaxRows), nil
}
