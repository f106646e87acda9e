package executor

import (
	"context"

	"dbxagent/internal/llm"
	"dbxagent/internal/supervisor"
)

// TextGenerationExecutor sends the agent's system message and the query to
// its model and returns the output unchanged.
type TextGenerationExecutor struct {
	Models ModelSource
}

func (e *TextGenerationExecutor) Execute(ctx context.Context, agent supervisor.AgentConfig, query string) (string, error) {
	settings, err := settingsOf[supervisor.LLMSettings](agent)
	if err != nil {
		return "", err
	}
	model, err := e.Models.Get(settings.Model)
	if err != nil {
		return "", err
	}

	system := settings.SystemMessage
	if system == "" {
		system = supervisor.DefaultSystemMessage
	}
	resp, err := model.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: query},
		},
		Temperature: settings.EffectiveTemperature(),
		MaxTokens:   settings.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
