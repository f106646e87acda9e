package executor

import (
	"context"
	"fmt"
	"strings"

	"dbxagent/internal/llm"
	"dbxagent/internal/logging"
	"dbxagent/internal/supervisor"
	"dbxagent/internal/vectorsearch"
)

const retrievalPrompt = `Answer using these documents:

Context:
%s

Question: %s

Answer:`

// RetrievalExecutor answers from documents found in the agent's vector
// index.
type RetrievalExecutor struct {
	Indexes vectorsearch.Opener
	Models  ModelSource
	Logger  logging.Logger
}

func (e *RetrievalExecutor) Execute(ctx context.Context, agent supervisor.AgentConfig, query string) (string, error) {
	settings, err := settingsOf[supervisor.RetrievalSettings](agent)
	if err != nil {
		return "", err
	}
	logger := logging.FromContext(ctx, logging.OrNop(e.Logger))

	index, err := e.Indexes.Open(settings.EndpointName, settings.IndexName)
	if err != nil {
		return "", fmt.Errorf("open index %s: %w", settings.IndexName, err)
	}
	model, err := e.Models.Get(settings.Model)
	if err != nil {
		return "", err
	}

	base := &vectorsearch.Retriever{
		Index:      index,
		TextColumn: settings.TextColumn,
		Columns:    settings.Columns,
		NumResults: settings.NumResults,
	}
	var retriever vectorsearch.DocumentRetriever = base
	if settings.SelfQuery {
		retriever = &vectorsearch.SelfQueryRetriever{
			Base:               base,
			Model:              model,
			ContentDescription: settings.ContentDescription,
			Attributes:         settings.Attributes,
			EnableLimit:        settings.EnableLimit,
			Logger:             e.Logger,
		}
	}

	docs, err := retriever.Retrieve(ctx, query)
	if err != nil {
		return "", fmt.Errorf("retrieve from %s: %w", settings.IndexName, err)
	}
	logger.Debug("Retrieved %d documents from %s", len(docs), settings.IndexName)

	passages := BuildContext(docs, settings.StripHTML, settings.MaxContextTokens)
	resp, err := model.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf(retrievalPrompt, passages, query)}},
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// BuildContext renders documents as "[source]\npassage" blocks separated by
// blank lines. With maxTokens > 0, blocks are kept in rank order until the
// budget is spent and the last kept block may be cut short.
func BuildContext(docs []vectorsearch.Document, plain bool, maxTokens int) string {
	blocks := make([]string, 0, len(docs))
	used := 0
	for _, doc := range docs {
		content := doc.Content
		if plain {
			content = stripHTML(content)
		}
		block := "[" + doc.Source() + "]\n" + content
		if maxTokens > 0 {
			if len(blocks) > 0 {
				block = "\n\n" + block
			}
			remaining := maxTokens - used
			if remaining <= 0 {
				break
			}
			cost := countTokens(block)
			if cost > remaining {
				block = truncateTokens(block, remaining)
				if strings.TrimSpace(block) != "" {
					blocks = append(blocks, block)
				}
				break
			}
			used += cost
		}
		blocks = append(blocks, block)
	}
	if maxTokens > 0 {
		return strings.Join(blocks, "")
	}
	return strings.Join(blocks, "\n\n")
}
