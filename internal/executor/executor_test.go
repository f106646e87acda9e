package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbxagent/internal/genie"
	"dbxagent/internal/llm"
	"dbxagent/internal/logging"
	"dbxagent/internal/supervisor"
	"dbxagent/internal/vectorsearch"
)

const salesPayload = `{
	"statement_response": {
		"status": {"state": "SUCCEEDED"},
		"manifest": {"schema": {"columns": [{"name": "region"}, {"name": "total"}]}},
		"result": {"data_array": [["west", 100], ["east", 200]]}
	}
}`

type fakeGenie struct {
	start     *genie.Message
	startErr  error
	waited    *genie.Message
	waitErr   error
	timeouts  []time.Duration
	questions []string
}

func (f *fakeGenie) StartConversation(_ context.Context, spaceID, content string) (*genie.Message, error) {
	f.questions = append(f.questions, spaceID+":"+content)
	return f.start, f.startErr
}

func (f *fakeGenie) WaitForCompletion(_ context.Context, _, _, _ string, timeout time.Duration) (*genie.Message, error) {
	f.timeouts = append(f.timeouts, timeout)
	return f.waited, f.waitErr
}

func genieAgent(settings supervisor.GenieSettings) supervisor.AgentConfig {
	return supervisor.AgentConfig{Name: "sales", Type: supervisor.AgentGenie, Enabled: true, Settings: settings}
}

func TestGenieExecutorRendersTable(t *testing.T) {
	client := &fakeGenie{
		start:  &genie.Message{ID: "m1", ConversationID: "c1", Status: genie.StatusExecutingQuery},
		waited: &genie.Message{ID: "m1", ConversationID: "c1", Status: genie.StatusCompleted, QueryResult: json.RawMessage(salesPayload)},
	}
	ex := &GenieExecutor{Client: client, Logger: logging.Nop()}

	out, err := ex.Execute(context.Background(), genieAgent(supervisor.GenieSettings{SpaceID: "sp1", Timeout: 30 * time.Second}), "What were Q4 sales?")
	require.NoError(t, err)

	assert.Equal(t, []string{"sp1:What were Q4 sales?"}, client.questions)
	assert.Equal(t, []time.Duration{30 * time.Second}, client.timeouts)
	require.True(t, strings.HasPrefix(out, "Query results:\n\n| region | total |"), out)
	assert.Contains(t, out, "west")
	assert.Contains(t, out, "200")
}

func TestGenieExecutorSkipsWaitWhenSettled(t *testing.T) {
	client := &fakeGenie{start: &genie.Message{ID: "m1", ConversationID: "c1", Status: genie.StatusCompleted, QueryResult: json.RawMessage(salesPayload)}}
	ex := &GenieExecutor{Client: client}

	_, err := ex.Execute(context.Background(), genieAgent(supervisor.GenieSettings{SpaceID: "sp1"}), "q")
	require.NoError(t, err)
	assert.Empty(t, client.timeouts)
}

func TestGenieExecutorFetchesSettledMessageWithoutResult(t *testing.T) {
	failed := &genie.Message{ID: "m1", ConversationID: "c1", Status: genie.StatusFailed}
	client := &fakeGenie{
		start:   failed,
		waitErr: &genie.QueryFailedError{MessageID: "m1", Reason: "TABLE_OR_VIEW_NOT_FOUND: sales.q4"},
	}
	ex := &GenieExecutor{Client: client}

	_, err := ex.Execute(context.Background(), genieAgent(supervisor.GenieSettings{SpaceID: "sp1", Timeout: time.Second}), "q")
	require.ErrorIs(t, err, genie.ErrQueryFailed)
	assert.Contains(t, err.Error(), "TABLE_OR_VIEW_NOT_FOUND: sales.q4")
	assert.Equal(t, []time.Duration{time.Second}, client.timeouts)

	completed := &genie.Message{ID: "m1", ConversationID: "c1", Status: genie.StatusCompleted}
	client = &fakeGenie{
		start:  completed,
		waited: &genie.Message{ID: "m1", ConversationID: "c1", Status: genie.StatusCompleted, QueryResult: json.RawMessage(salesPayload)},
	}
	out, err := (&GenieExecutor{Client: client}).Execute(context.Background(), genieAgent(supervisor.GenieSettings{SpaceID: "sp1"}), "q")
	require.NoError(t, err)
	assert.Len(t, client.timeouts, 1)
	assert.Contains(t, out, "west")
}

func TestGenieExecutorFailures(t *testing.T) {
	agent := genieAgent(supervisor.GenieSettings{SpaceID: "sp1"})
	pending := &genie.Message{ID: "m1", ConversationID: "c1", Status: genie.StatusPending}

	_, err := (&GenieExecutor{Client: &fakeGenie{startErr: errors.New("403")}}).Execute(context.Background(), agent, "q")
	require.EqualError(t, err, "403")

	timeout := &genie.TimeoutError{MessageID: "m1", Timeout: time.Second, LastStatus: genie.StatusExecutingQuery}
	_, err = (&GenieExecutor{Client: &fakeGenie{start: pending, waitErr: timeout}}).Execute(context.Background(), agent, "q")
	require.ErrorIs(t, err, genie.ErrTimeout)

	noData := &genie.Message{ID: "m1", Status: genie.StatusCompleted}
	_, err = (&GenieExecutor{Client: &fakeGenie{start: noData, waited: noData}}).Execute(context.Background(), agent, "q")
	require.EqualError(t, err, "genie space sp1: no query result available")

	wrong := supervisor.AgentConfig{Name: "sales", Settings: supervisor.LLMSettings{}}
	_, err = (&GenieExecutor{Client: &fakeGenie{}}).Execute(context.Background(), wrong, "q")
	require.ErrorContains(t, err, "agent sales has supervisor.LLMSettings settings")
}

type fakeIndex struct {
	rows    []map[string]any
	err     error
	queries []vectorsearch.Query
}

func (f *fakeIndex) Name() string { return "docs" }

func (f *fakeIndex) Search(_ context.Context, q vectorsearch.Query) ([]map[string]any, error) {
	f.queries = append(f.queries, q)
	return f.rows, f.err
}

type fakeOpener struct {
	index  *fakeIndex
	opened []string
}

func (o *fakeOpener) Open(endpoint, index string) (vectorsearch.Index, error) {
	o.opened = append(o.opened, endpoint+"/"+index)
	if o.index == nil {
		return nil, errors.New("no such index")
	}
	return o.index, nil
}

type models map[string]*llm.ScriptedClient

func (m models) Get(model string) (llm.Client, error) {
	client, ok := m[model]
	if !ok {
		return nil, fmt.Errorf("unknown model %s", model)
	}
	return client, nil
}

func ragAgent(settings supervisor.RetrievalSettings) supervisor.AgentConfig {
	return supervisor.AgentConfig{Name: "docs", Type: supervisor.AgentRAG, Enabled: true, Settings: settings}
}

func TestRetrievalExecutorPrompt(t *testing.T) {
	index := &fakeIndex{rows: []map[string]any{
		{"text": "Clusters autoscale.", "source": "compute.md", "score": 0.9},
		{"text": "<p>Use <b>jobs</b> to schedule.</p>", "score": 0.7},
	}}
	opener := &fakeOpener{index: index}
	model := llm.NewScriptedClient("dbrx", "They autoscale.")
	ex := &RetrievalExecutor{Indexes: opener, Models: models{"dbrx": model}}

	out, err := ex.Execute(context.Background(), ragAgent(supervisor.RetrievalSettings{
		IndexName: "main.docs", EndpointName: "vs", NumResults: 3, Model: "dbrx", TextColumn: "text", StripHTML: true,
	}), "Do clusters scale?")
	require.NoError(t, err)
	assert.Equal(t, "They autoscale.", out)
	assert.Equal(t, []string{"vs/main.docs"}, opener.opened)
	require.Len(t, index.queries, 1)
	assert.Equal(t, 3, index.queries[0].NumResults)

	calls := model.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Answer using these documents:\n\nContext:\n"+
		"[compute.md]\nClusters autoscale.\n\n[Unknown]\nUse jobs to schedule."+
		"\n\nQuestion: Do clusters scale?\n\nAnswer:", calls[0].Messages[0].Content)
}

func TestRetrievalExecutorSelfQuery(t *testing.T) {
	index := &fakeIndex{rows: []map[string]any{{"text": "Intro", "source": "a.md"}}}
	model := llm.NewScriptedClient("dbrx",
		`{"query": "getting started", "filter": {"comparator": "eq", "attribute": "category", "value": "tutorial"}}`,
		"Read the intro.")
	ex := &RetrievalExecutor{Indexes: &fakeOpener{index: index}, Models: models{"dbrx": model}}

	out, err := ex.Execute(context.Background(), ragAgent(supervisor.RetrievalSettings{
		IndexName: "main.docs", EndpointName: "vs", NumResults: 5, Model: "dbrx", SelfQuery: true,
		Attributes: []vectorsearch.AttributeInfo{{Name: "category", Type: "string"}},
	}), "How do I start?")
	require.NoError(t, err)
	assert.Equal(t, "Read the intro.", out)
	require.Len(t, index.queries, 1)
	assert.Equal(t, "getting started", index.queries[0].Text)
	assert.Equal(t, []string{"category"}, vectorsearch.Attributes(index.queries[0].Filter))
}

func TestRetrievalExecutorErrors(t *testing.T) {
	settings := supervisor.RetrievalSettings{IndexName: "main.docs", EndpointName: "vs", NumResults: 5, Model: "dbrx"}
	model := models{"dbrx": llm.NewScriptedClient("dbrx")}

	_, err := (&RetrievalExecutor{Indexes: &fakeOpener{}, Models: model}).Execute(context.Background(), ragAgent(settings), "q")
	require.ErrorContains(t, err, "open index main.docs: no such index")

	failing := &fakeOpener{index: &fakeIndex{err: errors.New("endpoint offline")}}
	_, err = (&RetrievalExecutor{Indexes: failing, Models: model}).Execute(context.Background(), ragAgent(settings), "q")
	require.ErrorContains(t, err, "endpoint offline")

	settings.Model = "missing"
	_, err = (&RetrievalExecutor{Indexes: &fakeOpener{index: &fakeIndex{}}, Models: model}).Execute(context.Background(), ragAgent(settings), "q")
	require.EqualError(t, err, "unknown model missing")
}

func TestBuildContextBudget(t *testing.T) {
	docs := []vectorsearch.Document{
		{Content: strings.Repeat("alpha ", 40), Metadata: map[string]any{"source": "a"}},
		{Content: strings.Repeat("beta ", 40), Metadata: map[string]any{"source": "b"}},
		{Content: "gamma", Metadata: map[string]any{"source": "c"}},
	}

	full := BuildContext(docs, false, 0)
	assert.Equal(t, 3, strings.Count(full, "]\n"))

	budget := countTokens("[a]\n"+docs[0].Content) + 5
	trimmed := BuildContext(docs, false, budget)
	assert.True(t, strings.HasPrefix(trimmed, "[a]\n"+docs[0].Content), trimmed)
	assert.NotContains(t, trimmed, "gamma")
	assert.LessOrEqual(t, countTokens(trimmed), budget+2)

	assert.Empty(t, BuildContext(nil, false, 10))
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "plain text", stripHTML("plain text"))
	assert.Equal(t, "Title body", stripHTML("<h1>Title</h1><script>x()</script>\n<p>body</p>"))
}

func TestTextGenerationExecutor(t *testing.T) {
	model := llm.NewScriptedClient("dbrx", "  Hello there.  ")
	ex := &TextGenerationExecutor{Models: models{"dbrx": model}}
	temperature := 0.4

	out, err := ex.Execute(context.Background(), supervisor.AgentConfig{
		Name: "general", Type: supervisor.AgentLLM,
		Settings: supervisor.LLMSettings{Model: "dbrx", Temperature: &temperature, SystemMessage: "Be brief.", MaxTokens: 64},
	}, "Hi")
	require.NoError(t, err)
	assert.Equal(t, "  Hello there.  ", out)

	calls := model.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []llm.Message{{Role: llm.RoleSystem, Content: "Be brief."}, {Role: llm.RoleUser, Content: "Hi"}}, calls[0].Messages)
	assert.InDelta(t, 0.4, calls[0].Temperature, 1e-9)
	assert.Equal(t, 64, calls[0].MaxTokens)

	model.FailNext(errors.New("rate limited"))
	_, err = ex.Execute(context.Background(), supervisor.AgentConfig{Name: "general", Settings: supervisor.LLMSettings{Model: "dbrx"}}, "Hi")
	require.EqualError(t, err, "rate limited")
	assert.Equal(t, supervisor.DefaultSystemMessage, model.Calls()[1].Messages[0].Content)
}

func TestFuncReceivesCustomValues(t *testing.T) {
	var got map[string]any
	fn := Func(func(_ context.Context, values map[string]any, query string) (string, error) {
		got = values
		return "echo " + query, nil
	})

	out, err := fn.Execute(context.Background(), supervisor.AgentConfig{
		Name: "tools", Type: supervisor.AgentMCP,
		Settings: supervisor.CustomSettings{Type: supervisor.AgentMCP, Values: map[string]any{"server": "x"}},
	}, "ping")
	require.NoError(t, err)
	assert.Equal(t, "echo ping", out)
	assert.Equal(t, map[string]any{"server": "x"}, got)
}

func TestDefaults(t *testing.T) {
	assert.Empty(t, Defaults(Deps{}))

	table := Defaults(Deps{Models: models{}})
	assert.Contains(t, table, supervisor.AgentLLM)
	assert.NotContains(t, table, supervisor.AgentRAG)

	table = Defaults(Deps{Genie: &fakeGenie{}, Indexes: &fakeOpener{}, Models: models{}})
	assert.Len(t, table, 3)
}

func TestExecutorsDriveSupervisorFallback(t *testing.T) {
	client := &fakeGenie{startErr: errors.New("space not found")}
	model := llm.NewScriptedClient("dbrx", "General answer.")
	deps := Deps{Genie: client, Models: models{"dbrx": model}}

	reg, err := supervisor.NewRegistry([]supervisor.AgentConfig{
		genieAgent(supervisor.GenieSettings{SpaceID: "sp1"}),
		{Name: "general", Type: supervisor.AgentLLM, Enabled: true, Settings: supervisor.LLMSettings{Model: "dbrx"}},
	}, "general", supervisor.WithTypeExecutors(Defaults(deps)))
	require.NoError(t, err)
	sup, err := supervisor.New(supervisor.Config{Registry: reg, Router: supervisor.RuleRouter{}, EnableFallback: true})
	require.NoError(t, err)

	state := sup.Invoke(context.Background(), "sales", supervisor.WithAgent("sales"))
	assert.Equal(t, "General answer.", state.FinalResponse)
	assert.True(t, state.Fallback)
	assert.Equal(t, "Error in sales: space not found", state.Metadata["primary_error"])
}
