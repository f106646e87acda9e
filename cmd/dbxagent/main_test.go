package main

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbxagent/internal/supervisor"
)

func init() {
	color.NoColor = true
}

const baseConfig = `
llm:
  provider: mock
  endpoint: test-model
  responses: ["General knowledge answer."]
genie:
  poll_interval: 10ms
  timeout: 5s
supervisor:
  routing_strategy: rules
  default_agent: general
observability:
  logging:
    level: error
agents:
  tools:
    type: custom
    description: Deployment helper
    keywords: [deploy]
  general:
    type: llm
    description: Everything else
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	for _, env := range []string{"DATABRICKS_HOST", "DATABRICKS_TOKEN", "DATABRICKS_LLM_ENDPOINT", "VS_ENDPOINT", "DBXAGENT_LOG_LEVEL"} {
		t.Setenv(env, "")
	}
	path := filepath.Join(t.TempDir(), "dbxagent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args []string, opts ...ContainerOption) (string, error) {
	t.Helper()
	root := newRootCommand(opts...)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func deployExecutor() ContainerOption {
	return WithAgentExecutor("tools", supervisor.ExecutorFunc(func(_ context.Context, _ supervisor.AgentConfig, query string) (string, error) {
		return "deploying: " + query, nil
	}))
}

func TestAskRoutesToGeneralAgent(t *testing.T) {
	cfg := writeConfig(t, baseConfig)

	out, err := execute(t, []string{"--config", cfg, "ask", "what", "is", "a", "lakehouse?"}, deployExecutor())
	require.NoError(t, err)
	assert.Contains(t, out, "General knowledge answer.")
	assert.Contains(t, out, "agent: general")
}

func TestAskJSONUsesCustomExecutor(t *testing.T) {
	cfg := writeConfig(t, baseConfig)

	out, err := execute(t, []string{"--config", cfg, "ask", "--json", "please deploy the model"}, deployExecutor())
	require.NoError(t, err)

	var state supervisor.State
	require.NoError(t, json.Unmarshal([]byte(out), &state))
	assert.Equal(t, "tools", state.NextAgent)
	assert.Equal(t, "deploying: please deploy the model", state.FinalResponse)
	assert.False(t, state.Fallback)
}

func TestAskForcedAgent(t *testing.T) {
	cfg := writeConfig(t, baseConfig)

	out, err := execute(t, []string{"--config", cfg, "ask", "--agent", "tools", "hello"}, deployExecutor())
	require.NoError(t, err)
	assert.Contains(t, out, "deploying: hello")
}

func TestCustomAgentWithoutExecutorFailsToBuild(t *testing.T) {
	cfg := writeConfig(t, baseConfig)

	_, err := execute(t, []string{"--config", cfg, "agents", "validate"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tools")
}

func TestInvalidConfigNamesFile(t *testing.T) {
	cfg := writeConfig(t, "llm:\n  provider: carrier-pigeon\n")

	_, err := execute(t, []string{"--config", cfg, "ask", "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), cfg)
	assert.Contains(t, err.Error(), `llm.provider "carrier-pigeon"`)
}

func TestOverridesBeatConfigFile(t *testing.T) {
	cfg := writeConfig(t, baseConfig+"workspace:\n  host: https://file.example\n  token: from-file\n")
	t.Setenv("DATABRICKS_TOKEN", "from-env")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("host", "", "")
	flags.String("token", "", "")
	flags.String("model", "", "")
	flags.String("log-level", "", "")
	require.NoError(t, flags.Parse([]string{"--model", "flag-model"}))

	v := viper.New()
	require.NoError(t, bindOverrides(v, flags))
	settings, used, err := loadSettings(v, cfg)
	require.NoError(t, err)

	assert.Equal(t, cfg, used)
	assert.Equal(t, "https://file.example", settings.Workspace.Host)
	assert.Equal(t, "from-env", settings.Workspace.Token)
	assert.Equal(t, "flag-model", settings.LLM.Endpoint)
	assert.Equal(t, "error", settings.Observability.Logging.Level)
}

func TestAgentsListAndValidate(t *testing.T) {
	cfg := writeConfig(t, baseConfig)

	out, err := execute(t, []string{"--config", cfg, "agents", "list"}, deployExecutor())
	require.NoError(t, err)
	assert.Contains(t, out, "tools")
	assert.Contains(t, out, "general *")
	assert.Contains(t, out, "deploy")

	out, err = execute(t, []string{"--config", cfg, "agents", "validate"}, deployExecutor())
	require.NoError(t, err)
	assert.Contains(t, out, "2 agents (2 enabled), default general, routing rules")
}

func genieServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/2.0/genie/spaces/sp1/start-conversation", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer dapi-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"conversation_id":"c1","message_id":"m1","status":"PENDING"}`))
	})
	mux.HandleFunc("GET /api/2.0/genie/spaces/sp1/conversations/c1/messages/m1", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"id":"m1","conversation_id":"c1","status":"COMPLETED","query_result":{
			"statement_response":{"status":{"state":"SUCCEEDED"},
			"manifest":{"schema":{"columns":[{"name":"region"},{"name":"revenue"}]}},
			"result":{"data_array":[["EMEA",1200],["APAC",900]]}}}}`))
	})
	mux.HandleFunc("GET /api/2.0/genie/spaces/sp1/conversations/c1/messages", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"messages":[{"id":"m1","content":"Revenue by region","status":"COMPLETED"}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGenieQueryRendersTable(t *testing.T) {
	cfg := writeConfig(t, baseConfig)
	srv := genieServer(t)

	out, err := execute(t, []string{"--config", cfg, "--host", srv.URL, "--token", "dapi-test",
		"genie", "query", "sp1", "Revenue", "by", "region", "--max-rows", "1"})
	require.NoError(t, err)
	assert.Contains(t, out, "region")
	assert.Contains(t, out, "EMEA")
	assert.NotContains(t, out, "APAC")
	assert.Contains(t, out, "*Showing 1 of 2 rows*")
	assert.Contains(t, out, "conversation: c1  message: m1")
}

func TestGenieHistory(t *testing.T) {
	cfg := writeConfig(t, baseConfig)
	srv := genieServer(t)

	out, err := execute(t, []string{"--config", cfg, "--host", srv.URL, "--token", "dapi-test",
		"genie", "history", "sp1", "c1"})
	require.NoError(t, err)
	assert.Contains(t, out, "m1  COMPLETED  Revenue by region")
}

func TestGenieRequiresHost(t *testing.T) {
	cfg := writeConfig(t, baseConfig)

	_, err := execute(t, []string{"--config", cfg, "genie", "query", "sp1", "hello"})
	require.ErrorIs(t, err, errNoWorkspace)
}

// embeddingServer answers the embeddings API with word-hash vectors so texts
// sharing words land close together.
func embeddingServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]item, 0, len(req.Input))
		for i, text := range req.Input {
			vec := make([]float32, 32)
			vec[0] = 0.01
			for _, word := range strings.Fields(strings.ToLower(text)) {
				h := fnv.New32a()
				_, _ = h.Write([]byte(word))
				vec[1+h.Sum32()%31]++
			}
			data = append(data, item{Embedding: vec, Index: i})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIndexAddThenSearch(t *testing.T) {
	embed := embeddingServer(t)
	store := t.TempDir()
	cfg := writeConfig(t, baseConfig+`
vector_search:
  backend: local
  local_path: `+store+`
  embedding_base_url: `+embed.URL+`
`)

	docs := t.TempDir()
	clusters := filepath.Join(docs, "clusters.md")
	genieDoc := filepath.Join(docs, "genie.md")
	require.NoError(t, os.WriteFile(clusters, []byte("clusters autoscale between min and max workers"), 0o600))
	require.NoError(t, os.WriteFile(genieDoc, []byte("genie spaces answer sales questions"), 0o600))

	out, err := execute(t, []string{"--config", cfg, "index", "add", "docs", clusters, genieDoc, "--meta", "team=platform"})
	require.NoError(t, err)
	assert.Contains(t, out, "indexed 2 documents into docs (2 total)")

	out, err = execute(t, []string{"--config", cfg, "search", "docs", "how", "do", "clusters", "autoscale", "--k", "1"})
	require.NoError(t, err)
	assert.Contains(t, out, "**Result 1**")
	assert.Contains(t, out, "source: clusters.md")
	assert.NotContains(t, out, "genie spaces")

	out, err = execute(t, []string{"--config", cfg, "search", "docs", "questions", "--json",
		"--filter", `{"comparator":"eq","attribute":"source","value":"genie.md"}`})
	require.NoError(t, err)
	var hits []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "genie spaces answer sales questions", hits[0]["content"])

	out, err = execute(t, []string{"--config", cfg, "index", "delete", "docs", filepath.Clean(clusters)})
	require.NoError(t, err)
	assert.Contains(t, out, "1 documents left in docs")
}

func TestIndexNeedsLocalBackend(t *testing.T) {
	cfg := writeConfig(t, baseConfig)

	_, err := execute(t, []string{"--config", cfg, "index", "delete", "docs", "x"})
	require.ErrorIs(t, err, errNoLocalStore)
}

func TestParseFilterFlag(t *testing.T) {
	filter, err := parseFilterFlag("")
	require.NoError(t, err)
	assert.Nil(t, filter)

	filter, err = parseFilterFlag(`{"operator":"and","arguments":[{"comparator":"gte","attribute":"year","value":2023}]}`)
	require.NoError(t, err)
	require.NotNil(t, filter)

	_, err = parseFilterFlag(`{"comparator":"eq"`)
	assert.ErrorContains(t, err, "decode --filter")

	_, err = parseFilterFlag(`{"comparator":"near","attribute":"x","value":1}`)
	assert.ErrorContains(t, err, "unsupported comparator")
}
