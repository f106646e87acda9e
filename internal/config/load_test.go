package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envMap map[string]string

func (e envMap) Lookup(key string) (string, bool) {
	val, ok := e[key]
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

const sampleConfig = `
workspace:
  host: "https://${DBX_HOST}"
  token: "${DBX_TOKEN}"
llm:
  endpoint: "${LLM_ENDPOINT:-databricks-dbrx-instruct}"
genie:
  poll_interval: 500ms
  timeout: 30s
supervisor:
  routing_strategy: rules
  enable_fallback: false
  default_agent: general
agents:
  sales:
    type: genie
    description: Sales data
    config:
      space_id: abc
      keywords: [sales, revenue]
  docs:
    type: rag
    description: Product documentation
    enabled: false
    config:
      index_name: main.docs.index
      endpoint_name: vs
  general:
    type: llm
    description: Everything else
`

func TestParseExpandsEnvAndPreservesAgentOrder(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig), envMap{"DBX_HOST": "example.cloud", "DBX_TOKEN": "t0k"}.Lookup)
	require.NoError(t, err)

	assert.Equal(t, "https://example.cloud", cfg.Workspace.Host)
	assert.Equal(t, "t0k", cfg.Workspace.Token)
	assert.Equal(t, "databricks-dbrx-instruct", cfg.LLM.Endpoint)
	assert.Equal(t, 500*time.Millisecond, cfg.Genie.PollInterval)
	assert.Equal(t, 30*time.Second, cfg.Genie.Timeout)
	assert.Equal(t, "rules", cfg.Supervisor.RoutingStrategy)
	assert.False(t, cfg.Supervisor.FallbackEnabled())

	require.Len(t, cfg.Agents, 3)
	names := []string{cfg.Agents[0].Name, cfg.Agents[1].Name, cfg.Agents[2].Name}
	assert.Equal(t, []string{"sales", "docs", "general"}, names)
	assert.True(t, cfg.Agents[0].IsEnabled())
	assert.False(t, cfg.Agents[1].IsEnabled())
	assert.Equal(t, "abc", cfg.Agents[0].Config["space_id"])

	docs, ok := cfg.Agents.Get("docs")
	require.True(t, ok)
	assert.Equal(t, "rag", docs.Type)
}

func TestParseAcceptsJSON(t *testing.T) {
	data := []byte(`{"supervisor": {"default_agent": "fallback"}, "agents": {"fallback": {"type": "llm", "description": "d"}}}`)
	cfg, err := Parse(data, envMap{}.Lookup)
	require.NoError(t, err)
	assert.Equal(t, "fallback", cfg.Supervisor.DefaultAgent)
	assert.True(t, cfg.Supervisor.FallbackEnabled())
	require.Len(t, cfg.Agents, 1)
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultLLMProvider, cfg.LLM.Provider)
	assert.Equal(t, DefaultLLMEndpoint, cfg.LLM.Endpoint)
	assert.Equal(t, 0.1, cfg.LLM.Temperature)
	assert.Equal(t, 60*time.Second, cfg.Genie.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Genie.PollInterval)
	assert.Equal(t, 10, cfg.Genie.MaxRows)
	assert.Equal(t, "llm", cfg.Supervisor.RoutingStrategy)
	assert.Equal(t, "general", cfg.Supervisor.DefaultAgent)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "dbxagent", cfg.Observability.Tracing.ServiceName)
}

func TestValidateRejectsBadValues(t *testing.T) {
	_, err := Parse([]byte(`
llm: {provider: carrier}
supervisor: {routing_strategy: sequential}
agents:
  a: {description: missing type}
`), envMap{}.Lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.provider")
	assert.Contains(t, err.Error(), "routing_strategy")
	assert.Contains(t, err.Error(), "type is required")
}

func TestAgentsMustBeMapping(t *testing.T) {
	_, err := Parse([]byte("agents: [a, b]"), envMap{}.Lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapping")
}

func TestLoadMissingDefaultFileReturnsDefaults(t *testing.T) {
	cfg, path, err := Load("",
		WithFileReader(func(string) ([]byte, error) { return nil, os.ErrNotExist }),
		WithHomeDir(func() (string, error) { return "/nowhere", nil }),
	)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, Default(), cfg)
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadReadsHomeConfig(t *testing.T) {
	home := t.TempDir()
	dir := filepath.Join(home, ".dbxagent")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("genie: {max_rows: 3}\n"), 0o644))

	reader := func(p string) ([]byte, error) {
		if filepath.IsAbs(p) {
			return os.ReadFile(p)
		}
		return nil, os.ErrNotExist
	}
	cfg, path, err := Load("", WithFileReader(reader), WithHomeDir(func() (string, error) { return home, nil }))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.yaml"), path)
	assert.Equal(t, 3, cfg.Genie.MaxRows)
}

func TestExpandEnv(t *testing.T) {
	lookup := envMap{"A": "1"}.Lookup
	assert.Equal(t, "1-x-", ExpandEnv("${A}-${B:-x}-${C}", lookup))
	assert.Equal(t, "$A stays", ExpandEnv("$A stays", lookup))
}
