package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"dbxagent/internal/config"
	dbxerrors "dbxagent/internal/errors"
	"dbxagent/internal/executor"
	"dbxagent/internal/genie"
	"dbxagent/internal/llm"
	"dbxagent/internal/logging"
	"dbxagent/internal/observability"
	"dbxagent/internal/supervisor"
	"dbxagent/internal/vectorsearch"
)

// Container is the composition root shared by every command.
type Container struct {
	Config   config.Config
	Logger   logging.Logger
	Registry *prometheus.Registry
	Metrics  *observability.MetricsCollector

	Models *llm.Pool
	// Genie is nil when no workspace host is configured.
	Genie   *genie.Client
	Indexes vectorsearch.Opener
	// Local is set when the embedded vector store backs Indexes.
	Local      *vectorsearch.LocalStore
	Supervisor *supervisor.Supervisor

	tracer *observability.TracerProvider
}

type containerOptions struct {
	logOutput  io.Writer
	executors  map[string]supervisor.Executor
	skipAgents bool
}

// ContainerOption customizes BuildContainer.
type ContainerOption func(*containerOptions)

// withLogOutput sends logs to w instead of stderr.
func withLogOutput(w io.Writer) ContainerOption {
	return func(o *containerOptions) { o.logOutput = w }
}

// WithAgentExecutor binds a custom executor to the agent called name.
func WithAgentExecutor(name string, ex supervisor.Executor) ContainerOption {
	return func(o *containerOptions) { o.executors[name] = ex }
}

// withoutSupervisor skips building the agent registry, for commands that
// only talk to Genie or vector search.
func withoutSupervisor() ContainerOption {
	return func(o *containerOptions) { o.skipAgents = true }
}

// BuildContainer wires logging, metrics, tracing, model clients, Genie,
// vector search and the supervisor from cfg.
func BuildContainer(ctx context.Context, cfg config.Config, opts ...ContainerOption) (*Container, error) {
	options := containerOptions{executors: map[string]supervisor.Executor{}}
	for _, opt := range opts {
		opt(&options)
	}

	logging.SetDefault(observability.NewLogger(observability.LogConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: options.logOutput,
	}))
	c := &Container{
		Config:   cfg,
		Logger:   logging.NewComponentLogger("dbxagent"),
		Registry: prometheus.NewRegistry(),
	}
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var err error
	if c.Metrics, err = observability.NewMetricsCollector(cfg.Observability.Metrics, c.Registry); err != nil {
		return nil, err
	}
	if c.tracer, err = observability.NewTracerProvider(ctx, cfg.Observability.Tracing); err != nil {
		return nil, err
	}

	if c.Models, err = llm.NewPool(cfg.LLM.PoolSize, c.modelFactory(ctx)); err != nil {
		return nil, err
	}
	if cfg.Workspace.Host != "" {
		if c.Genie, err = genie.NewClient(genie.Config{
			Host:         cfg.Workspace.Host,
			Token:        cfg.Workspace.Token,
			Timeout:      cfg.Genie.Timeout,
			PollInterval: cfg.Genie.PollInterval,
			HTTPTimeout:  cfg.Genie.HTTPTimeout,
			Logger:       logging.NewComponentLogger("genie"),
			Metrics:      c.Metrics,
		}); err != nil {
			return nil, fmt.Errorf("genie client: %w", err)
		}
	}
	if err := c.buildIndexes(); err != nil {
		return nil, err
	}

	if !options.skipAgents {
		if c.Supervisor, err = c.buildSupervisor(options.executors); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Container) modelFactory(ctx context.Context) llm.Factory {
	cfg := c.Config
	apiKey := cfg.LLM.APIKey
	if apiKey == "" && cfg.LLM.Provider == "databricks" {
		apiKey = cfg.Workspace.Token
	}
	retry := dbxerrors.RetryConfig{
		MaxAttempts:  cfg.LLM.Retry.MaxAttempts,
		BaseDelay:    cfg.LLM.Retry.BaseDelay,
		MaxDelay:     cfg.LLM.Retry.MaxDelay,
		JitterFactor: dbxerrors.DefaultRetryConfig().JitterFactor,
	}
	breakers := dbxerrors.NewCircuitBreakerSet(dbxerrors.DefaultCircuitBreakerConfig())

	return func(model string) (llm.Client, error) {
		logger := logging.NewComponentLogger("llm")
		client, err := llm.New(ctx, model, llm.ProviderConfig{
			Provider:  cfg.LLM.Provider,
			Host:      cfg.Workspace.Host,
			BaseURL:   cfg.LLM.BaseURL,
			APIKey:    apiKey,
			MaxTokens: cfg.LLM.MaxTokens,
			Timeout:   cfg.LLM.Timeout,
			Responses: cfg.LLM.Responses,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		client = llm.NewRetryClient(client, retry, breakers.Get("llm:"+model), logger)
		return llm.Instrument(client, c.Metrics, logger), nil
	}
}

func (c *Container) buildIndexes() error {
	cfg := c.Config
	switch cfg.VectorSearch.Backend {
	case "local":
		baseURL := cfg.VectorSearch.EmbeddingBaseURL
		if baseURL == "" {
			if cfg.Workspace.Host == "" {
				return errors.New("vector_search: local backend needs embedding_base_url or a workspace host")
			}
			baseURL = llm.DatabricksServingURL(cfg.Workspace.Host)
		}
		apiKey := cfg.LLM.APIKey
		if apiKey == "" {
			apiKey = cfg.Workspace.Token
		}
		logger := logging.NewComponentLogger("vectorsearch")
		embedder, err := vectorsearch.NewEmbedder(vectorsearch.EmbedderConfig{
			BaseURL:   baseURL,
			Model:     cfg.VectorSearch.EmbeddingModel,
			APIKey:    apiKey,
			CacheSize: cfg.VectorSearch.EmbeddingCacheSize,
			Retry:     dbxerrors.DefaultRetryConfig(),
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		store, err := vectorsearch.NewLocalStore(vectorsearch.LocalConfig{
			Path:     cfg.VectorSearch.LocalPath,
			Embedder: embedder,
			Logger:   logger,
			Metrics:  c.Metrics,
		})
		if err != nil {
			return err
		}
		c.Local, c.Indexes = store, store
	default:
		if cfg.Workspace.Host == "" {
			return nil
		}
		client, err := vectorsearch.NewClient(vectorsearch.ClientConfig{
			Host:        cfg.Workspace.Host,
			Token:       cfg.Workspace.Token,
			HTTPTimeout: cfg.Genie.HTTPTimeout,
			Logger:      logging.NewComponentLogger("vectorsearch"),
			Metrics:     c.Metrics,
		})
		if err != nil {
			return fmt.Errorf("vector search client: %w", err)
		}
		c.Indexes = client
	}
	return nil
}

// defaultAgents is used when the file configures no agents.
func defaultAgents(cfg config.Config) []supervisor.AgentConfig {
	return []supervisor.AgentConfig{{
		Name:        cfg.Supervisor.DefaultAgent,
		Type:        supervisor.AgentLLM,
		Description: "General-purpose assistant",
		Enabled:     true,
		Settings:    supervisor.LLMSettings{Model: cfg.LLM.Endpoint, SystemMessage: supervisor.DefaultSystemMessage},
	}}
}

func (c *Container) buildSupervisor(custom map[string]supervisor.Executor) (*supervisor.Supervisor, error) {
	cfg := c.Config
	agents, err := supervisor.AgentsFromConfig(cfg.Agents, supervisor.Defaults{
		Model:                cfg.LLM.Endpoint,
		VectorSearchEndpoint: cfg.VectorSearch.Endpoint,
		GenieMaxRows:         cfg.Genie.MaxRows,
	})
	if err != nil {
		return nil, err
	}
	if len(agents) == 0 {
		agents = defaultAgents(cfg)
	}

	deps := executor.Deps{Models: c.Models, Logger: logging.NewComponentLogger("executor")}
	if c.Genie != nil {
		deps.Genie = c.Genie
	}
	if c.Indexes != nil {
		deps.Indexes = c.Indexes
	}
	opts := []supervisor.RegistryOption{supervisor.WithTypeExecutors(executor.Defaults(deps))}
	for name, ex := range custom {
		opts = append(opts, supervisor.WithExecutor(name, ex))
	}
	reg, err := supervisor.NewRegistry(agents, cfg.Supervisor.DefaultAgent, opts...)
	if err != nil {
		return nil, err
	}

	strategy := supervisor.RoutingStrategy(cfg.Supervisor.RoutingStrategy)
	var routerModel llm.Client
	if strategy == supervisor.StrategyLLM {
		name := cfg.Supervisor.RouterModel
		if name == "" {
			name = cfg.LLM.Endpoint
		}
		if routerModel, err = c.Models.Get(name); err != nil {
			return nil, fmt.Errorf("router model: %w", err)
		}
	}
	logger := logging.NewComponentLogger("supervisor")
	router, err := supervisor.NewRouter(strategy, routerModel, logger)
	if err != nil {
		return nil, err
	}

	return supervisor.New(supervisor.Config{
		Registry:       reg,
		Router:         router,
		EnableFallback: cfg.Supervisor.FallbackEnabled(),
		Metrics:        supervisor.MustNewMetrics(c.Registry),
		Logger:         logger,
	})
}

// Close flushes metrics and traces.
func (c *Container) Close(ctx context.Context) error {
	return errors.Join(c.Metrics.Shutdown(ctx), c.tracer.Shutdown(ctx))
}
