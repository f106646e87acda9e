package observability

import (
	"context"
	"fmt"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsConfig configures the metrics collector.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// MetricsCollector records model, query-service and vector-search metrics.
// A nil or disabled collector ignores every call.
type MetricsCollector struct {
	provider *sdkmetric.MeterProvider

	llmRequests     metric.Int64Counter
	llmTokensInput  metric.Int64Counter
	llmTokensOutput metric.Int64Counter
	llmLatency      metric.Float64Histogram

	geniePolls    metric.Int64Counter
	genieWait     metric.Float64Histogram
	vectorQueries metric.Int64Counter
	vectorLatency metric.Float64Histogram
}

// NewMetricsCollector creates a collector exporting through reg. A nil reg
// uses the prometheus default registerer.
func NewMetricsCollector(config MetricsConfig, reg promclient.Registerer) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	var opts []prometheus.Option
	if reg != nil {
		opts = append(opts, prometheus.WithRegisterer(reg))
	}
	exporter, err := prometheus.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("dbxagent")
	c := &MetricsCollector{provider: provider}

	if c.llmRequests, err = meter.Int64Counter(
		"dbxagent.llm.requests",
		metric.WithDescription("Total number of model completion requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm requests counter: %w", err)
	}
	if c.llmTokensInput, err = meter.Int64Counter(
		"dbxagent.llm.tokens.input",
		metric.WithDescription("Prompt tokens sent to models"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm input tokens counter: %w", err)
	}
	if c.llmTokensOutput, err = meter.Int64Counter(
		"dbxagent.llm.tokens.output",
		metric.WithDescription("Completion tokens returned by models"),
		metric.WithUnit("{token}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm output tokens counter: %w", err)
	}
	if c.llmLatency, err = meter.Float64Histogram(
		"dbxagent.llm.latency",
		metric.WithDescription("Model request latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create llm latency histogram: %w", err)
	}
	if c.geniePolls, err = meter.Int64Counter(
		"dbxagent.genie.polls",
		metric.WithDescription("Message status polls against the query service"),
		metric.WithUnit("{poll}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create genie polls counter: %w", err)
	}
	if c.genieWait, err = meter.Float64Histogram(
		"dbxagent.genie.wait",
		metric.WithDescription("Time spent waiting for a query to reach a terminal status"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create genie wait histogram: %w", err)
	}
	if c.vectorQueries, err = meter.Int64Counter(
		"dbxagent.vectorsearch.queries",
		metric.WithDescription("Similarity searches issued"),
		metric.WithUnit("{query}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create vector search counter: %w", err)
	}
	if c.vectorLatency, err = meter.Float64Histogram(
		"dbxagent.vectorsearch.latency",
		metric.WithDescription("Similarity search latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create vector search histogram: %w", err)
	}

	return c, nil
}

// Shutdown flushes and stops the meter provider.
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

// RecordLLMRequest records one model completion.
func (m *MetricsCollector) RecordLLMRequest(ctx context.Context, model, status string, latency time.Duration, inputTokens, outputTokens int) {
	if m == nil || m.llmRequests == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("model", model), attribute.String("status", status))
	m.llmRequests.Add(ctx, 1, attrs)
	m.llmLatency.Record(ctx, latency.Seconds(), attrs)
	modelAttr := metric.WithAttributes(attribute.String("model", model))
	m.llmTokensInput.Add(ctx, int64(inputTokens), modelAttr)
	m.llmTokensOutput.Add(ctx, int64(outputTokens), modelAttr)
}

// RecordGeniePoll records one message status observation.
func (m *MetricsCollector) RecordGeniePoll(ctx context.Context, spaceID, status string) {
	if m == nil || m.geniePolls == nil {
		return
	}
	m.geniePolls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("space_id", spaceID),
		attribute.String("status", status),
	))
}

// RecordGenieWait records how a completion wait ended and how long it took.
func (m *MetricsCollector) RecordGenieWait(ctx context.Context, spaceID, outcome string, elapsed time.Duration) {
	if m == nil || m.genieWait == nil {
		return
	}
	m.genieWait.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String("space_id", spaceID),
		attribute.String("outcome", outcome),
	))
}

// RecordVectorSearch records one similarity search.
func (m *MetricsCollector) RecordVectorSearch(ctx context.Context, index, status string, latency time.Duration) {
	if m == nil || m.vectorQueries == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("index", index), attribute.String("status", status))
	m.vectorQueries.Add(ctx, 1, attrs)
	m.vectorLatency.Record(ctx, latency.Seconds(), attrs)
}
