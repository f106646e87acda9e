package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"dbxagent/internal/logging"
	"dbxagent/internal/observability"
)

// UsageRecorder receives one record per completion.
type UsageRecorder interface {
	RecordLLMRequest(ctx context.Context, model, status string, latency time.Duration, inputTokens, outputTokens int)
}

type instrumentedClient struct {
	underlying Client
	recorder   UsageRecorder
	logger     logging.Logger
}

// Instrument records latency, status and token usage of client calls and
// wraps each call in a span.
func Instrument(client Client, recorder UsageRecorder, logger logging.Logger) Client {
	return &instrumentedClient{underlying: client, recorder: recorder, logger: logging.OrNop(logger)}
}

func (c *instrumentedClient) Complete(ctx context.Context, req CompletionRequest) (resp *CompletionResponse, err error) {
	ctx, span := observability.StartSpan(ctx, observability.SpanLLMComplete,
		attribute.String(observability.AttrModel, c.underlying.Model()))
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()
	resp, err = c.underlying.Complete(ctx, req)
	elapsed := time.Since(start)

	status := "success"
	var usage TokenUsage
	if err != nil {
		status = "error"
	} else {
		usage = resp.Usage
	}
	if c.recorder != nil {
		c.recorder.RecordLLMRequest(ctx, c.underlying.Model(), status, elapsed, usage.PromptTokens, usage.CompletionTokens)
	}
	logging.FromContext(ctx, c.logger).Debug("model=%s status=%s latency=%v tokens=%d",
		c.underlying.Model(), status, elapsed.Round(time.Millisecond), usage.TotalTokens)
	return resp, err
}

func (c *instrumentedClient) Model() string {
	return c.underlying.Model()
}
