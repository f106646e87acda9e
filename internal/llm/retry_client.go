package llm

import (
	"context"
	"time"

	dbxerrors "dbxagent/internal/errors"
	"dbxagent/internal/logging"
)

// retryClient wraps a client with retries and a circuit breaker.
type retryClient struct {
	underlying     Client
	retryConfig    dbxerrors.RetryConfig
	circuitBreaker *dbxerrors.CircuitBreaker
	logger         logging.Logger
}

// NewRetryClient retries transient failures of client and stops calling it
// while breaker is open.
func NewRetryClient(client Client, retryConfig dbxerrors.RetryConfig, breaker *dbxerrors.CircuitBreaker, logger logging.Logger) Client {
	if breaker == nil {
		breaker = dbxerrors.NewCircuitBreaker(client.Model(), dbxerrors.CircuitBreakerConfig{Logger: logger})
	}
	return &retryClient{
		underlying:     client,
		retryConfig:    retryConfig,
		circuitBreaker: breaker,
		logger:         logging.OrNop(logger),
	}
}

func (c *retryClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()
	logger := logging.FromContext(ctx, c.logger)

	resp, err := dbxerrors.RetryWithResult(ctx, c.retryConfig, func(ctx context.Context) (*CompletionResponse, error) {
		return dbxerrors.ExecuteFunc(c.circuitBreaker, ctx, func(ctx context.Context) (*CompletionResponse, error) {
			response, err := c.underlying.Complete(ctx, req)
			if err != nil {
				return nil, classify(err)
			}
			return response, nil
		})
	}, logger)
	if err != nil {
		logger.Warn("model %s request failed after %v: %v", c.underlying.Model(), time.Since(start).Round(time.Millisecond), err)
		return nil, err
	}
	return resp, nil
}

func (c *retryClient) Model() string {
	return c.underlying.Model()
}
