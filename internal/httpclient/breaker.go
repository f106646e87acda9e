package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	dbxerrors "dbxagent/internal/errors"
	"dbxagent/internal/logging"
)

type circuitBreakerRoundTripper struct {
	base    http.RoundTripper
	breaker *dbxerrors.CircuitBreaker
}

func breakerConfig(logger logging.Logger) dbxerrors.CircuitBreakerConfig {
	cfg := dbxerrors.DefaultCircuitBreakerConfig()
	cfg.Logger = logging.OrNop(logger)
	return cfg
}

// WrapTransportWithCircuitBreaker guards base with a circuit breaker. Only
// server errors, throttling and transport failures count against the circuit.
func WrapTransportWithCircuitBreaker(base http.RoundTripper, name string, config dbxerrors.CircuitBreakerConfig) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	if name == "" {
		name = "http-client"
	}
	return &circuitBreakerRoundTripper{
		base:    base,
		breaker: dbxerrors.NewCircuitBreaker(name, config),
	}
}

func (t *circuitBreakerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if err := t.breaker.Allow(); err != nil {
		return nil, err
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			t.breaker.Mark(nil)
			return nil, err
		}
		t.breaker.Mark(err)
		return nil, err
	}
	if isBreakerFailureStatus(resp.StatusCode) {
		t.breaker.Mark(fmt.Errorf("http status %d", resp.StatusCode))
	} else {
		t.breaker.Mark(nil)
	}
	return resp, nil
}

func isBreakerFailureStatus(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}
