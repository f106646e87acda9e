// Package httpclient builds the outbound HTTP clients used to reach workspace
// REST APIs and model serving endpoints.
package httpclient

import (
	"net/http"
	"time"

	"dbxagent/internal/logging"
)

// DefaultTimeout bounds a single outbound request.
const DefaultTimeout = 30 * time.Second

// UserAgent is sent on every outbound request.
const UserAgent = "dbxagent/1.0"

// Options configures New.
type Options struct {
	Timeout time.Duration
	// Token is sent as a Bearer credential when non-empty.
	Token string
	// Breaker names a circuit breaker guarding the transport; empty disables it.
	Breaker string
	Logger  logging.Logger
}

// New returns an http.Client with a cloned default transport, bearer
// authentication and an optional circuit breaker.
func New(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var transport http.RoundTripper = Transport()
	if opts.Breaker != "" {
		transport = WrapTransportWithCircuitBreaker(transport, opts.Breaker, breakerConfig(opts.Logger))
	}
	transport = &authRoundTripper{base: transport, token: opts.Token}

	return &http.Client{Timeout: timeout, Transport: transport}
}

// Transport returns a clone of http.DefaultTransport that honours proxy
// environment variables.
func Transport() *http.Transport {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Transport{Proxy: http.ProxyFromEnvironment}
	}
	return base.Clone()
}

type authRoundTripper struct {
	base  http.RoundTripper
	token string
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not mutate the caller's request.
	clone := req.Clone(req.Context())
	if t.token != "" && clone.Header.Get("Authorization") == "" {
		clone.Header.Set("Authorization", "Bearer "+t.token)
	}
	if clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", UserAgent)
	}
	if logID := logging.LogIDFromContext(req.Context()); logID != "" && clone.Header.Get("X-Request-ID") == "" {
		clone.Header.Set("X-Request-ID", logID)
	}
	return t.base.RoundTrip(clone)
}
