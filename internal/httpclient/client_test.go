package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbxerrors "dbxagent/internal/errors"
	"dbxagent/internal/logging"
)

func TestNewSetsAuthHeaders(t *testing.T) {
	var gotAuth, gotUA, gotReqID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUA = r.Header.Get("User-Agent")
		gotReqID = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := New(Options{Token: "secret", Logger: logging.Nop()})
	ctx := logging.ContextWithLogID(context.Background(), "abc123")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, UserAgent, gotUA)
	assert.Equal(t, "abc123", gotReqID)
	assert.Empty(t, req.Header.Get("Authorization"), "caller request must not be mutated")
}

func TestCircuitBreakerTransportOpensOnServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := dbxerrors.CircuitBreakerConfig{FailureThreshold: 2, Logger: logging.Nop()}
	client := &http.Client{Transport: WrapTransportWithCircuitBreaker(Transport(), "workspace", cfg)}

	for i := 0; i < 2; i++ {
		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}

	_, err := client.Get(srv.URL)
	require.Error(t, err)
	assert.True(t, dbxerrors.IsDegraded(err))
	assert.Equal(t, 2, calls)
}

func TestCircuitBreakerTransportIgnoresClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := New(Options{Breaker: "workspace", Logger: logging.Nop()})
	for i := 0; i < 8; i++ {
		resp, err := client.Get(srv.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}
}
