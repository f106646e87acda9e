package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbxagent/internal/logging"
)

func newTestBreaker(now *time.Time) *CircuitBreaker {
	cb := NewCircuitBreaker("llm", CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
		Logger:           logging.Nop(),
	})
	cb.now = func() time.Time { return *now }
	return cb
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := newTestBreaker(&now)
	boom := errors.New("upstream 503")
	fail := func(context.Context) error { return &TransientError{Err: boom, StatusCode: 503} }

	require.Error(t, cb.Execute(context.Background(), fail))
	require.Equal(t, StateClosed, cb.State())
	require.Error(t, cb.Execute(context.Background(), fail))
	require.Equal(t, StateOpen, cb.State())

	err := cb.Allow()
	require.Error(t, err)
	assert.True(t, IsDegraded(err))

	now = now.Add(2 * time.Minute)
	got, err := ExecuteFunc(cb, context.Background(), func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerIgnoresClientErrors(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := newTestBreaker(&now)

	for i := 0; i < 5; i++ {
		cb.Mark(&PermanentError{Err: errors.New("nope"), StatusCode: 404})
		cb.Mark(context.Canceled)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := newTestBreaker(&now)
	cb.Mark(errors.New("x"))
	cb.Mark(errors.New("x"))
	now = now.Add(2 * time.Minute)

	require.NoError(t, cb.Allow())
	assert.Equal(t, StateHalfOpen, cb.State())
	cb.Mark(errors.New("still down"))
	assert.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerSetReusesBreakers(t *testing.T) {
	set := NewCircuitBreakerSet(CircuitBreakerConfig{Logger: logging.Nop()})
	a := set.Get("model-a")
	assert.Same(t, a, set.Get("model-a"))
	assert.NotSame(t, a, set.Get("model-b"))
	assert.Equal(t, map[string]CircuitState{"model-a": StateClosed, "model-b": StateClosed}, set.States())
}
