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

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryWithResultRetriesTransient(t *testing.T) {
	calls := 0
	got, err := RetryWithResult(context.Background(), fastRetry(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", NewTransientError(errors.New("busy"), "")
		}
		return "ok", nil
	}, logging.Nop())

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	perm := NewPermanentError(errors.New("bad request"), "")
	_, err := RetryWithResult(context.Background(), fastRetry(), func(context.Context) (int, error) {
		calls++
		return 0, perm
	}, nil)

	assert.Same(t, perm, err)
	assert.Equal(t, 1, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetry(), func(context.Context) (int, error) {
		calls++
		return 0, NewTransientError(errors.New("busy"), "")
	}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.Equal(t, 4, calls)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RetryWithResult(ctx, fastRetry(), func(context.Context) (int, error) {
		t.Fatal("fn must not run on a cancelled context")
		return 0, nil
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateBackoffCapsAtMax(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	assert.Equal(t, time.Second, calculateBackoff(0, cfg))
	assert.Equal(t, 2*time.Second, calculateBackoff(1, cfg))
	assert.Equal(t, 3*time.Second, calculateBackoff(5, cfg))
}

func TestRetryDelayUsesRetryAfterHint(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Millisecond, MaxDelay: 10 * time.Second}
	err := &TransientError{Err: errors.New("slow down"), RetryAfter: 2}
	assert.Equal(t, 2*time.Second, retryDelay(err, 0, cfg))
}
