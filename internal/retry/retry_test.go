package retry

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	return cfg
}

func TestDo_SucceedsAfterRetryableErrors(t *testing.T) {
	calls := 0
	var waits []time.Duration
	cfg := fastConfig()
	cfg.OnRetry = func(_ int, backoff time.Duration, _ error) { waits = append(waits, backoff) }

	attempts, err := Do(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return NewHTTPError(http.StatusServiceUnavailable, "", "busy")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, waits)
}

func TestDo_NonRetryableReturnsImmediately(t *testing.T) {
	calls := 0
	attempts, err := Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return NewHTTPError(http.StatusUnauthorized, "", "bad key")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)

	var httpErr HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusUnauthorized, httpErr.StatusCode)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	sentinel := errors.New("connection reset")

	attempts, err := Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return sentinel
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestDo_Permanent(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(), func(context.Context) error {
		calls++
		return Permanent(errors.New("schema rejected"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cfg.OnRetry = func(int, time.Duration, error) { cancel() }

	_, err := Do(ctx, cfg, func(context.Context) error {
		return errors.New("temporary")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		attempt  int
		want     time.Duration
	}{
		{"exponential first", Exponential, 0, 2 * time.Second},
		{"exponential second", Exponential, 1, 4 * time.Second},
		{"exponential third", Exponential, 2, 8 * time.Second},
		{"exponential capped", Exponential, 10, 30 * time.Second},
		{"linear first", Linear, 0, 2 * time.Second},
		{"linear second", Linear, 1, 4 * time.Second},
		{"linear third", Linear, 2, 6 * time.Second},
		{"linear capped", Linear, 40, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Strategy = tt.strategy
			assert.Equal(t, tt.want, Backoff(tt.attempt, cfg))
		})
	}
}

func TestRetryable(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, Retryable(NewHTTPError(429, "", ""), cfg))
	assert.True(t, Retryable(NewHTTPError(502, "", ""), cfg))
	assert.False(t, Retryable(NewHTTPError(404, "", ""), cfg))
	assert.False(t, Retryable(NewHTTPError(400, "", ""), cfg))
	assert.True(t, Retryable(context.DeadlineExceeded, cfg))
	assert.False(t, Retryable(context.Canceled, cfg))
	assert.False(t, Retryable(nil, cfg))
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, Exponential, s)

	s, err = ParseStrategy("linear")
	require.NoError(t, err)
	assert.Equal(t, Linear, s)

	_, err = ParseStrategy("fibonacci")
	assert.Error(t, err)
}
