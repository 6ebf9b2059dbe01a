package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnayoung/go-pair-trader/internal/config"
)

func testErrorConfig() config.ErrorHandlingConfig {
	return config.ErrorHandlingConfig{
		GlobalRetryPolicy: config.RetryPolicyConfig{
			MaxAttempts:     3,
			InitialDelay:    "1ms",
			MaxDelay:        "5ms",
			BackoffStrategy: "fixed",
		},
		ComponentPolicies: make(map[string]config.RetryPolicyConfig),
	}
}

func TestClassify(t *testing.T) {
	c := NewClassifier(testErrorConfig(), nil)

	tests := []struct {
		name          string
		err           error
		wantType      ErrorType
		wantRetryable bool
	}{
		{
			name:          "insufficient capital sentinel",
			err:           fmt.Errorf("trade rejected: %w", ErrInsufficientCapital),
			wantType:      ErrorTypeInsufficientCapital,
			wantRetryable: false,
		},
		{
			name:          "data gap sentinel",
			err:           fmt.Errorf("tick 42: %w", ErrDataGap),
			wantType:      ErrorTypeDataGap,
			wantRetryable: false,
		},
		{
			name:          "deadline exceeded",
			err:           context.DeadlineExceeded,
			wantType:      ErrorTypeTimeout,
			wantRetryable: true,
		},
		{
			// A deadline error also satisfies net.Error; it must still
			// classify as a timeout, not a network failure.
			name:          "wrapped deadline exceeded",
			err:           fmt.Errorf("fetching ticker for ADAUSDT: %w", context.DeadlineExceeded),
			wantType:      ErrorTypeTimeout,
			wantRetryable: true,
		},
		{
			name:          "rate limit",
			err:           errors.New("429 too many requests"),
			wantType:      ErrorTypeRateLimit,
			wantRetryable: true,
		},
		{
			name:          "connection refused",
			err:           errors.New("dial tcp: connection refused"),
			wantType:      ErrorTypeNetwork,
			wantRetryable: true,
		},
		{
			name:          "snapshot write failure",
			err:           errors.New("failed to persist snapshot: disk full"),
			wantType:      ErrorTypePersistence,
			wantRetryable: true,
		},
		{
			name:          "invalid input",
			err:           errors.New("capital must be greater than 0"),
			wantType:      ErrorTypeInput,
			wantRetryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := c.Classify(tt.err, "test", "op")
			require.NotNil(t, classified)
			assert.Equal(t, tt.wantType, classified.Type)
			assert.Equal(t, tt.wantRetryable, classified.Retryable)
		})
	}

	assert.Nil(t, c.Classify(nil, "test", "op"))
}

func TestClassifiedErrorUnwrap(t *testing.T) {
	c := NewClassifier(testErrorConfig(), nil)

	wrapped := fmt.Errorf("applying trade: %w", ErrInsufficientCapital)
	classified := c.Classify(wrapped, "ledger", "apply_trade")

	assert.True(t, errors.Is(classified, ErrInsufficientCapital))
	assert.Equal(t, ErrorTypeInsufficientCapital, GetErrorType(classified))
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	c := NewClassifier(testErrorConfig(), nil)

	calls := 0
	err := c.Retry(context.Background(), "exchange", "fetch", func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	c := NewClassifier(testErrorConfig(), nil)

	calls := 0
	err := c.Retry(context.Background(), "ledger", "apply", func() error {
		calls++
		return ErrInsufficientCapital
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, ErrInsufficientCapital))
}

func TestRetryExhaustsAttempts(t *testing.T) {
	c := NewClassifier(testErrorConfig(), nil)

	calls := 0
	err := c.Retry(context.Background(), "state", "save", func() error {
		calls++
		return errors.New("failed to persist snapshot")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker("exchange", config.CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  "1h",
		HalfOpenRequests: 1,
	})

	boom := errors.New("server error")

	require.Error(t, cb.Call(func() error { return boom }))
	assert.Equal(t, CircuitClosed, cb.GetState())

	require.Error(t, cb.Call(func() error { return boom }))
	assert.Equal(t, CircuitOpen, cb.GetState())

	// Open circuit rejects calls without invoking fn.
	called := false
	err := cb.Call(func() error { called = true; return nil })
	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, ErrorTypeCircuitOpen, GetErrorType(err))
	assert.True(t, IsRetryable(err))
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "low", SeverityLow.String())
	assert.Equal(t, "medium", SeverityMedium.String())
	assert.Equal(t, "high", SeverityHigh.String())
	assert.Equal(t, "critical", SeverityCritical.String())
}
