package ports

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestSourceError tests the functionality of the SourceError error type.
// It covers error creation, message formatting, and retryable logic.
func TestSourceError(t *testing.T) {
	t.Run("basic error", func(t *testing.T) {
		err := NewSourceError("google", "Score", ErrInvalidResponse)

		assert.Equal(t, "source error: source=google, operation=Score, err=invalid response", err.Error())
		assert.Equal(t, "google", err.Source)
		assert.Equal(t, "Score", err.Operation)
		assert.True(t, errors.Is(err, ErrInvalidResponse))
	})

	t.Run("with retry after", func(t *testing.T) {
		retryAfter := 30 * time.Second
		err := &SourceError{
			Source:     "deepai",
			Operation:  "Score",
			Err:        ErrRateLimited,
			RetryAfter: &retryAfter,
		}

		assert.Contains(t, err.Error(), "retry_after=30s")
	})

	t.Run("retryable errors", func(t *testing.T) {
		retryableErrors := []error{
			ErrRateLimited,
			ErrServiceUnavailable,
			ErrTimeout,
		}

		for _, baseErr := range retryableErrors {
			err := NewSourceError("test-source", "Score", baseErr)
			assert.True(t, err.IsRetryable(), "%v should be retryable", baseErr)
		}

		nonRetryableErrors := []error{
			ErrNoSignal,
			ErrInvalidResponse,
			ErrAuthenticationFailed,
		}

		for _, baseErr := range nonRetryableErrors {
			err := NewSourceError("test-source", "Score", baseErr)
			assert.False(t, err.IsRetryable(), "%v should not be retryable", baseErr)
		}
	})
}

// TestMetricsError tests the functionality of the MetricsError error type.
func TestMetricsError(t *testing.T) {
	err := NewMetricsError("source_latency", "RecordHistogram", errors.New("connection refused"))

	assert.Equal(t, "metrics error: operation=RecordHistogram, metric=source_latency, err=connection refused", err.Error())
	assert.Equal(t, "source_latency", err.Metric)
	assert.Equal(t, "RecordHistogram", err.Operation)
}

// TestConfigError tests the functionality of the ConfigError error type.
func TestConfigError(t *testing.T) {
	err := NewConfigError("sources.google.api_key_env", ErrConfigNotFound)

	assert.Equal(t, "config error: key=sources.google.api_key_env, err=configuration not found", err.Error())
	assert.Equal(t, "sources.google.api_key_env", err.ConfigKey)
	assert.True(t, errors.Is(err, ErrConfigNotFound))
}

// TestCommonInfrastructureErrors checks that each error has the expected
// error message.
func TestCommonInfrastructureErrors(t *testing.T) {
	tests := []struct {
		err     error
		message string
	}{
		{ErrRateLimited, "rate limited"},
		{ErrServiceUnavailable, "service unavailable"},
		{ErrTimeout, "operation timed out"},
		{ErrInvalidResponse, "invalid response"},
		{ErrAuthenticationFailed, "authentication failed"},
		{ErrNoSignal, "no usable signal"},
		{ErrConfigNotFound, "configuration not found"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.message, tt.err.Error())
		})
	}
}

// TestErrorUnwrapping tests that all custom error types in the package
// support unwrapping.
func TestErrorUnwrapping(t *testing.T) {
	baseErr := errors.New("underlying error")

	errorList := []interface {
		error
		Unwrap() error
	}{
		NewSourceError("source", "op", baseErr),
		NewMetricsError("metric", "op", baseErr),
		NewConfigError("key", baseErr),
	}

	for _, err := range errorList {
		unwrapped := err.Unwrap()
		assert.Equal(t, baseErr, unwrapped, "%T should unwrap to base error", err)
		assert.True(t, errors.Is(err, baseErr), "%T should match base error with Is", err)
	}
}
