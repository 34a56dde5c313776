package source

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/ahrav/imgverdict/internal/domain"
)

// retrySource retries transient failures with exponential backoff.
// Only errors classified as retryable are retried; a bad key or a
// malformed payload fails immediately.
type retrySource struct {
	next       CoreSource
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// RetryMiddleware creates middleware that retries retryable failures with
// exponential backoff and jitter.
func RetryMiddleware(maxRetries int, baseDelay, maxDelay time.Duration) Middleware {
	return func(next CoreSource) CoreSource {
		return &retrySource{
			next:       next,
			maxRetries: maxRetries,
			baseDelay:  baseDelay,
			maxDelay:   maxDelay,
		}
	}
}

// Score executes the request with retry logic.
func (r *retrySource) Score(ctx context.Context, img domain.Image) (float64, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		score, err := r.next.Score(ctx, img)
		if err == nil {
			return score, nil
		}

		lastErr = err

		if errors.Is(err, ErrCircuitOpen) || ctx.Err() != nil || !isRetryable(err) {
			return 0, err
		}

		if attempt == r.maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(r.calculateDelay(attempt)):
		}
	}

	return 0, fmt.Errorf("request failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

func (r *retrySource) calculateDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	// #nosec G115 - attempt is bounded between 0 and 30
	multiplier := 1 << uint(attempt)
	delay := time.Duration(float64(r.baseDelay) * float64(multiplier))

	// Add jitter (±25%)
	// #nosec G404 - Using weak RNG is acceptable for jitter calculation
	jitter := time.Duration(rand.Float64() * float64(delay) * 0.5)
	delay = delay + jitter - (delay / 4)

	if delay > r.maxDelay {
		delay = r.maxDelay
	}

	return delay
}

// Name returns the source name from the wrapped implementation.
func (r *retrySource) Name() string { return r.next.Name() }

// Provider returns the provider type from the wrapped implementation.
func (r *retrySource) Provider() string { return r.next.Provider() }
