package source

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ahrav/imgverdict/internal/domain"
)

// rateLimitedSource paces requests with a token bucket so a large batch
// stays under the vendor's quota.
type rateLimitedSource struct {
	next    CoreSource
	limiter *rate.Limiter
}

// RateLimitMiddleware creates middleware that enforces rate limiting using
// a token bucket. The limit is requests per second; burst allows short
// spikes above it. The limiter is shared by every client the returned
// middleware wraps.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	limiter := rate.NewLimiter(limit, burst)

	return func(next CoreSource) CoreSource {
		return &rateLimitedSource{
			next:    next,
			limiter: limiter,
		}
	}
}

// Score waits for rate limit permission before forwarding the request.
func (r *rateLimitedSource) Score(ctx context.Context, img domain.Image) (float64, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Score(ctx, img)
}

// Name returns the source name from the wrapped implementation.
func (r *rateLimitedSource) Name() string { return r.next.Name() }

// Provider returns the provider type from the wrapped implementation.
func (r *rateLimitedSource) Provider() string { return r.next.Provider() }
