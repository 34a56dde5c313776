package source

import (
	"context"
	"time"

	"github.com/ahrav/imgverdict/internal/domain"
)

// timeoutSource bounds every call so a hung vendor cannot stall an image.
type timeoutSource struct {
	next    CoreSource
	timeout time.Duration
}

// TimeoutMiddleware creates middleware that enforces request timeouts.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next CoreSource) CoreSource {
		return &timeoutSource{
			next:    next,
			timeout: timeout,
		}
	}
}

// Score executes the request with a timeout context.
func (t *timeoutSource) Score(ctx context.Context, img domain.Image) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Score(ctx, img)
}

// Name returns the source name from the wrapped implementation.
func (t *timeoutSource) Name() string { return t.next.Name() }

// Provider returns the provider type from the wrapped implementation.
func (t *timeoutSource) Provider() string { return t.next.Provider() }
