package source

import (
	"context"
	"errors"
	"time"

	"github.com/ahrav/imgverdict/internal/domain"
	"github.com/ahrav/imgverdict/internal/ports"
)

// metricsSource records request counts and latency per source.
type metricsSource struct {
	next      CoreSource
	collector ports.MetricsCollector
}

// MetricsMiddleware creates middleware that collects request metrics.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next CoreSource) CoreSource {
		return &metricsSource{
			next:      next,
			collector: collector,
		}
	}
}

// Score executes the request while collecting metrics.
func (m *metricsSource) Score(ctx context.Context, img domain.Image) (float64, error) {
	start := time.Now()
	score, err := m.next.Score(ctx, img)

	if m.collector == nil {
		return score, err
	}

	labels := map[string]string{
		"source":   m.next.Name(),
		"provider": m.next.Provider(),
		"status":   requestStatus(ctx, err),
	}
	m.collector.RecordHistogram("source_latency_seconds", time.Since(start).Seconds(), labels)
	m.collector.RecordCounter("source_requests_total", 1, labels)

	return score, err
}

// requestStatus maps a request outcome to a bounded label value.
func requestStatus(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, ports.ErrNoSignal):
		return "no_signal"
	case errors.Is(err, ports.ErrTimeout), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ports.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ports.ErrAuthenticationFailed):
		return "auth_failed"
	default:
		return "error"
	}
}

// Name returns the source name from the wrapped implementation.
func (m *metricsSource) Name() string { return m.next.Name() }

// Provider returns the provider type from the wrapped implementation.
func (m *metricsSource) Provider() string { return m.next.Provider() }
