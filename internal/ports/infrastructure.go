package ports

import (
	"context"
	"io"
	"time"

	"github.com/ahrav/imgverdict/internal/domain"
)

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus or OpenTelemetry.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like source failures or verdicts.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric.
	// This is useful for tracking values like source availability.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions like composite scores.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// Presenter renders the result of a batch. Presenters are pure consumers:
// they never change verdicts or statistics.
type Presenter interface {
	// Present writes result to w in the presenter's format.
	Present(w io.Writer, result domain.BatchResult) error
}

// BatchObserver receives lifecycle events of a batch run. ImageScored and
// ImageRejected are called from concurrent image workers, so
// implementations must be safe for concurrent use.
type BatchObserver interface {
	// BatchStarted is called before any image is processed. The returned
	// context is used for the rest of the run.
	BatchStarted(ctx context.Context, runID string, images int) context.Context

	// ImageScored is called once per aggregated image.
	ImageScored(ctx context.Context, verdict domain.Verdict, elapsed time.Duration)

	// ImageRejected is called once per image that failed validation.
	ImageRejected(ctx context.Context, imgErr domain.ImageError)

	// BatchFinished is called after every image has been joined.
	BatchFinished(ctx context.Context, result domain.BatchResult)
}
