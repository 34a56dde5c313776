package middleware

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/imgverdict/internal/domain"
	"github.com/ahrav/imgverdict/internal/ports"
)

const observerTracerName = "github.com/ahrav/imgverdict/infrastructure/middleware"

var _ ports.BatchObserver = (*OTelBatchObserver)(nil)

// OTelBatchObserver implements observability for batch runs using
// OpenTelemetry tracing. It opens one span per run, records an event per
// image and reports verdict and availability metrics to a collector.
// It holds no per-run state, so one observer can serve concurrent runs.
type OTelBatchObserver struct {
	metrics ports.MetricsCollector
	tracer  trace.Tracer
}

// NewOTelBatchObserver creates an observer using the global tracer
// provider. metrics may be nil.
func NewOTelBatchObserver(metrics ports.MetricsCollector) *OTelBatchObserver {
	return NewOTelBatchObserverWithTracer(metrics, otel.Tracer(observerTracerName))
}

// NewOTelBatchObserverWithTracer is NewOTelBatchObserver with an explicit tracer.
func NewOTelBatchObserverWithTracer(metrics ports.MetricsCollector, tracer trace.Tracer) *OTelBatchObserver {
	return &OTelBatchObserver{metrics: metrics, tracer: tracer}
}

// BatchStarted implements the BatchObserver interface. It starts the run
// span and returns a context carrying it.
func (o *OTelBatchObserver) BatchStarted(ctx context.Context, runID string, images int) context.Context {
	ctx, _ = o.tracer.Start(ctx, "BatchProcessor.ProcessBatch", trace.WithAttributes(
		attribute.String("batch.run_id", runID),
		attribute.Int("batch.images", images),
	))
	return ctx
}

// ImageScored implements the BatchObserver interface.
func (o *OTelBatchObserver) ImageScored(ctx context.Context, verdict domain.Verdict, elapsed time.Duration) {
	trace.SpanFromContext(ctx).AddEvent("image.scored", trace.WithAttributes(
		attribute.String("image.file", verdict.File),
		attribute.String("verdict.probability", verdict.Probability),
		attribute.Bool("verdict.is_ai", verdict.IsAI),
		attribute.Int("verdict.valid_sources", verdict.ValidAPICount),
		attribute.Int("verdict.total_sources", verdict.TotalAPICount),
	))

	if o.metrics == nil {
		return
	}
	o.metrics.RecordCounter("verdicts_total", 1, map[string]string{"outcome": verdictOutcome(verdict)})
	if !verdict.NoData {
		o.metrics.RecordHistogram("verdict_composite", verdict.Composite, nil)
	}
	o.metrics.RecordLatency("image_scoring", elapsed, nil)
}

// ImageRejected implements the BatchObserver interface.
func (o *OTelBatchObserver) ImageRejected(ctx context.Context, imgErr domain.ImageError) {
	reason := rejectionReason(imgErr.Err)
	trace.SpanFromContext(ctx).AddEvent("image.rejected", trace.WithAttributes(
		attribute.String("image.file", imgErr.File),
		attribute.String("image.reason", reason),
	))

	if o.metrics != nil {
		o.metrics.RecordCounter("image_errors_total", 1, map[string]string{"reason": reason})
	}
}

// BatchFinished implements the BatchObserver interface. It finalizes the
// run span and publishes per-source availability.
func (o *OTelBatchObserver) BatchFinished(ctx context.Context, result domain.BatchResult) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	span.SetAttributes(
		attribute.Int("batch.verdicts", len(result.Verdicts)),
		attribute.Int("batch.errors", len(result.Errors)),
		attribute.Int("batch.ai_count", result.AICount()),
		attribute.Int("batch.duplicate_groups", len(result.Duplicates)),
		attribute.Int64("batch.duration_ms", result.Duration.Milliseconds()),
	)

	for _, name := range result.Stats.SourceNames() {
		tally := result.Stats.Sources[name]
		span.SetAttributes(
			attribute.Int("source."+name+".ok", tally.OK),
			attribute.Int("source."+name+".failed", tally.Failed),
		)
		if o.metrics != nil {
			o.metrics.RecordGauge("source_availability", tally.Availability(), map[string]string{"source": name})
		}
	}

	if outages := result.Stats.Outages(); len(outages) > 0 {
		span.AddEvent("sources.outage", trace.WithAttributes(
			attribute.StringSlice("sources", outages),
		))
	}

	if o.metrics != nil {
		o.metrics.RecordLatency("batch", result.Duration, nil)
		o.metrics.RecordGauge("batch_images", float64(len(result.Verdicts)+len(result.Errors)), nil)
	}

	if len(result.Verdicts) == 0 && len(result.Errors) > 0 {
		span.SetStatus(codes.Error, strconv.Itoa(len(result.Errors))+" images rejected, none scored")
		return
	}
	span.SetStatus(codes.Ok, "batch completed")
}

// verdictOutcome maps a verdict to a bounded label value.
func verdictOutcome(v domain.Verdict) string {
	switch {
	case v.NoData:
		return "no_data"
	case v.IsAI:
		return "ai"
	default:
		return "not_ai"
	}
}

// rejectionReason maps an image error to a bounded label value.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrUnsupportedType):
		return "unsupported_type"
	case errors.Is(err, domain.ErrFileTooLarge):
		return "too_large"
	case errors.Is(err, domain.ErrEmptyImage):
		return "empty"
	case errors.Is(err, domain.ErrProcessingFailed):
		return "processing_failed"
	default:
		return "other"
	}
}
