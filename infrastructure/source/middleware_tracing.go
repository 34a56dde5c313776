package source

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/imgverdict/internal/domain"
)

const tracerName = "github.com/ahrav/imgverdict/infrastructure/source"

// tracedSource wraps every request in an OpenTelemetry span.
type tracedSource struct {
	next        CoreSource
	serviceName string
	tracer      trace.Tracer
}

// TracingMiddleware creates middleware that adds a span per request using
// the global tracer provider.
func TracingMiddleware(serviceName string) Middleware {
	return TracingMiddlewareWithTracer(serviceName, otel.Tracer(tracerName))
}

// TracingMiddlewareWithTracer is TracingMiddleware with an explicit tracer.
func TracingMiddlewareWithTracer(serviceName string, tracer trace.Tracer) Middleware {
	return func(next CoreSource) CoreSource {
		return &tracedSource{
			next:        next,
			serviceName: serviceName,
			tracer:      tracer,
		}
	}
}

// Score executes the request within a span.
func (t *tracedSource) Score(ctx context.Context, img domain.Image) (float64, error) {
	ctx, span := t.tracer.Start(ctx, "source.score",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("service.name", t.serviceName),
			attribute.String("source.name", t.next.Name()),
			attribute.String("source.provider", t.next.Provider()),
			attribute.String("image.name", img.Name),
			attribute.Int64("image.bytes", img.Size()),
		),
	)
	defer span.End()

	score, err := t.next.Score(ctx, img)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return score, err
	}

	span.SetAttributes(attribute.Float64("source.score", score))
	span.SetStatus(codes.Ok, "")
	return score, nil
}

// Name returns the source name from the wrapped implementation.
func (t *tracedSource) Name() string { return t.next.Name() }

// Provider returns the provider type from the wrapped implementation.
func (t *tracedSource) Provider() string { return t.next.Provider() }
