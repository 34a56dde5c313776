package source

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/imgverdict/internal/ports"
)

func TestTimeoutMiddleware(t *testing.T) {
	t.Run("cancels slow requests", func(t *testing.T) {
		mock := NewMockCoreSource("mock")
		mock.ResponseDelay = time.Second
		wrapped := TimeoutMiddleware(20 * time.Millisecond)(mock)

		_, err := wrapped.Score(context.Background(), testImage)

		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("passes fast requests", func(t *testing.T) {
		mock := NewMockCoreSource("mock")
		wrapped := TimeoutMiddleware(time.Second)(mock)

		score, err := wrapped.Score(context.Background(), testImage)

		require.NoError(t, err)
		assert.InDelta(t, 0.8, score, 1e-9)
		_, hasDeadline := mock.LastContext.Deadline()
		assert.True(t, hasDeadline, "wrapped call should see a deadline")
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("paces requests beyond the burst", func(t *testing.T) {
		mock := NewMockCoreSource("mock")
		wrapped := RateLimitMiddleware(20, 1)(mock)

		for i := 0; i < 3; i++ {
			_, err := wrapped.Score(context.Background(), testImage)
			require.NoError(t, err)
		}

		gap := mock.GetTimeBetweenCalls(0, 2)
		require.NotNil(t, gap)
		assert.GreaterOrEqual(t, *gap, 80*time.Millisecond, "two tokens at 20/s need ~100ms")
	})

	t.Run("honours context cancellation", func(t *testing.T) {
		mock := NewMockCoreSource("mock")
		wrapped := RateLimitMiddleware(0.1, 1)(mock)

		_, err := wrapped.Score(context.Background(), testImage)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = wrapped.Score(ctx, testImage)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limit")
		assert.Equal(t, 1, mock.GetCallCount())
	})
}

// recordingCollector implements ports.MetricsCollector for assertions.
type recordingCollector struct {
	mu         sync.Mutex
	counters   map[string]float64
	histograms map[string][]float64
	gauges     map[string]float64
	labels     []map[string]string
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{
		counters:   make(map[string]float64),
		histograms: make(map[string][]float64),
		gauges:     make(map[string]float64),
	}
}

func (c *recordingCollector) RecordLatency(name string, d time.Duration, labels map[string]string) {
	c.RecordHistogram(name, d.Seconds(), labels)
}

func (c *recordingCollector) RecordCounter(name string, v float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[name] += v
	c.labels = append(c.labels, labels)
}

func (c *recordingCollector) RecordGauge(name string, v float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[name] = v
}

func (c *recordingCollector) RecordHistogram(name string, v float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.histograms[name] = append(c.histograms[name], v)
}

var _ ports.MetricsCollector = (*recordingCollector)(nil)

func TestMetricsMiddleware(t *testing.T) {
	collector := newRecordingCollector()
	mock := NewMockCoreSource("deepai")
	wrapped := MetricsMiddleware(collector)(mock)

	_, err := wrapped.Score(context.Background(), testImage)
	require.NoError(t, err)

	mock.Error = (&ErrorClassifier{Provider: "mock"}).NoSignal("default")
	_, err = wrapped.Score(context.Background(), testImage)
	require.Error(t, err)

	assert.Equal(t, 2.0, collector.counters["source_requests_total"])
	assert.Len(t, collector.histograms["source_latency_seconds"], 2)
	require.Len(t, collector.labels, 2)
	assert.Equal(t, "success", collector.labels[0]["status"])
	assert.Equal(t, "no_signal", collector.labels[1]["status"])
	assert.Equal(t, "deepai", collector.labels[0]["source"])
}

func TestMetricsMiddleware_NilCollector(t *testing.T) {
	wrapped := MetricsMiddleware(nil)(NewMockCoreSource("mock"))
	score, err := wrapped.Score(context.Background(), testImage)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, score, 1e-9)
}

func TestRequestStatus(t *testing.T) {
	ec := &ErrorClassifier{Provider: "mock"}
	expired, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()

	tests := []struct {
		name string
		ctx  context.Context
		err  error
		want string
	}{
		{"success", context.Background(), nil, "success"},
		{"circuit open", context.Background(), ErrCircuitOpen, "circuit_open"},
		{"no signal", context.Background(), ec.NoSignal("x"), "no_signal"},
		{"timeout error", context.Background(), ec.ClassifyContextError(context.DeadlineExceeded), "timeout"},
		{"expired context", expired, errors.New("anything"), "timeout"},
		{"rate limited", context.Background(), ec.ClassifyHTTPError(429, "", nil), "rate_limited"},
		{"auth", context.Background(), ec.ClassifyHTTPError(401, "", nil), "auth_failed"},
		{"other", context.Background(), errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, requestStatus(tt.ctx, tt.err))
		})
	}
}

func TestCollectorBreakerMetrics(t *testing.T) {
	collector := newRecordingCollector()
	m := NewCollectorBreakerMetrics(collector, "google")

	m.RecordState(StateOpen)
	m.RecordTrip()
	m.RecordSuccess()
	m.RecordFailure()

	assert.Equal(t, float64(StateOpen), collector.gauges["source_circuit_state"])
	assert.Equal(t, 1.0, collector.counters["source_circuit_rejections_total"])
	assert.Equal(t, 1.0, collector.counters["source_circuit_successes_total"])
	assert.Equal(t, 1.0, collector.counters["source_circuit_failures_total"])
}

// recordingTracer captures the spans started through it.
type recordingTracer struct {
	noop.Tracer
	mu    sync.Mutex
	spans []*recordingSpan
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	span := &recordingSpan{name: name, attrs: cfg.Attributes(), kind: cfg.SpanKind()}
	t.mu.Lock()
	t.spans = append(t.spans, span)
	t.mu.Unlock()
	return trace.ContextWithSpan(ctx, span), span
}

type recordingSpan struct {
	noop.Span
	name   string
	kind   trace.SpanKind
	attrs  []attribute.KeyValue
	errs   []error
	status codes.Code
	ended  bool
}

func (s *recordingSpan) SetAttributes(kv ...attribute.KeyValue) { s.attrs = append(s.attrs, kv...) }

func (s *recordingSpan) RecordError(err error, _ ...trace.EventOption) { s.errs = append(s.errs, err) }

func (s *recordingSpan) SetStatus(code codes.Code, _ string) { s.status = code }

func (s *recordingSpan) End(...trace.SpanEndOption) { s.ended = true }

func (s *recordingSpan) attr(key string) (attribute.Value, bool) {
	for _, kv := range s.attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestTracingMiddleware(t *testing.T) {
	t.Run("successful request", func(t *testing.T) {
		tracer := &recordingTracer{}
		mock := NewMockCoreSource("google")
		wrapped := TracingMiddlewareWithTracer("imgverdict", tracer)(mock)

		score, err := wrapped.Score(context.Background(), testImage)

		require.NoError(t, err)
		assert.InDelta(t, 0.8, score, 1e-9)
		require.Len(t, tracer.spans, 1)
		span := tracer.spans[0]
		assert.Equal(t, "source.score", span.name)
		assert.Equal(t, trace.SpanKindClient, span.kind)
		assert.True(t, span.ended)
		assert.Equal(t, codes.Ok, span.status)

		v, ok := span.attr("source.name")
		require.True(t, ok)
		assert.Equal(t, "google", v.AsString())
		v, ok = span.attr("source.score")
		require.True(t, ok)
		assert.InDelta(t, 0.8, v.AsFloat64(), 1e-9)
	})

	t.Run("failed request", func(t *testing.T) {
		tracer := &recordingTracer{}
		mock := NewMockCoreSource("google")
		mock.Error = errors.New("service error")
		wrapped := TracingMiddlewareWithTracer("imgverdict", tracer)(mock)

		_, err := wrapped.Score(context.Background(), testImage)

		require.Error(t, err)
		assert.Equal(t, "service error", err.Error(), "should return original error")
		require.Len(t, tracer.spans, 1)
		assert.Equal(t, codes.Error, tracer.spans[0].status)
		assert.Len(t, tracer.spans[0].errs, 1)
	})

	t.Run("global tracer passes through", func(t *testing.T) {
		mock := NewMockCoreSource("google")
		wrapped := TracingMiddleware("imgverdict")(mock)

		_, err := wrapped.Score(context.Background(), testImage)
		require.NoError(t, err)
		assert.Equal(t, 1, mock.GetCallCount())
	})
}
