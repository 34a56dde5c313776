package middleware

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/imgverdict/internal/domain"
)

// recordingTracer hands out recordingSpans.
type recordingTracer struct {
	noop.Tracer
	spans []*recordingSpan
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	span := &recordingSpan{name: name, attrs: cfg.Attributes()}
	t.spans = append(t.spans, span)
	return trace.ContextWithSpan(ctx, span), span
}

type recordingSpan struct {
	noop.Span
	mu     sync.Mutex
	name   string
	attrs  []attribute.KeyValue
	events []string
	status codes.Code
	ended  bool
}

func (s *recordingSpan) SetAttributes(kv ...attribute.KeyValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs = append(s.attrs, kv...)
}

func (s *recordingSpan) AddEvent(name string, _ ...trace.EventOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, name)
}

func (s *recordingSpan) SetStatus(code codes.Code, _ string) { s.status = code }

func (s *recordingSpan) End(...trace.SpanEndOption) { s.ended = true }

func (s *recordingSpan) intAttr(key string) (int64, bool) {
	for _, kv := range s.attrs {
		if string(kv.Key) == key {
			return kv.Value.AsInt64(), true
		}
	}
	return 0, false
}

func sampleResult() domain.BatchResult {
	verdicts := []domain.Verdict{
		{
			File: "a.png", Probability: "80.00", Composite: 80, IsAI: true, ValidAPICount: 1, TotalAPICount: 2,
			APIStatus: map[string]domain.SourceStatus{"google": domain.StatusOK, "deepai": domain.StatusUnavailable},
		},
		{
			File: "b.jpg", Probability: domain.NoDataProbability, NoData: true, TotalAPICount: 2,
			APIStatus: map[string]domain.SourceStatus{"google": domain.StatusUnavailable, "deepai": domain.StatusUnavailable},
		},
	}
	return domain.BatchResult{
		RunID:    "run-1",
		Duration: 2 * time.Second,
		Verdicts: verdicts,
		Stats:    domain.NewBatchStats(verdicts),
		Errors:   []domain.ImageError{{File: "c.gif", Err: domain.ErrUnsupportedType}},
	}
}

func TestOTelBatchObserver_Lifecycle(t *testing.T) {
	pm, _ := newTestMetrics(t)
	tracer := &recordingTracer{}
	obs := NewOTelBatchObserverWithTracer(pm, tracer)
	result := sampleResult()

	ctx := obs.BatchStarted(context.Background(), result.RunID, 3)
	for _, v := range result.Verdicts {
		obs.ImageScored(ctx, v, 100*time.Millisecond)
	}
	obs.ImageRejected(ctx, result.Errors[0])
	obs.BatchFinished(ctx, result)

	require.Len(t, tracer.spans, 1)
	span := tracer.spans[0]
	assert.Equal(t, "BatchProcessor.ProcessBatch", span.name)
	assert.True(t, span.ended)
	assert.Equal(t, codes.Ok, span.status)
	assert.Equal(t, []string{"image.scored", "image.scored", "image.rejected", "sources.outage"}, span.events)

	images, ok := span.intAttr("batch.images")
	require.True(t, ok)
	assert.Equal(t, int64(3), images)
	aiCount, ok := span.intAttr("batch.ai_count")
	require.True(t, ok)
	assert.Equal(t, int64(1), aiCount)

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.verdicts.WithLabelValues("ai")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.verdicts.WithLabelValues("no_data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.imageErrors.WithLabelValues("unsupported_type")))
	assert.Equal(t, 0.5, testutil.ToFloat64(pm.availability.WithLabelValues("google")))
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.availability.WithLabelValues("deepai")))
}

func TestOTelBatchObserver_AllRejected(t *testing.T) {
	tracer := &recordingTracer{}
	obs := NewOTelBatchObserverWithTracer(nil, tracer)

	ctx := obs.BatchStarted(context.Background(), "run-2", 1)
	obs.BatchFinished(ctx, domain.BatchResult{
		RunID:  "run-2",
		Errors: []domain.ImageError{{File: "huge.png", Err: domain.ErrFileTooLarge}},
	})

	require.Len(t, tracer.spans, 1)
	assert.Equal(t, codes.Error, tracer.spans[0].status)
}

func TestOTelBatchObserver_GlobalTracer(t *testing.T) {
	obs := NewOTelBatchObserver(nil)
	ctx := obs.BatchStarted(context.Background(), "run-3", 0)
	assert.NotPanics(t, func() {
		obs.ImageScored(ctx, domain.Verdict{File: "a.png"}, time.Millisecond)
		obs.BatchFinished(ctx, domain.BatchResult{})
	})
}

func TestRejectionReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{domain.ErrUnsupportedType, "unsupported_type"},
		{domain.NewImageError("a", "too big", domain.ErrFileTooLarge), "too_large"},
		{domain.ErrEmptyImage, "empty"},
		{domain.ErrProcessingFailed, "processing_failed"},
		{nil, "other"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, rejectionReason(tt.err))
		})
	}
}

func TestVerdictOutcome(t *testing.T) {
	assert.Equal(t, "no_data", verdictOutcome(domain.Verdict{NoData: true}))
	assert.Equal(t, "ai", verdictOutcome(domain.Verdict{IsAI: true}))
	assert.Equal(t, "not_ai", verdictOutcome(domain.Verdict{}))
}
