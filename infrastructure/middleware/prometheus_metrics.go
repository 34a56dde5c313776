// Package middleware provides cross-cutting concerns for batch runs:
// Prometheus metrics and OpenTelemetry batch tracing.
package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/imgverdict/internal/ports"
)

const namespace = "imgverdict"

// PrometheusMetrics implements the MetricsCollector interface using
// Prometheus. It tracks source requests and availability, circuit breaker
// activity, and the distribution of verdicts across runs.
type PrometheusMetrics struct {
	sourceRequests   *prometheus.CounterVec
	sourceLatency    *prometheus.HistogramVec
	circuitState     *prometheus.GaugeVec
	circuitEvents    *prometheus.CounterVec
	availability     *prometheus.GaugeVec
	verdicts         *prometheus.CounterVec
	composite        prometheus.Histogram
	imageErrors      *prometheus.CounterVec
	executionLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec

	onError func(error)
}

// NewPrometheusMetrics creates a PrometheusMetrics instance and registers
// all metrics with reg. A nil reg uses the default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		onError: func(err error) { slog.Warn("metric dropped", "error", err) },

		// Source metrics.
		sourceRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_requests_total",
				Help:      "Total number of classification requests per source and outcome.",
			},
			[]string{"source", "provider", "status"},
		),
		sourceLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "source_latency_seconds",
				Help:      "Latency of classification requests per source.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"source", "provider", "status"},
		),
		circuitState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "source_circuit_state",
				Help:      "Circuit breaker state per source (0 closed, 1 open, 2 half open).",
			},
			[]string{"source"},
		),
		circuitEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_circuit_events_total",
				Help:      "Circuit breaker outcomes per source.",
			},
			[]string{"source", "event"},
		),
		availability: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "source_availability_ratio",
				Help:      "Fraction of images of the last run a source scored.",
			},
			[]string{"source"},
		),

		// Verdict metrics.
		verdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verdicts_total",
				Help:      "Total number of verdicts by outcome.",
			},
			[]string{"outcome"},
		),
		composite: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "verdict_composite_percent",
				Help:      "Distribution of composite AI probabilities.",
				Buckets:   prometheus.LinearBuckets(10, 10, 9),
			},
		),
		imageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "image_errors_total",
				Help:      "Total number of images rejected before scoring.",
			},
			[]string{"reason"},
		),

		// General execution metrics.
		executionLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Execution time of batch operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		operationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of other recorded events.",
			},
			[]string{"operation"},
		),
		systemGauges: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "system_state",
				Help:      "Other recorded state values.",
			},
			[]string{"metric"},
		),
	}
}

// SetErrorHandler replaces the handler that receives a *ports.MetricsError
// whenever an observation is dropped. The default logs at Warn.
func (pm *PrometheusMetrics) SetErrorHandler(fn func(error)) {
	if fn != nil {
		pm.onError = fn
	}
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.observe(pm.executionLatency, operation, "RecordLatency", duration.Seconds(), operation)
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "source_requests_total":
		pm.add(pm.sourceRequests, metric, value,
			label(labels, "source"), label(labels, "provider"), label(labels, "status"))
	case "source_circuit_rejections_total":
		pm.add(pm.circuitEvents, metric, value, label(labels, "source"), "rejected")
	case "source_circuit_successes_total":
		pm.add(pm.circuitEvents, metric, value, label(labels, "source"), "success")
	case "source_circuit_failures_total":
		pm.add(pm.circuitEvents, metric, value, label(labels, "source"), "failure")
	case "verdicts_total":
		pm.add(pm.verdicts, metric, value, label(labels, "outcome"))
	case "image_errors_total":
		pm.add(pm.imageErrors, metric, value, label(labels, "reason"))
	default:
		pm.add(pm.operationCounter, metric, value, metric)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "source_circuit_state":
		pm.set(pm.circuitState, metric, value, label(labels, "source"))
	case "source_availability":
		pm.set(pm.availability, metric, value, label(labels, "source"))
	default:
		pm.set(pm.systemGauges, metric, value, metric)
	}
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "source_latency_seconds":
		pm.observe(pm.sourceLatency, metric, "RecordHistogram", value,
			label(labels, "source"), label(labels, "provider"), label(labels, "status"))
	case "verdict_composite":
		pm.composite.Observe(value)
	default:
		pm.observe(pm.executionLatency, metric, "RecordHistogram", value, metric)
	}
}

// add increments a counter. Invalid label values and negative increments
// are reported instead of panicking.
func (pm *PrometheusMetrics) add(vec *prometheus.CounterVec, metric string, value float64, lvs ...string) {
	if value < 0 {
		pm.onError(ports.NewMetricsError(metric, "RecordCounter", errors.New("counter cannot decrease")))
		return
	}
	c, err := vec.GetMetricWithLabelValues(lvs...)
	if err != nil {
		pm.onError(ports.NewMetricsError(metric, "RecordCounter", err))
		return
	}
	c.Add(value)
}

func (pm *PrometheusMetrics) set(vec *prometheus.GaugeVec, metric string, value float64, lvs ...string) {
	g, err := vec.GetMetricWithLabelValues(lvs...)
	if err != nil {
		pm.onError(ports.NewMetricsError(metric, "RecordGauge", err))
		return
	}
	g.Set(value)
}

func (pm *PrometheusMetrics) observe(vec *prometheus.HistogramVec, metric, op string, value float64, lvs ...string) {
	o, err := vec.GetMetricWithLabelValues(lvs...)
	if err != nil {
		pm.onError(ports.NewMetricsError(metric, op, err))
		return
	}
	o.Observe(value)
}

// label returns labels[key], or "unknown" when it is missing or empty.
func label(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return "unknown"
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
