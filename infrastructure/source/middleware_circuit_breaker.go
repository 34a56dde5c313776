package source

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ahrav/imgverdict/internal/domain"
	"github.com/ahrav/imgverdict/internal/ports"
)

// ErrCircuitOpen indicates that the circuit breaker rejected a request
// without calling the vendor.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState represents the current state of a circuit breaker.
type CircuitBreakerState int

// Circuit breaker states.
const (
	// StateClosed allows all requests to pass through normally.
	StateClosed CircuitBreakerState = iota

	// StateOpen rejects all requests immediately.
	// The circuit enters this state after too many consecutive failures.
	StateOpen

	// StateHalfOpen lets a single probe through after the cooldown.
	StateHalfOpen
)

// String returns the lower-case state name used in logs and metrics.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreakerMetrics enables observability for circuit breaker behavior.
type CircuitBreakerMetrics interface {
	// RecordState updates the current circuit breaker state metric.
	RecordState(state CircuitBreakerState)

	// RecordTrip increments the rejected request counter.
	RecordTrip()

	// RecordSuccess increments the successful request counter.
	RecordSuccess()

	// RecordFailure increments the failed request counter.
	RecordFailure()
}

// CircuitBreaker stops calling a source that keeps failing. After
// maxFailures consecutive failures it opens for cooldownDuration, then
// lets one probe through; the probe's outcome closes or re-opens it.
//
// The lock is never held while the wrapped call runs, so concurrent images
// reach the vendor in parallel.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            CircuitBreakerState
	failureCount     int
	maxFailures      int
	cooldownDuration time.Duration
	lastFailure      time.Time
	probing          bool
}

// NewCircuitBreaker creates a circuit breaker with the specified configuration.
func NewCircuitBreaker(maxFailures int, cooldownDuration time.Duration) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		state:            StateClosed,
		maxFailures:      maxFailures,
		cooldownDuration: cooldownDuration,
	}
}

// Call executes fn through the circuit breaker. If the circuit is open it
// returns ErrCircuitOpen without calling fn. Errors wrapping
// ports.ErrNoSignal do not count as failures: the vendor answered.
func (cb *CircuitBreaker) Call(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	cb.record(err == nil || errors.Is(err, ports.ErrNoSignal))
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastFailure) < cb.cooldownDuration {
			return false
		}
		cb.state = StateHalfOpen
		cb.probing = true
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return true
	}
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		cb.failureCount = 0
		cb.state = StateClosed
		cb.probing = false
		return
	}

	cb.failureCount++
	cb.lastFailure = time.Now()
	if cb.state == StateHalfOpen || cb.failureCount >= cb.maxFailures {
		cb.state = StateOpen
	}
	cb.probing = false
}

// GetState returns the current circuit breaker state.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

type circuitBreakerSource struct {
	next    CoreSource
	cb      *CircuitBreaker
	metrics CircuitBreakerMetrics
}

// CircuitBreakerMiddleware creates middleware that implements the circuit
// breaker pattern.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	return CircuitBreakerMiddlewareWithMetrics(maxFailures, cooldown, nil)
}

// CircuitBreakerMiddlewareWithMetrics creates circuit breaker middleware
// with metrics support.
func CircuitBreakerMiddlewareWithMetrics(maxFailures int, cooldown time.Duration, metrics CircuitBreakerMetrics) Middleware {
	cb := NewCircuitBreaker(maxFailures, cooldown)

	return func(next CoreSource) CoreSource {
		return &circuitBreakerSource{
			next:    next,
			cb:      cb,
			metrics: metrics,
		}
	}
}

// Score executes the request through the circuit breaker.
func (c *circuitBreakerSource) Score(ctx context.Context, img domain.Image) (float64, error) {
	var score float64

	err := c.cb.Call(func() error {
		var err error
		score, err = c.next.Score(ctx, img)
		return err
	})

	if c.metrics != nil {
		switch {
		case err == nil:
			c.metrics.RecordSuccess()
		case errors.Is(err, ErrCircuitOpen):
			c.metrics.RecordTrip()
		default:
			c.metrics.RecordFailure()
		}
		c.metrics.RecordState(c.cb.GetState())
	}

	return score, err
}

// Name returns the source name from the wrapped implementation.
func (c *circuitBreakerSource) Name() string { return c.next.Name() }

// Provider returns the provider type from the wrapped implementation.
func (c *circuitBreakerSource) Provider() string { return c.next.Provider() }

// collectorBreakerMetrics reports circuit breaker events through a
// MetricsCollector, labelled with the source name.
type collectorBreakerMetrics struct {
	collector ports.MetricsCollector
	labels    map[string]string
}

// NewCollectorBreakerMetrics adapts collector to CircuitBreakerMetrics.
func NewCollectorBreakerMetrics(collector ports.MetricsCollector, sourceName string) CircuitBreakerMetrics {
	return &collectorBreakerMetrics{
		collector: collector,
		labels:    map[string]string{"source": sourceName},
	}
}

func (m *collectorBreakerMetrics) RecordState(state CircuitBreakerState) {
	m.collector.RecordGauge("source_circuit_state", float64(state), m.labels)
}

func (m *collectorBreakerMetrics) RecordTrip() {
	m.collector.RecordCounter("source_circuit_rejections_total", 1, m.labels)
}

func (m *collectorBreakerMetrics) RecordSuccess() {
	m.collector.RecordCounter("source_circuit_successes_total", 1, m.labels)
}

func (m *collectorBreakerMetrics) RecordFailure() {
	m.collector.RecordCounter("source_circuit_failures_total", 1, m.labels)
}
