package source

import (
	"context"
	"sync"
	"time"

	"github.com/ahrav/imgverdict/internal/domain"
)

// MockCoreSource provides a configurable mock implementation of CoreSource
// for testing. It allows precise control over scores, timing and error
// conditions to exercise the middleware chain.
type MockCoreSource struct {
	mu sync.Mutex

	// Response configuration
	SourceName    string
	ProviderType  string
	Result        float64
	Error         error
	ResponseDelay time.Duration
	PanicValue    any

	// Behavior flags
	FailUntilAttempt int // Fail for first N attempts, then succeed

	// Tracking
	CallCount      int
	LastImage      domain.Image
	LastContext    context.Context
	CallTimestamps []time.Time
}

// NewMockCoreSource creates a mock that scores every image 0.8.
func NewMockCoreSource(name string) *MockCoreSource {
	return &MockCoreSource{
		SourceName:   name,
		ProviderType: "mock",
		Result:       0.8,
	}
}

// Score implements CoreSource with configurable behavior.
func (m *MockCoreSource) Score(ctx context.Context, img domain.Image) (float64, error) {
	m.mu.Lock()
	m.CallCount++
	attempt := m.CallCount
	m.LastImage = img
	m.LastContext = ctx
	m.CallTimestamps = append(m.CallTimestamps, time.Now())
	delay, panicValue := m.ResponseDelay, m.PanicValue
	result, failUntil, err := m.Result, m.FailUntilAttempt, m.Error
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	if panicValue != nil {
		panic(panicValue)
	}

	if failUntil > 0 && attempt <= failUntil {
		if err != nil {
			return 0, err
		}
		return 0, &testError{message: "simulated failure"}
	}
	if failUntil > 0 {
		return result, nil
	}

	if err != nil {
		return 0, err
	}
	return result, nil
}

// Name returns the configured source name.
func (m *MockCoreSource) Name() string { return m.SourceName }

// Provider returns the configured provider type.
func (m *MockCoreSource) Provider() string { return m.ProviderType }

// GetCallCount returns the number of times Score was called.
func (m *MockCoreSource) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// GetTimeBetweenCalls calculates the duration between two recorded calls.
// Returns nil if either index is out of range.
func (m *MockCoreSource) GetTimeBetweenCalls(call1, call2 int) *time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if call1 < 0 || call2 < 0 || call1 >= len(m.CallTimestamps) || call2 >= len(m.CallTimestamps) {
		return nil
	}

	d := m.CallTimestamps[call2].Sub(m.CallTimestamps[call1])
	return &d
}

// testError provides a simple error type for testing.
type testError struct {
	message string
}

func (e *testError) Error() string {
	return e.message
}
