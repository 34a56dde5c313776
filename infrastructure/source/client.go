// Package source provides a unified interface for scoring images against
// external classification services, with built-in support for timeouts,
// retries, rate limiting, circuit breaking, metrics and tracing.
//
// Each vendor is a provider implementing CoreSource. Providers only turn an
// image into a probability or an error; the Client wraps them in a middleware
// chain and converts every failure into an absent score, so callers never
// handle vendor errors.
//
// Basic usage:
//
//	client, err := source.NewClient("google", source.ClientConfig{
//	    Name:    "google",
//	    APIKey:  os.Getenv("GOOGLE_VISION_API_KEY"),
//	    Timeout: 10 * time.Second,
//	})
//	score := client.Classify(ctx, img) // nil when the source failed
//
// Advanced usage with middleware:
//
//	client, err := source.NewClient("deepai", source.ClientConfig{
//	    Name:   "deepai",
//	    APIKey: os.Getenv("DEEPAI_API_KEY"),
//	    Middleware: []source.Middleware{
//	        source.RateLimitMiddleware(5, 10),
//	        source.CircuitBreakerMiddleware(5, 30*time.Second),
//	        source.MetricsMiddleware(metricsCollector),
//	    },
//	})
package source

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/ahrav/imgverdict/internal/domain"
	"github.com/ahrav/imgverdict/internal/ports"
)

// CoreSource defines the minimal interface that source providers must
// implement. It allows the middleware system to wrap any conforming
// implementation.
type CoreSource interface {
	// Score asks the provider how likely img is AI-generated. The result is
	// on the 0-1 scale. Providers return an error, never a guess, when the
	// vendor gave no usable answer.
	Score(ctx context.Context, img domain.Image) (float64, error)

	// Name returns the configured source name.
	Name() string

	// Provider returns the provider type, such as "google" or "deepai".
	Provider() string
}

// ClientConfig holds all configuration options for creating a source client.
type ClientConfig struct {
	// Name is the source name used in verdicts, logs and metrics.
	// Defaults to the provider type.
	Name string

	// APIKey authenticates requests to the vendor. Providers that run
	// locally ignore it.
	APIKey string

	// BaseURL overrides the default API endpoint for the provider.
	// Leave empty to use the provider's default endpoint.
	BaseURL string

	// Model selects the vendor model for providers that offer several.
	Model string

	// Timeout bounds each Classify call, including retries.
	// Zero value means no timeout.
	Timeout time.Duration

	// HTTPClient is used by HTTP based providers. Defaults to a client
	// without its own timeout; the Timeout above applies instead.
	HTTPClient *http.Client

	// Labels overrides the AI-indicating label keywords for providers that
	// classify by labels.
	Labels []string

	// Logger receives failure reports. Defaults to slog.Default().
	Logger *slog.Logger

	// Middleware allows custom middleware insertion.
	// These are applied in the order specified.
	Middleware []Middleware
}

// Middleware wraps a CoreSource implementation to add cross-cutting
// functionality without modifying provider logic.
type Middleware func(CoreSource) CoreSource

// Client implements ports.SourceClient on top of a provider and its
// middleware chain.
type Client struct {
	core    CoreSource
	timeout time.Duration
	logger  *slog.Logger
}

var _ ports.SourceClient = (*Client)(nil)

// NewClient creates a new source client with the specified provider and
// configuration. The configured Timeout is installed as the outermost
// middleware so that retries share one deadline.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	factory, ok := GetProviderFactory(providerType)
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	if config.Name == "" {
		config.Name = providerType
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", config.Name, err)
	}

	middleware := config.Middleware
	if config.Timeout > 0 {
		middleware = append([]Middleware{TimeoutMiddleware(config.Timeout)}, middleware...)
	}

	// Apply middleware in reverse order so the first middleware is the outermost.
	for i := len(middleware) - 1; i >= 0; i-- {
		core = middleware[i](core)
	}

	return &Client{
		core:    core,
		timeout: config.Timeout,
		logger:  config.Logger.With("source", config.Name, "provider", providerType),
	}, nil
}

// Name returns the configured source name.
func (c *Client) Name() string { return c.core.Name() }

// scoreResult carries a provider answer out of its goroutine.
type scoreResult struct {
	score    float64
	err      error
	panicked bool
}

// Classify scores img and returns nil on any failure. It never panics and
// never outlives the configured timeout: the provider runs in its own
// goroutine, and an answer arriving after the deadline is discarded even
// when the provider ignores its context.
func (c *Client) Classify(ctx context.Context, img domain.Image) *float64 {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	done := make(chan scoreResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- scoreResult{err: fmt.Errorf("provider panicked: %v", r), panicked: true}
			}
		}()
		v, err := c.core.Score(ctx, img)
		done <- scoreResult{score: v, err: err}
	}()

	var res scoreResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res = scoreResult{err: c.contextError(ctx.Err())}
	}
	if res.err == nil && ctx.Err() != nil {
		res = scoreResult{err: c.contextError(ctx.Err())}
	}

	if res.err != nil {
		err := ports.NewSourceError(c.Name(), "classify", res.err)
		if res.panicked {
			c.logger.Error("source panicked", "file", img.Name, "error", err)
		} else {
			c.logger.Warn("source unavailable", "file", img.Name, "error", err, "retryable", err.IsRetryable())
		}
		return nil
	}
	if math.IsNaN(res.score) || res.score < 0 || res.score > 1 {
		c.logger.Warn("source returned out of range score", "file", img.Name, "score", res.score)
		return nil
	}

	c.logger.Debug("source scored image", "file", img.Name, "score", res.score)
	return &res.score
}

func (c *Client) contextError(err error) error {
	return (&ErrorClassifier{Provider: c.core.Provider()}).ClassifyContextError(err)
}

// ProviderFactory creates a CoreSource implementation from configuration.
type ProviderFactory func(ClientConfig) (CoreSource, error)

var (
	factoriesMu       sync.RWMutex
	providerFactories = map[string]ProviderFactory{}
)

// RegisterProviderFactory allows registration of custom source provider
// factories without modifying this package.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	providerFactories[providerType] = factory
}

// GetProviderFactory retrieves a provider factory function from the
// registry by name.
func GetProviderFactory(providerType string) (ProviderFactory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	factory, ok := providerFactories[providerType]
	return factory, ok
}

// RegisteredProviders returns the registered provider types in lexical order.
func RegisteredProviders() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	types := make([]string, 0, len(providerFactories))
	for t := range providerFactories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
