package application

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/ahrav/imgverdict/infrastructure/source"
	"github.com/ahrav/imgverdict/internal/domain"
	"github.com/ahrav/imgverdict/internal/ports"
)

// tracingServiceName labels source spans.
const tracingServiceName = "imgverdict"

// Retry backoff used when a retry section leaves the waits unset.
const (
	defaultRetryInitialWait = 500 * time.Millisecond
	defaultRetryMaxWait     = 10 * time.Second
)

// RuntimeOptions carries the process-level collaborators that are not part
// of the YAML configuration.
type RuntimeOptions struct {
	// Metrics receives source and batch metrics. Optional.
	Metrics ports.MetricsCollector
	// Observer receives batch lifecycle events. Optional.
	Observer ports.BatchObserver
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewBatchProcessorFromConfig builds the source registry described by cfg
// and returns a processor over it. Configuration problems, including a
// missing API key for an explicitly listed source, are reported as
// *ports.ConfigError.
func NewBatchProcessorFromConfig(cfg *Config, opts RuntimeOptions) (*BatchProcessor, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	defaults := []source.Middleware{source.TracingMiddleware(tracingServiceName)}
	if opts.Metrics != nil {
		defaults = append(defaults, source.MetricsMiddleware(opts.Metrics))
	}

	registry := source.NewRegistry(source.RegistryConfig{
		DefaultTimeout:    DefaultSourceTimeout,
		DefaultMiddleware: defaults,
		Logger:            logger,
	})

	weights, err := registerSources(registry, cfg.Sources, opts.Metrics)
	if err != nil {
		return nil, err
	}

	var duplicates ports.DuplicateFinder
	if cfg.Batch.DetectDuplicates {
		duplicates = NewHashDuplicateFinder(cfg.duplicateDistance(), logger)
	}

	logger.Debug("sources configured", "sources", registry.Names(), "weights", weights)

	return NewBatchProcessor(BatchProcessorConfig{
		Sources:          registry.Clients(),
		Weights:          weights,
		Aggregator:       domain.NewWeightedAggregator(cfg.Filter),
		Validator:        NewImageValidatorFromConfig(cfg.Limits),
		Observer:         opts.Observer,
		Duplicates:       duplicates,
		ImageConcurrency: cfg.Batch.ImageConcurrency,
		Logger:           logger,
	})
}

// registerSources adds the configured sources to registry and returns their
// weights. With no sources configured every provider whose key is present
// is used with its default weight.
func registerSources(registry *source.Registry, sources []SourceConfig, metrics ports.MetricsCollector) (domain.Weights, error) {
	if len(sources) == 0 {
		if err := registry.InitializeProviders(); err != nil {
			return nil, ports.NewConfigError("sources", err)
		}
		return registry.DefaultWeights(), nil
	}

	for _, src := range sources {
		clientConfig := source.ClientConfig{
			BaseURL:    src.BaseURL,
			Model:      src.Model,
			Timeout:    src.Timeout,
			Labels:     src.Labels,
			Middleware: sourceMiddleware(src, metrics),
		}
		if src.APIKeyEnv != "" {
			clientConfig.APIKey = os.Getenv(src.APIKeyEnv)
			if clientConfig.APIKey == "" {
				return nil, ports.NewConfigError("sources."+src.Name,
					fmt.Errorf("%w: %s environment variable not set", ports.ErrConfigNotFound, src.APIKeyEnv))
			}
		}
		if err := registry.RegisterClient(src.Name, src.Type, clientConfig); err != nil {
			return nil, ports.NewConfigError("sources."+src.Name, err)
		}
	}

	weights := registry.DefaultWeights()
	for _, src := range sources {
		if src.Weight != nil {
			weights[src.Name] = *src.Weight
		}
	}
	return weights, nil
}

// sourceMiddleware builds the per-source resilience chain, outermost
// first: circuit breaker, retry, rate limit.
func sourceMiddleware(src SourceConfig, metrics ports.MetricsCollector) []source.Middleware {
	var chain []source.Middleware

	if cb := src.CircuitBreaker; cb != nil {
		var cbMetrics source.CircuitBreakerMetrics
		if metrics != nil {
			cbMetrics = source.NewCollectorBreakerMetrics(metrics, src.Name)
		}
		chain = append(chain, source.CircuitBreakerMiddlewareWithMetrics(cb.MaxFailures, cb.Cooldown, cbMetrics))
	}

	if r := src.Retry; r != nil && r.MaxAttempts > 1 {
		initial, maxWait := r.InitialWait, r.MaxWait
		if initial == 0 {
			initial = defaultRetryInitialWait
		}
		if maxWait == 0 {
			maxWait = defaultRetryMaxWait
		}
		chain = append(chain, source.RetryMiddleware(r.MaxAttempts-1, initial, maxWait))
	}

	if rl := src.RateLimit; rl != nil {
		burst := rl.Burst
		if burst < 1 {
			burst = 1
		}
		chain = append(chain, source.RateLimitMiddleware(rate.Limit(rl.RequestsPerSecond), burst))
	}

	return chain
}
