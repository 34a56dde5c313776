package source

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ahrav/imgverdict/internal/domain"
	"github.com/ahrav/imgverdict/internal/ports"
)

// Registry manages the configured source clients of a run. It resolves API
// keys from the environment, applies registry-wide defaults and keeps
// clients in registration order so verdict output is stable.
type Registry struct {
	providers         map[string]ProviderConfig
	clients           map[string]*Client
	kinds             map[string]string
	order             []string
	defaultMiddleware []Middleware
	defaultTimeout    time.Duration
	logger            *slog.Logger
	mu                sync.RWMutex
}

// ProviderConfig holds provider-specific defaults.
type ProviderConfig struct {
	// Type specifies the provider implementation type.
	Type string
	// EnvVar names the environment variable holding the API key. Empty for
	// providers that run locally.
	EnvVar string
	// DefaultModel is used when the source does not pick a model.
	DefaultModel string
	// BaseURL overrides the provider's built-in endpoint.
	BaseURL string
	// DefaultWeight is the aggregation weight used when the source config
	// omits one.
	DefaultWeight float64
	// Middleware specifies provider-specific middleware.
	Middleware []Middleware
}

// RegistryConfig holds configuration for the source registry.
type RegistryConfig struct {
	// Providers defines the available providers. Defaults to DefaultProviders.
	Providers map[string]ProviderConfig
	// DefaultTimeout sets the per-call timeout for all sources.
	DefaultTimeout time.Duration
	// DefaultMiddleware is applied to every source before its own middleware.
	DefaultMiddleware []Middleware
	// Logger receives source failure reports.
	Logger *slog.Logger
}

// DefaultProviders lists the built-in providers. The weights of the four
// detection services add up to 1; the vision-model and metadata sources are
// off unless given a weight.
var DefaultProviders = map[string]ProviderConfig{
	"aiornot": {
		Type:          "aiornot",
		EnvVar:        "AIORNOT_API_KEY",
		DefaultWeight: 0,
	},
	"google": {
		Type:          "google",
		EnvVar:        "GOOGLE_VISION_API_KEY",
		DefaultWeight: 0.6,
	},
	"deepai": {
		Type:          "deepai",
		EnvVar:        "DEEPAI_API_KEY",
		DefaultWeight: 0.2,
	},
	"huggingface": {
		Type:          "huggingface",
		EnvVar:        "HUGGINGFACE_API_KEY",
		DefaultModel:  HuggingFaceDefaultModel,
		DefaultWeight: 0.2,
	},
	"openai": {
		Type:         "openai",
		EnvVar:       "OPENAI_API_KEY",
		DefaultModel: OpenAIDefaultModel,
	},
	"anthropic": {
		Type:         "anthropic",
		EnvVar:       "ANTHROPIC_API_KEY",
		DefaultModel: AnthropicDefaultModel,
	},
	"gemini": {
		Type:         "gemini",
		EnvVar:       "GEMINI_API_KEY",
		DefaultModel: GeminiDefaultModel,
	},
	"metadata": {
		Type: "metadata",
	},
}

// NewRegistry creates an empty registry.
func NewRegistry(config RegistryConfig) *Registry {
	providers := config.Providers
	if providers == nil {
		providers = DefaultProviders
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		providers:         providers,
		clients:           make(map[string]*Client),
		kinds:             make(map[string]string),
		defaultMiddleware: config.DefaultMiddleware,
		defaultTimeout:    config.DefaultTimeout,
		logger:            logger,
	}
}

// RegisterClient creates a client for source name backed by providerType.
// Empty fields of config are filled from the provider defaults; a missing
// API key is read from the provider's environment variable.
func (r *Registry) RegisterClient(name, providerType string, config ClientConfig) error {
	if name == "" {
		return fmt.Errorf("source name cannot be empty")
	}

	providerConfig, ok := r.providers[providerType]
	if !ok {
		// Factories registered at runtime have no defaults of their own.
		if _, registered := GetProviderFactory(providerType); !registered {
			return fmt.Errorf("unknown provider %q", providerType)
		}
		providerConfig = ProviderConfig{Type: providerType}
	}

	r.mu.RLock()
	_, dup := r.clients[name]
	r.mu.RUnlock()
	if dup {
		return fmt.Errorf("source %q already registered", name)
	}

	config.Name = name
	if config.APIKey == "" && providerConfig.EnvVar != "" {
		config.APIKey = os.Getenv(providerConfig.EnvVar)
		if config.APIKey == "" {
			return fmt.Errorf("%w: %s environment variable not set for source %q", ports.ErrConfigNotFound, providerConfig.EnvVar, name)
		}
	}
	if config.Model == "" {
		config.Model = providerConfig.DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = providerConfig.BaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = r.defaultTimeout
	}
	if config.Logger == nil {
		config.Logger = r.logger
	}

	middleware := append([]Middleware{}, r.defaultMiddleware...)
	middleware = append(middleware, providerConfig.Middleware...)
	config.Middleware = append(middleware, config.Middleware...)

	client, err := NewClient(providerConfig.Type, config)
	if err != nil {
		return fmt.Errorf("failed to create source %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.clients[name]; dup {
		return fmt.Errorf("source %q already registered", name)
	}
	r.clients[name] = client
	r.kinds[name] = providerType
	r.order = append(r.order, name)
	return nil
}

// InitializeProviders registers one source per keyed provider whose API
// key is present in the environment. Keyless providers only run when
// configured explicitly. Sources are named after their provider.
func (r *Registry) InitializeProviders() error {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		pc := r.providers[name]
		if pc.EnvVar == "" {
			continue
		}
		if os.Getenv(pc.EnvVar) == "" {
			r.logger.Debug("skipping source without API key", "source", name, "env", pc.EnvVar)
			continue
		}
		if err := r.RegisterClient(name, name, ClientConfig{}); err != nil {
			return err
		}
	}

	if len(r.Clients()) == 0 {
		return fmt.Errorf("%w: no provider API key in the environment", ports.ErrConfigNotFound)
	}
	return nil
}

// Clients returns the registered clients in registration order.
func (r *Registry) Clients() []ports.SourceClient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ports.SourceClient, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.clients[name])
	}
	return out
}

// Names returns the registered source names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// DefaultWeights returns the provider default weights for the registered
// sources, keyed by source name.
func (r *Registry) DefaultWeights() domain.Weights {
	r.mu.RLock()
	defer r.mu.RUnlock()
	weights := make(domain.Weights, len(r.order))
	for _, name := range r.order {
		weights[name] = r.providers[r.kinds[name]].DefaultWeight
	}
	return weights
}
