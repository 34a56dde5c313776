// Package application wires configuration, image validation and the source
// fan-out into batch runs that produce verdicts.
package application

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/imgverdict/internal/domain"
	"github.com/ahrav/imgverdict/internal/ports"
)

// DefaultMaxFileBytes is the per-image size limit applied when the
// configuration does not set one.
const DefaultMaxFileBytes int64 = 5 << 20

// Default values for the batch and per-source settings.
const (
	DefaultImageConcurrency  = 4
	DefaultSourceTimeout     = 30 * time.Second
	DefaultDuplicateDistance = 5
)

// DefaultAllowedTypes lists the content types accepted when the
// configuration does not restrict them.
var DefaultAllowedTypes = []string{"image/jpeg", "image/png"}

// Config is the complete configuration of a detection run and the primary
// entry point for loading settings from YAML.
type Config struct {
	// Sources lists the classification services to query. When empty,
	// every built-in provider whose API key is present in the environment
	// is used with its default weight.
	Sources []SourceConfig `yaml:"sources" validate:"omitempty,max=32,unique=Name,dive"`
	// Filter controls which raw scores count as uninformative defaults.
	Filter domain.ValidityFilter `yaml:"filter"`
	// Limits bounds the images accepted into a batch.
	Limits LimitsConfig `yaml:"limits"`
	// Batch controls concurrency and batch-level features.
	Batch BatchConfig `yaml:"batch"`
}

// SourceConfig defines one classification source: which provider backs it,
// how much it weighs in the composite and how calls to it are guarded.
type SourceConfig struct {
	// Name keys the source in verdicts and exports. Must be unique.
	Name string `yaml:"name" validate:"required,min=1,max=64"`
	// Type selects the provider implementation.
	Type string `yaml:"type" validate:"required,sourcetype"`
	// Weight is the aggregation weight in [0,1]. Weights need not sum to
	// one. When omitted the provider default is used.
	Weight *float64 `yaml:"weight" validate:"omitempty,gte=0,lte=1"`
	// APIKeyEnv names the environment variable holding the API key,
	// overriding the provider default.
	APIKeyEnv string `yaml:"api_key_env" validate:"omitempty,envname"`
	// BaseURL overrides the provider endpoint.
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`
	// Model selects the model for providers that host several.
	Model string `yaml:"model" validate:"max=200"`
	// Timeout bounds a single call, including retries.
	Timeout time.Duration `yaml:"timeout" validate:"gte=0"`
	// Labels overrides the keywords that mark a classifier label as
	// AI-generated.
	Labels []string `yaml:"labels" validate:"max=50,dive,min=1"`
	// Retry configures retries of transient failures.
	Retry *RetryConfig `yaml:"retry"`
	// CircuitBreaker stops calling a source after repeated failures.
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuit_breaker"`
	// RateLimit throttles calls to the source.
	RateLimit *RateLimitConfig `yaml:"rate_limit"`
}

// RetryConfig specifies retry behavior for transient source failures.
type RetryConfig struct {
	// MaxAttempts counts the first call. 1 disables retries.
	MaxAttempts int `yaml:"max_attempts" validate:"required,min=1,max=10"`
	// InitialWait is the backoff before the first retry.
	InitialWait time.Duration `yaml:"initial_wait" validate:"gte=0"`
	// MaxWait caps the exponential backoff.
	MaxWait time.Duration `yaml:"max_wait" validate:"gte=0"`
}

// CircuitBreakerConfig specifies when a failing source is short-circuited.
type CircuitBreakerConfig struct {
	MaxFailures int           `yaml:"max_failures" validate:"required,min=1,max=1000"`
	Cooldown    time.Duration `yaml:"cooldown" validate:"gt=0"`
}

// RateLimitConfig specifies a token bucket for calls to one source.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gt=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
}

// LimitsConfig bounds the images accepted into a batch.
type LimitsConfig struct {
	// MaxFileBytes rejects larger images before any source is called.
	MaxFileBytes int64 `yaml:"max_file_bytes" validate:"gte=0"`
	// AllowedTypes lists accepted MIME types, detected from content.
	AllowedTypes []string `yaml:"allowed_types" validate:"dive,oneof=image/jpeg image/png"`
}

// BatchConfig controls how a batch is processed.
type BatchConfig struct {
	// ImageConcurrency bounds how many images are scored at once.
	ImageConcurrency int `yaml:"image_concurrency" validate:"gte=0,lte=64"`
	// DetectDuplicates enables perceptual duplicate grouping.
	DetectDuplicates bool `yaml:"detect_duplicates"`
	// DuplicateDistance is the maximum dHash distance of two duplicates.
	// Zero groups only identical hashes; nil means the default.
	DuplicateDistance *int `yaml:"duplicate_distance" validate:"omitempty,gte=0,lte=64"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{Filter: domain.DefaultValidityFilter()}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills zero-valued settings.
func (c *Config) applyDefaults() {
	if c.Limits.MaxFileBytes == 0 {
		c.Limits.MaxFileBytes = DefaultMaxFileBytes
	}
	if len(c.Limits.AllowedTypes) == 0 {
		c.Limits.AllowedTypes = append([]string(nil), DefaultAllowedTypes...)
	}
	if c.Batch.ImageConcurrency == 0 {
		c.Batch.ImageConcurrency = DefaultImageConcurrency
	}
	if c.Batch.DuplicateDistance == nil {
		distance := DefaultDuplicateDistance
		c.Batch.DuplicateDistance = &distance
	}
	for i := range c.Sources {
		if c.Sources[i].Timeout == 0 {
			c.Sources[i].Timeout = DefaultSourceTimeout
		}
	}
}

func (c *Config) duplicateDistance() int {
	if c.Batch.DuplicateDistance == nil {
		return DefaultDuplicateDistance
	}
	return *c.Batch.DuplicateDistance
}

// ConfigLoader parses and validates run configuration.
type ConfigLoader struct {
	validator *validator.Validate
}

// NewConfigLoader creates a loader with the custom validators registered.
func NewConfigLoader() (*ConfigLoader, error) {
	v := validator.New()
	if err := RegisterConfigValidators(v); err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	return &ConfigLoader{validator: v}, nil
}

// LoadFromFile reads a YAML configuration file. A .env file next to the
// configuration is loaded into the environment first so API keys can live
// beside it; variables already set are not overridden.
func (cl *ConfigLoader) LoadFromFile(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)

	data, err := os.ReadFile(cleanPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ports.NewConfigError(cleanPath, fmt.Errorf("%w: %w", ports.ErrConfigNotFound, err))
	}
	if err != nil {
		return nil, ports.NewConfigError(cleanPath, err)
	}

	envPath := filepath.Join(filepath.Dir(cleanPath), ".env")
	if _, statErr := os.Stat(envPath); statErr == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, ports.NewConfigError(envPath, err)
		}
	}

	cfg, err := cl.LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, ports.NewConfigError(cleanPath, err)
	}
	return cfg, nil
}

// LoadFromReader parses YAML from r over the defaults. Unknown fields are
// rejected.
func (cl *ConfigLoader) LoadFromReader(r io.Reader) (*Config, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	cfg := DefaultConfig()
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cl.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags and the rules tags cannot express.
func (cl *ConfigLoader) Validate(cfg *Config) error {
	verr := domain.NewValidationError("config")

	if err := cl.validator.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("validation failed: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.AddError(describeFieldError(fe))
		}
	}

	for _, src := range cfg.Sources {
		if src.Retry != nil && src.Retry.MaxWait > 0 && src.Retry.MaxWait < src.Retry.InitialWait {
			verr.AddError(fmt.Sprintf("source %s: retry max_wait must not be below initial_wait", src.Name))
		}
	}

	if verr.HasErrors() {
		return verr
	}
	return nil
}

// describeFieldError renders a validator error as a short message keyed by
// the YAML path.
func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "sourcetype":
		return fmt.Sprintf("%s: unknown source type %q", fe.Namespace(), fe.Value())
	case "unique":
		return fmt.Sprintf("%s: source names must be unique", fe.Namespace())
	case "required":
		return fmt.Sprintf("%s is required", fe.Namespace())
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("%s failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Sprintf("%s failed %s (got %v)", fe.Namespace(), fe.Tag(), fe.Value())
	}
}
