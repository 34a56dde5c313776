package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/imgverdict/internal/ports"
)

func TestRegistry_RegisterClient(t *testing.T) {
	mock := NewMockCoreSource("")
	registerMock(t, "registry-test-mock", mock)

	t.Setenv("REGISTRY_TEST_KEY", "env-key")

	var seen ClientConfig
	RegisterProviderFactory("registry-test-capture", func(config ClientConfig) (CoreSource, error) {
		seen = config
		return NewMockCoreSource(config.Name), nil
	})

	registry := NewRegistry(RegistryConfig{
		Providers: map[string]ProviderConfig{
			"mock":    {Type: "registry-test-mock", DefaultWeight: 0.4},
			"capture": {Type: "registry-test-capture", EnvVar: "REGISTRY_TEST_KEY", DefaultModel: "m1", DefaultWeight: 0.6},
		},
		DefaultTimeout: 5 * time.Second,
		Logger:         quietLogger(),
	})

	require.NoError(t, registry.RegisterClient("primary", "capture", ClientConfig{}))
	require.NoError(t, registry.RegisterClient("secondary", "mock", ClientConfig{}))

	t.Run("fills defaults from provider and environment", func(t *testing.T) {
		assert.Equal(t, "primary", seen.Name)
		assert.Equal(t, "env-key", seen.APIKey)
		assert.Equal(t, "m1", seen.Model)
		assert.Equal(t, 5*time.Second, seen.Timeout)
	})

	t.Run("keeps registration order", func(t *testing.T) {
		assert.Equal(t, []string{"primary", "secondary"}, registry.Names())
		clients := registry.Clients()
		require.Len(t, clients, 2)
		assert.Equal(t, "primary", clients[0].Name())
		assert.Equal(t, "secondary", clients[1].Name())
	})

	t.Run("default weights keyed by source name", func(t *testing.T) {
		weights := registry.DefaultWeights()
		assert.InDelta(t, 0.6, weights["primary"], 1e-9)
		assert.InDelta(t, 0.4, weights["secondary"], 1e-9)
	})

	t.Run("registered clients score", func(t *testing.T) {
		score := registry.Clients()[1].Classify(context.Background(), testImage)
		require.NotNil(t, score)
		assert.InDelta(t, 0.8, *score, 1e-9)
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		err := registry.RegisterClient("primary", "mock", ClientConfig{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already registered")
	})
}

func TestRegistry_RegisterClientErrors(t *testing.T) {
	registry := NewRegistry(RegistryConfig{
		Providers: map[string]ProviderConfig{
			"keyed": {Type: "deepai", EnvVar: "REGISTRY_TEST_UNSET_KEY"},
		},
		Logger: quietLogger(),
	})

	tests := []struct {
		name         string
		sourceName   string
		providerType string
		contains     string
		notFound     bool
	}{
		{"empty name", "", "keyed", "cannot be empty", false},
		{"unknown provider", "x", "nope", "unknown provider", false},
		{"missing key", "x", "keyed", "REGISTRY_TEST_UNSET_KEY", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := registry.RegisterClient(tt.sourceName, tt.providerType, ClientConfig{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Equal(t, tt.notFound, errors.Is(err, ports.ErrConfigNotFound))
		})
	}
	assert.Empty(t, registry.Names())
}

func TestRegistry_InitializeProviders(t *testing.T) {
	t.Setenv("REGISTRY_TEST_PRESENT", "k")
	t.Setenv("REGISTRY_TEST_ABSENT", "")

	registerMock(t, "registry-test-init", NewMockCoreSource(""))

	registry := NewRegistry(RegistryConfig{
		Providers: map[string]ProviderConfig{
			"present": {Type: "registry-test-init", EnvVar: "REGISTRY_TEST_PRESENT"},
			"absent":  {Type: "registry-test-init", EnvVar: "REGISTRY_TEST_ABSENT"},
			"local":   {Type: "metadata"},
		},
		Logger: quietLogger(),
	})

	require.NoError(t, registry.InitializeProviders())
	assert.Equal(t, []string{"present"}, registry.Names(), "keyless providers need explicit configuration")
}

func TestRegistry_InitializeProvidersNoneAvailable(t *testing.T) {
	t.Setenv("REGISTRY_TEST_ABSENT", "")
	registry := NewRegistry(RegistryConfig{
		Providers: map[string]ProviderConfig{
			"absent": {Type: "deepai", EnvVar: "REGISTRY_TEST_ABSENT"},
		},
		Logger: quietLogger(),
	})

	err := registry.InitializeProviders()
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConfigNotFound)
}

func TestRegistry_InitializeProvidersSkipsKeyless(t *testing.T) {
	registry := NewRegistry(RegistryConfig{
		Providers: map[string]ProviderConfig{
			"local": {Type: "metadata"},
		},
		Logger: quietLogger(),
	})

	require.Error(t, registry.InitializeProviders())
	assert.Empty(t, registry.Names())
}

func TestDefaultProviders(t *testing.T) {
	total := 0.0
	for name, pc := range DefaultProviders {
		_, ok := GetProviderFactory(pc.Type)
		assert.True(t, ok, "provider %s has no factory", name)
		total += pc.DefaultWeight
	}
	assert.InDelta(t, 1.0, total, 1e-9, "default weights should sum to one")
	assert.InDelta(t, 0.6, DefaultProviders["google"].DefaultWeight, 1e-9)
	assert.Zero(t, DefaultProviders["aiornot"].DefaultWeight)
}
