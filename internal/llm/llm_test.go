package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRawProvider is a test provider for unit tests.
type mockRawProvider struct {
	name     string
	response string
	err      error
	last     Request
}

func (m *mockRawProvider) ExecuteRaw(ctx context.Context, req Request) (string, error) {
	m.last = req
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

func (m *mockRawProvider) Name() string {
	return m.name
}

func (m *mockRawProvider) Close() error {
	return nil
}

var testRaw = &mockRawProvider{
	name:     "test-provider",
	response: "Sure:\n```go\nfunc generate_X() string { return \"x\" }\n```",
}

func init() {
	// Register a test provider
	RegisterProvider("test-provider", func(cfg Config) (RawProvider, error) {
		return testRaw, nil
	}, ProviderInfo{
		Name:         "test-provider",
		DisplayName:  "Test Provider",
		DefaultModel: "test-model",
		Available:    true,
		Models: []ModelInfo{
			{ID: "small", DisplayName: "small", Description: "Fast", Recommended: true},
			{ID: "large", DisplayName: "large"},
		},
		APIKey: APIKeyConfig{Required: true, EnvVarName: "TEST_KEY", Prefix: "tk-"},
	})
	RegisterProvider("failing-provider", func(cfg Config) (RawProvider, error) {
		return nil, errors.New("no key")
	}, ProviderInfo{Name: "failing-provider", DisplayName: "Failing"})
}

func TestNew(t *testing.T) {
	t.Run("creates provider from config", func(t *testing.T) {
		provider, err := New(Config{Provider: "test-provider"})
		require.NoError(t, err)
		assert.NotNil(t, provider)
		assert.Equal(t, "test-provider", provider.Name())
	})

	t.Run("returns error for unknown provider", func(t *testing.T) {
		_, err := New(Config{Provider: "unknown-provider"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown provider")
	})

	t.Run("propagates factory errors", func(t *testing.T) {
		_, err := New(Config{Provider: "failing-provider"})
		assert.EqualError(t, err, "no key")
	})
}

func TestProvider_Execute(t *testing.T) {
	provider, err := New(Config{Provider: "test-provider"})
	require.NoError(t, err)

	t.Run("code format strips the fence", func(t *testing.T) {
		result, err := provider.Execute(context.Background(), Request{System: "sys", Prompt: "p"}, Code)
		require.NoError(t, err)
		assert.Equal(t, `func generate_X() string { return "x" }`, result)
		assert.Equal(t, "sys", testRaw.last.System)
	})

	t.Run("text format returns the raw response", func(t *testing.T) {
		result, err := provider.Execute(context.Background(), Request{Prompt: "p"}, Text)
		require.NoError(t, err)
		assert.Equal(t, testRaw.response, result)
	})
}

func TestGetProviderInfo(t *testing.T) {
	t.Run("returns info for registered provider", func(t *testing.T) {
		info := GetProviderInfo("test-provider")
		require.NotNil(t, info)
		assert.Equal(t, "test-provider", info.Name)
		assert.Equal(t, "Test Provider", info.DisplayName)
	})

	t.Run("returns nil for unknown provider", func(t *testing.T) {
		info := GetProviderInfo("unknown")
		assert.Nil(t, info)
	})
}

func TestListProviders(t *testing.T) {
	providers := ListProviders()
	require.NotEmpty(t, providers)

	for i := 1; i < len(providers); i++ {
		assert.Less(t, providers[i-1].Name, providers[i].Name)
	}
}

func TestProviderOptions(t *testing.T) {
	options := GetProviderOptions(true)
	assert.Contains(t, options, "Test Provider")
	assert.Equal(t, "Skip", options[len(options)-1])

	info := GetProviderByDisplayName("Test Provider")
	require.NotNil(t, info)
	assert.Equal(t, "test-provider", info.Name)
	assert.Nil(t, GetProviderByDisplayName("Nope"))
}

func TestModelOptions(t *testing.T) {
	options := GetModelOptions("test-provider")
	assert.Equal(t, []string{"small - Fast (recommended)", "large"}, options)
	assert.Equal(t, "small", GetModelIDFromOption("test-provider", options[0]))
	assert.Equal(t, "large", GetModelIDFromOption("test-provider", "large"))
	assert.Empty(t, GetModelIDFromOption("test-provider", "missing"))
	assert.Nil(t, GetModelOptions("unknown"))
}

func TestValidateAPIKey(t *testing.T) {
	assert.True(t, RequiresAPIKey("test-provider"))
	assert.Equal(t, "TEST_KEY", GetAPIKeyEnvVar("test-provider"))
	assert.NoError(t, ValidateAPIKey("test-provider", "tk-123"))
	assert.ErrorContains(t, ValidateAPIKey("test-provider", ""), "cannot be empty")
	assert.ErrorContains(t, ValidateAPIKey("test-provider", "sk-123"), "should start with 'tk-'")
	assert.NoError(t, ValidateAPIKey("failing-provider", ""))
	assert.Error(t, ValidateAPIKey("unknown", "x"))
}
