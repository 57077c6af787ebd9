// Package llm provides a unified interface for LLM providers.
package llm

import "context"

// Provider is the interface for LLM providers.
type Provider interface {
	// Execute sends a request and returns the parsed response.
	Execute(ctx context.Context, req Request, format ResponseFormat) (string, error)
	// Name returns the provider name.
	Name() string
	// Close releases any resources held by the provider.
	Close() error
}

// RawProvider is the interface for provider implementations.
// The registry wraps every RawProvider with parsing logic.
type RawProvider interface {
	// ExecuteRaw sends a request and returns the raw (unparsed) response.
	ExecuteRaw(ctx context.Context, req Request) (string, error)
	// Name returns the provider name.
	Name() string
	// Close releases any resources held by the provider.
	Close() error
}

// Request is a single completion request.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int     // 0 uses the provider default
	Temperature float64 // sent as-is, 0 is deterministic
}

// ResponseFormat specifies the expected response format.
type ResponseFormat string

const (
	Text ResponseFormat = "text"
	// Code strips a surrounding markdown code fence and its language line.
	Code ResponseFormat = "code"
)

// String returns the string representation of the format.
func (f ResponseFormat) String() string {
	return string(f)
}

// Config holds LLM provider configuration.
type Config struct {
	Provider string // "openaiapi", "gemini", "ollama"
	Model    string // Model name (optional, uses provider default)
	Host     string // Base URL for self-hosted providers
	Verbose  bool   // Enable verbose logging
}

// ModelInfo describes a model available for a provider.
type ModelInfo struct {
	ID          string // Internal model identifier (e.g., "gpt-4o-mini")
	DisplayName string // Human-readable name for UI
	Description string // Short description
	Recommended bool   // Default/recommended model flag
}

// APIKeyConfig describes API key requirements for a provider.
type APIKeyConfig struct {
	Required   bool   // Whether this provider requires an API key
	EnvVarName string // Environment variable name (e.g., "OPENAI_API_KEY")
	Prefix     string // Expected prefix for validation (e.g., "sk-")
}

// ProviderInfo contains provider metadata.
type ProviderInfo struct {
	Name         string
	DisplayName  string
	DefaultModel string
	Available    bool
	Models       []ModelInfo  // Available models for this provider
	APIKey       APIKeyConfig // API key configuration
}
