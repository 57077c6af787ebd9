package llm

import (
	"fmt"

	"github.com/DevSymphony/fillin/internal/config"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider is required (configure in .fillin/config.json or set LLM_PROVIDER)")
	}
	if _, ok := providers[c.Provider]; !ok {
		return fmt.Errorf("unknown provider: %s (available: %s)", c.Provider, availableProviders())
	}
	return nil
}

// ConfigFrom builds a provider configuration from the project settings.
// API keys are resolved by each provider from the environment or .fillin/.env.
func ConfigFrom(cfg config.LLMConfig, verbose bool) Config {
	return Config{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		Host:     cfg.Host,
		Verbose:  verbose,
	}
}
