// Package config loads the project configuration from .fillin/.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DirName is the project directory holding configuration, secrets and data.
	DirName = ".fillin"

	jsonFile = "config.json"
	yamlFile = "config.yaml"
	envFile  = ".env"

	DefaultPort          = 8000
	DefaultStorage       = "json"
	DefaultSandboxMillis = 2000
	DefaultSynthSeconds  = 60
	DefaultExampleLimit  = 10
	DefaultMaxTokens     = 800
	DefaultPDFSeconds    = 30
)

// ProjectConfig represents the .fillin/config.json structure.
type ProjectConfig struct {
	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Sandbox   SandboxConfig   `json:"sandbox" yaml:"sandbox"`
	Synthesis SynthesisConfig `json:"synthesis" yaml:"synthesis"`
	PDF       PDFConfig       `json:"pdf" yaml:"pdf"`
}

// LLMConfig holds LLM provider settings
type LLMConfig struct {
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"` // "openaiapi", "gemini", "ollama"
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
	Host     string `json:"host,omitempty" yaml:"host,omitempty"` // ollama base URL
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host string `json:"host,omitempty" yaml:"host,omitempty"`
	Port int    `json:"port,omitempty" yaml:"port,omitempty"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver  string `json:"driver,omitempty" yaml:"driver,omitempty"` // "json" or "sqlite"
	DataDir string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`
}

// SandboxConfig bounds rule evaluation
type SandboxConfig struct {
	TimeoutMillis   int               `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	Packages        []string          `json:"packages,omitempty" yaml:"packages,omitempty"`
	FetchAllowHosts []string          `json:"fetch_allow_hosts,omitempty" yaml:"fetch_allow_hosts,omitempty"`
	MaxFetchBytes   int64             `json:"max_fetch_bytes,omitempty" yaml:"max_fetch_bytes,omitempty"`
	Resources       map[string]string `json:"resources,omitempty" yaml:"resources,omitempty"`
}

// SynthesisConfig tunes remote rule synthesis
type SynthesisConfig struct {
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	ExampleLimit   int `json:"example_limit,omitempty" yaml:"example_limit,omitempty"`
	MaxTokens      int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// PDFConfig locates the headless browser used for PDF output
type PDFConfig struct {
	ChromeBin      string `json:"chrome_bin,omitempty" yaml:"chrome_bin,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// Timeout returns the per-document budget.
func (c PDFConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the per-evaluation budget.
func (c SandboxConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMillis) * time.Millisecond
}

// Timeout returns the per-request budget.
func (c SynthesisConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Default returns the configuration used when no file exists.
func Default() *ProjectConfig {
	cfg := &ProjectConfig{}
	cfg.applyDefaults()
	return cfg
}

// GetProjectConfigPath returns the path to .fillin/config.json
func GetProjectConfigPath() string {
	return filepath.Join(DirName, jsonFile)
}

// GetProjectEnvPath returns the path to .fillin/.env
func GetProjectEnvPath() string {
	return filepath.Join(DirName, envFile)
}

// LoadProjectConfig loads .fillin/config.json (or config.yaml) and applies
// environment overrides.
func LoadProjectConfig() (*ProjectConfig, error) {
	return LoadFromDir(DirName)
}

// LoadFromDir loads the configuration stored in dir. A missing file yields
// the defaults. Environment variables take precedence over file values.
func LoadFromDir(dir string) (*ProjectConfig, error) {
	cfg := &ProjectConfig{}

	if data, err := os.ReadFile(filepath.Join(dir, jsonFile)); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	} else if data, err := os.ReadFile(filepath.Join(dir, yamlFile)); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// SaveProjectConfig writes cfg to .fillin/config.json
func SaveProjectConfig(cfg *ProjectConfig) error {
	return SaveToDir(DirName, cfg)
}

// SaveToDir writes cfg as JSON into dir.
func SaveToDir(dir string, cfg *ProjectConfig) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, jsonFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// UpdateProjectConfigLLM updates only the LLM section of project config
func UpdateProjectConfigLLM(provider, model string) error {
	cfg, err := LoadProjectConfig()
	if err != nil {
		cfg = Default()
	}

	cfg.LLM.Provider = provider
	cfg.LLM.Model = model

	return SaveProjectConfig(cfg)
}

// ProjectConfigExists checks if .fillin/config.json exists
func ProjectConfigExists() bool {
	_, err := os.Stat(GetProjectConfigPath())
	return err == nil
}

func (c *ProjectConfig) applyEnv() error {
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.LLM.Host = v
	}
	if v := os.Getenv("FILLIN_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FILLIN_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("FILLIN_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("FILLIN_STORAGE"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("FILLIN_CHROME_BIN"); v != "" {
		c.PDF.ChromeBin = v
	}
	return nil
}

func (c *ProjectConfig) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorage
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = filepath.Join(DirName, "data")
	}
	if c.Sandbox.TimeoutMillis == 0 {
		c.Sandbox.TimeoutMillis = DefaultSandboxMillis
	}
	if c.Synthesis.TimeoutSeconds == 0 {
		c.Synthesis.TimeoutSeconds = DefaultSynthSeconds
	}
	if c.Synthesis.ExampleLimit == 0 {
		c.Synthesis.ExampleLimit = DefaultExampleLimit
	}
	if c.Synthesis.MaxTokens == 0 {
		c.Synthesis.MaxTokens = DefaultMaxTokens
	}
	if c.PDF.TimeoutSeconds == 0 {
		c.PDF.TimeoutSeconds = DefaultPDFSeconds
	}
}
