package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"LLM_PROVIDER", "LLM_MODEL", "OLLAMA_HOST", "FILLIN_PORT", "FILLIN_DATA_DIR", "FILLIN_STORAGE", "FILLIN_CHROME_BIN"} {
		t.Setenv(k, "")
	}
}

func TestLoadFromDir(t *testing.T) {
	t.Run("missing file yields defaults", func(t *testing.T) {
		clearEnv(t)
		cfg, err := LoadFromDir(t.TempDir())
		require.NoError(t, err)

		assert.Equal(t, DefaultPort, cfg.Server.Port)
		assert.Equal(t, "json", cfg.Storage.Driver)
		assert.Equal(t, 2*time.Second, cfg.Sandbox.Timeout())
		assert.Equal(t, 60*time.Second, cfg.Synthesis.Timeout())
		assert.Equal(t, 10, cfg.Synthesis.ExampleLimit)
		assert.Equal(t, 800, cfg.Synthesis.MaxTokens)
		assert.Equal(t, 30*time.Second, cfg.PDF.Timeout())
	})

	t.Run("json file", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
			[]byte(`{"llm":{"provider":"openaiapi","model":"gpt-4o-mini"},"server":{"port":9000},"sandbox":{"fetch_allow_hosts":["api.example.com"]}}`), 0644))

		cfg, err := LoadFromDir(dir)
		require.NoError(t, err)
		assert.Equal(t, "openaiapi", cfg.LLM.Provider)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, []string{"api.example.com"}, cfg.Sandbox.FetchAllowHosts)
	})

	t.Run("yaml file", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
			[]byte("llm:\n  provider: ollama\n  host: http://gpu:11434\nstorage:\n  driver: sqlite\n"), 0644))

		cfg, err := LoadFromDir(dir)
		require.NoError(t, err)
		assert.Equal(t, "ollama", cfg.LLM.Provider)
		assert.Equal(t, "http://gpu:11434", cfg.LLM.Host)
		assert.Equal(t, "sqlite", cfg.Storage.Driver)
	})

	t.Run("environment overrides file values", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"llm":{"provider":"openaiapi"}}`), 0644))
		t.Setenv("LLM_PROVIDER", "gemini")
		t.Setenv("FILLIN_PORT", "8123")

		cfg, err := LoadFromDir(dir)
		require.NoError(t, err)
		assert.Equal(t, "gemini", cfg.LLM.Provider)
		assert.Equal(t, 8123, cfg.Server.Port)
	})

	t.Run("bad port", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("FILLIN_PORT", "eighty")
		_, err := LoadFromDir(t.TempDir())
		assert.Error(t, err)
	})

	t.Run("invalid json", func(t *testing.T) {
		clearEnv(t)
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{`), 0644))
		_, err := LoadFromDir(dir)
		assert.ErrorContains(t, err, "invalid config file")
	})
}

func TestSaveToDir(t *testing.T) {
	clearEnv(t)
	dir := filepath.Join(t.TempDir(), ".fillin")
	cfg := Default()
	cfg.LLM.Provider = "openaiapi"

	require.NoError(t, SaveToDir(dir, cfg))

	loaded, err := LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
