package env

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadKeyFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nOPENAI_API_KEY=sk-abc\nGEMINI_API_KEY=\"g-123\"\n"), 0600))

	assert.Equal(t, "sk-abc", LoadKeyFromEnvFile(path, "OPENAI_API_KEY"))
	assert.Equal(t, "g-123", LoadKeyFromEnvFile(path, "GEMINI_API_KEY"))
	assert.Empty(t, LoadKeyFromEnvFile(path, "MISSING"))
	assert.Empty(t, LoadKeyFromEnvFile(filepath.Join(t.TempDir(), "nope"), "OPENAI_API_KEY"))
}

func TestSaveKeyToEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", ".env")

	t.Run("creates the file", func(t *testing.T) {
		require.NoError(t, SaveKeyToEnvFile(path, "OPENAI_API_KEY", "sk-1"))
		assert.Equal(t, "sk-1", LoadKeyFromEnvFile(path, "OPENAI_API_KEY"))
	})

	t.Run("replaces existing keys and keeps others", func(t *testing.T) {
		require.NoError(t, SaveKeyToEnvFile(path, "OTHER", "x"))
		require.NoError(t, SaveKeyToEnvFile(path, "OPENAI_API_KEY", "sk-2"))

		assert.Equal(t, "sk-2", LoadKeyFromEnvFile(path, "OPENAI_API_KEY"))
		assert.Equal(t, "x", LoadKeyFromEnvFile(path, "OTHER"))
	})
}

func TestGetAPIKeyPrefersEnvironment(t *testing.T) {
	t.Setenv("FILLIN_TEST_KEY", "from-env")
	assert.Equal(t, "from-env", GetAPIKey("FILLIN_TEST_KEY"))
}
