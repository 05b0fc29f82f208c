package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("absent.yaml")
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Generation.MaxAttempts)
	assert.Equal(t, "fallback", cfg.Generation.OnExhausted)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  env: production
  request_timeout: 30s
ai:
  provider: openai
  model: gpt-4o-mini
generation:
  initial_backoff: 250ms
  on_exhausted: fail
practice:
  practitioner: Dr. Claire Dubois
  city: Lyon
`), 0o644))

	t.Setenv("CONSULTDOC_API_KEY", "secret")
	t.Setenv("CONSULTDOC_AI_PROVIDER", "gemini")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, "gemini", cfg.AI.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.Model)
	assert.Equal(t, "secret", cfg.AI.APIKey)
	assert.Equal(t, 250*time.Millisecond, cfg.Generation.InitialBackoff)
	assert.Equal(t, "fail", cfg.Generation.OnExhausted)
	assert.Equal(t, "Dr. Claire Dubois", cfg.Practice.Practitioner)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.Generation.MaxAttempts)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.AI.Provider = "mistral"
	cfg.Generation.OnExhausted = "retry"
	cfg.Generation.MaxAttempts = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ai.provider")
	assert.Contains(t, err.Error(), "on_exhausted")
	assert.Contains(t, err.Error(), "max_attempts")
}

func TestValidate_MaxAttemptsIsFixed(t *testing.T) {
	for _, n := range []int{1, 2, 4, 10} {
		cfg := Default()
		cfg.Generation.MaxAttempts = n
		err := cfg.Validate()
		require.Error(t, err, n)
		assert.Contains(t, err.Error(), "max_attempts must be 3")
	}
	assert.NoError(t, Default().Validate())
}
