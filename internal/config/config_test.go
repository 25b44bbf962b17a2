package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:4000", cfg.Address())
	assert.Equal(t, []string{"us."}, cfg.InferenceProfilePrefixes)
	assert.Empty(t, cfg.AnthropicBetaWhitelist)
	assert.Equal(t, int64(10<<20), cfg.MaxRequestBytes)
	assert.Equal(t, 15*time.Second, cfg.PingInterval())
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout())
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Port)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
host = "0.0.0.0"
port = 8080
anthropic_beta_whitelist = ["context-1m-2025-08-07"]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Address())
	assert.Equal(t, []string{"context-1m-2025-08-07"}, cfg.AnthropicBetaWhitelist)
	// Unset keys keep their defaults.
	assert.Equal(t, []string{"us."}, cfg.InferenceProfilePrefixes)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("not toml ==="), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("CONVERSE_PROXY_PORT", "9000")
	t.Setenv("CONVERSE_PROXY_INFERENCE_PROFILE_PREFIXES", "us., eu.")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, []string{"us.", "eu."}, cfg.InferenceProfilePrefixes)
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("CONVERSE_PROXY_PORT", "0")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}
