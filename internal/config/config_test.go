package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Detection.RequestBudget)
	assert.Equal(t, 3*time.Second, cfg.Detection.EmbedTimeout)
	assert.Equal(t, 10000, cfg.Detection.MemoCapacity)
	assert.Equal(t, 168*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "memory", cfg.RateLimit.Store)
	assert.Equal(t, 100, cfg.RateLimit.FreeLimit)
	assert.False(t, cfg.Detection.EnableTier3)

	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.yaml")
	body := `
server:
  port: 9090
detection:
  enable_tier3: true
rate_limit:
  enabled: true
  pro_limit: 500
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Detection.EnableTier3)
	assert.Equal(t, 500, cfg.RateLimit.ProLimit)
	// Unset fields still get defaults.
	assert.Equal(t, 5*time.Second, cfg.Detection.RequestBudget)
	assert.Equal(t, "ollama", cfg.Detection.Embedding.Provider)
	assert.Equal(t, 10000, cfg.RateLimit.EnterpriseLimit)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WARDEN_GROQ_API_KEY", "gsk_test")
	t.Setenv("WARDEN_JWT_SECRET", "s3cret")
	t.Setenv("WARDEN_GEMINI_API_KEY", "AIza_test")

	cfg := DefaultConfig()
	cfg.applyEnvOverrides()

	assert.Equal(t, "gsk_test", cfg.Providers.GroqAPIKey)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "AIza_test", cfg.Providers.GeminiAPIKey)
	// Gemini key doubles as the embedding key when none is set.
	assert.Equal(t, "AIza_test", cfg.Detection.Embedding.GenAIAPIKey)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = -1 }},
		{"bad store", func(c *Config) { c.RateLimit.Store = "dynamo" }},
		{"bad embedding provider", func(c *Config) { c.Detection.Embedding.Provider = "openai" }},
		{"embed timeout over budget", func(c *Config) { c.Detection.EmbedTimeout = 10 * time.Second }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
