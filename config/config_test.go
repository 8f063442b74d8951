package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPath = "/home/test/.pmcopilot/config.yaml"

// clearCredentials keeps the host environment out of the tests.
func clearCredentials(t *testing.T) {
	for _, key := range []string{
		"GEMINI_API_KEY", "GROQ_API_KEY",
		"PMCOPILOT_PROVIDERS_PRIMARY_API_KEY", "PMCOPILOT_PROVIDERS_SECONDARY_API_KEY",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadWritesDefaults(t *testing.T) {
	clearCredentials(t)
	t.Setenv("GEMINI_API_KEY", "secret-gemini-key")
	fs := afero.NewMemMapFs()

	cfg, err := LoadFromPath(fs, testPath)
	require.NoError(t, err)

	assert.Equal(t, []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-1.5-flash"}, cfg.Providers.Primary.Models)
	assert.Equal(t, ProviderGemini, cfg.Providers.Primary.Kind)
	assert.Equal(t, "secret-gemini-key", cfg.Providers.Primary.APIKey)
	assert.True(t, cfg.Providers.Primary.Enabled())

	assert.Equal(t, ProviderOpenAI, cfg.Providers.Secondary.Kind)
	assert.Equal(t, "https://api.groq.com/openai/v1", cfg.Providers.Secondary.Endpoint)
	assert.Equal(t, []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"}, cfg.Providers.Secondary.Models)
	assert.False(t, cfg.Providers.Secondary.Enabled(), "no key, tier skipped")

	assert.Equal(t, 30*time.Second, cfg.Gateway.AttemptTimeout)
	assert.Equal(t, 720*time.Hour, cfg.Retention.Conversations)
	assert.Equal(t, 30*time.Minute, cfg.Retention.Sessions)
	assert.Equal(t, "@every 1h", cfg.Retention.Schedule)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, cfg.Database.Path, cfg.Database.FleetPath)

	written, err := afero.ReadFile(fs, testPath)
	require.NoError(t, err)
	assert.Contains(t, string(written), "gemini-2.5-flash")
	assert.NotContains(t, string(written), "secret-gemini-key", "credentials must not be written to disk")
}

func TestLoadReadsFile(t *testing.T) {
	clearCredentials(t)
	fs := afero.NewMemMapFs()
	yaml := `
database:
  path: /var/lib/pmcopilot/history.db
  fleet_path: /var/lib/pmcopilot/fleet.db
providers:
  primary:
    kind: openai
    name: local
    api_key: k1
    endpoint: http://localhost:8080/v1
    models: [qwen, mistral]
  secondary:
    kind: gemini
    api_key: ""
    models: []
gateway:
  attempt_timeout: 5s
  breaker:
    enabled: true
    min_requests: 3
    failure_ratio: 0.5
    open_timeout: 2m
retention:
  schedule: "0 3 * * *"
log:
  level: debug
`
	require.NoError(t, afero.WriteFile(fs, testPath, []byte(yaml), 0o644))

	cfg, err := LoadFromPath(fs, testPath)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/pmcopilot/history.db", cfg.Database.Path)
	assert.Equal(t, "/var/lib/pmcopilot/fleet.db", cfg.Database.FleetPath)
	assert.Equal(t, ProviderConfig{
		Kind: ProviderOpenAI, Name: "local", APIKey: "k1", Endpoint: "http://localhost:8080/v1",
		Models: []string{"qwen", "mistral"}, MaxOutputTokens: 4096,
	}, cfg.Providers.Primary)
	assert.False(t, cfg.Providers.Secondary.Enabled())
	assert.Equal(t, BreakerConfig{Enabled: true, MinRequests: 3, FailureRatio: 0.5, OpenTimeout: 2 * time.Minute}, cfg.Gateway.Breaker)
	assert.Equal(t, 5*time.Second, cfg.Gateway.AttemptTimeout)
	assert.Equal(t, "0 3 * * *", cfg.Retention.Schedule)
	assert.Equal(t, 720*time.Hour, cfg.Retention.Conversations, "unset keys keep their defaults")
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	clearCredentials(t)
	t.Setenv("GEMINI_API_KEY", "fallback")
	t.Setenv("PMCOPILOT_PROVIDERS_PRIMARY_API_KEY", "preferred")
	t.Setenv("GROQ_API_KEY", "groq-key")
	t.Setenv("PMCOPILOT_GATEWAY_ATTEMPT_TIMEOUT", "12s")
	t.Setenv("PMCOPILOT_LOG_LEVEL", "warn")

	cfg, err := LoadFromPath(afero.NewMemMapFs(), testPath)
	require.NoError(t, err)
	assert.Equal(t, "preferred", cfg.Providers.Primary.APIKey)
	assert.Equal(t, "groq-key", cfg.Providers.Secondary.APIKey)
	assert.Equal(t, 12*time.Second, cfg.Gateway.AttemptTimeout)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := map[string]string{
		"unknown provider kind": "providers:\n  primary:\n    kind: claude\n",
		"bad log level":         "log:\n  level: verbose\n",
		"bad breaker ratio":     "gateway:\n  breaker:\n    enabled: true\n    failure_ratio: 2\n",
	}
	for name, yaml := range tests {
		t.Run(name, func(t *testing.T) {
			clearCredentials(t)
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, testPath, []byte(yaml), 0o644))
			_, err := LoadFromPath(fs, testPath)
			assert.Error(t, err)
		})
	}
}
