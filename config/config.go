// Package config loads pmcopilot settings from ~/.pmcopilot/config.yaml,
// overridden by PMCOPILOT_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config holds all settings of a pmcopilot installation.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Retention RetentionConfig `mapstructure:"retention"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type DatabaseConfig struct {
	// Path is the SQLite file holding conversations.
	Path string `mapstructure:"path"`
	// FleetPath is the SQLite file holding machines and diagnostics.
	// Empty means Path.
	FleetPath string `mapstructure:"fleet_path"`
}

type ProvidersConfig struct {
	Primary   ProviderConfig `mapstructure:"primary"`
	Secondary ProviderConfig `mapstructure:"secondary"`
}

// ProviderConfig describes one provider tier. Models are tried in order.
type ProviderConfig struct {
	Kind            string   `mapstructure:"kind"`
	Name            string   `mapstructure:"name"`
	APIKey          string   `mapstructure:"api_key"`
	Endpoint        string   `mapstructure:"endpoint"`
	Models          []string `mapstructure:"models"`
	MaxOutputTokens int      `mapstructure:"max_output_tokens"`
}

// Enabled reports whether the tier should be attempted at all.
func (p ProviderConfig) Enabled() bool {
	return p.APIKey != "" && len(p.Models) > 0
}

type GatewayConfig struct {
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	Breaker        BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	OpenTimeout  time.Duration `mapstructure:"open_timeout"`
}

type RetentionConfig struct {
	Conversations time.Duration `mapstructure:"conversations"`
	Sessions      time.Duration `mapstructure:"sessions"`
	Schedule      string        `mapstructure:"schedule"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

var defaults = map[string]any{
	"database.path":                         "~/.pmcopilot/pmcopilot.db",
	"database.fleet_path":                   "",
	"providers.primary.kind":                ProviderGemini,
	"providers.primary.name":                "gemini",
	"providers.primary.api_key":             "",
	"providers.primary.endpoint":            "",
	"providers.primary.models":              []string{"gemini-2.5-flash", "gemini-2.0-flash", "gemini-1.5-flash"},
	"providers.primary.max_output_tokens":   4096,
	"providers.secondary.kind":              ProviderOpenAI,
	"providers.secondary.name":              "groq",
	"providers.secondary.api_key":           "",
	"providers.secondary.endpoint":          "https://api.groq.com/openai/v1",
	"providers.secondary.models":            []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"},
	"providers.secondary.max_output_tokens": 4096,
	"gateway.attempt_timeout":               "30s",
	"gateway.breaker.enabled":               false,
	"gateway.breaker.min_requests":          5,
	"gateway.breaker.failure_ratio":         0.8,
	"gateway.breaker.open_timeout":          "60s",
	"retention.conversations":               "720h",
	"retention.sessions":                    "30m",
	"retention.schedule":                    "@every 1h",
	"log.level":                             "info",
	"metrics.addr":                          "",
}

// credential env vars honored when the PMCOPILOT_ form is not set
var credentialEnv = map[string]string{
	"providers.primary.api_key":   "GEMINI_API_KEY",
	"providers.secondary.api_key": "GROQ_API_KEY",
}

// DefaultPath returns ~/.pmcopilot/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".pmcopilot", "config.yaml"), nil
}

// Load reads the configuration from the default location, creating it if needed.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(afero.NewOsFs(), path)
}

// LoadFromPath reads configuration from path on fs and merges environment
// overrides. If the file does not exist it is written with default values.
func LoadFromPath(fs afero.Fs, path string) (*Config, error) {
	path = expandPath(path)

	v := viper.New()
	v.SetFs(fs)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if !exists {
		if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		// written before env binding so credentials never end up on disk
		if err := v.WriteConfigAs(path); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
	}

	// Example: PMCOPILOT_PROVIDERS_PRIMARY_API_KEY
	v.SetEnvPrefix("PMCOPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, fallback := range credentialEnv {
		envKey := "PMCOPILOT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, fallback); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Database.Path = expandPath(cfg.Database.Path)
	if cfg.Database.FleetPath == "" {
		cfg.Database.FleetPath = cfg.Database.Path
	}
	cfg.Database.FleetPath = expandPath(cfg.Database.FleetPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values no component can work with.
func (c *Config) Validate() error {
	for name, p := range map[string]ProviderConfig{"primary": c.Providers.Primary, "secondary": c.Providers.Secondary} {
		if p.Kind != ProviderGemini && p.Kind != ProviderOpenAI {
			return fmt.Errorf("providers.%s.kind must be %q or %q, got %q", name, ProviderGemini, ProviderOpenAI, p.Kind)
		}
	}
	if c.Gateway.AttemptTimeout < 0 {
		return fmt.Errorf("gateway.attempt_timeout cannot be negative")
	}
	if r := c.Gateway.Breaker.FailureRatio; c.Gateway.Breaker.Enabled && (r <= 0 || r > 1) {
		return fmt.Errorf("gateway.breaker.failure_ratio must be in (0, 1], got %v", r)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", c.Log.Level)
	}
	if c.Retention.Schedule == "" {
		return fmt.Errorf("retention.schedule cannot be empty")
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
