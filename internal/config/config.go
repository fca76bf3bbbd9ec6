// Package config loads the desktop agent's static configuration: the
// relay origin allowlist, reconnect backoff constants, rate-limit
// knobs, vault location, and logging/metrics settings. It layers a
// YAML document with environment variable overrides so operators can
// tune behavior without a rebuild.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Environment string           `yaml:"environment" json:"environment"`
	Relay       *RelayConfig     `yaml:"relay" json:"relay"`
	Backoff     *BackoffConfig   `yaml:"backoff" json:"backoff"`
	RateLimit   *RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Session     *SessionConfig   `yaml:"session" json:"session"`
	Vault       *VaultConfig     `yaml:"vault" json:"vault"`
	Logging     *LoggingConfig   `yaml:"logging" json:"logging"`
	Metrics     *MetricsConfig   `yaml:"metrics" json:"metrics"`
}

// RelayConfig configures the RelayClient's transport and trust boundary.
type RelayConfig struct {
	BaseURL         string   `yaml:"base_url" json:"base_url"`
	OriginAllowlist []string `yaml:"origin_allowlist" json:"origin_allowlist"`
	BearerTokenEnv  string   `yaml:"bearer_token_env" json:"bearer_token_env"`
	RequestTimeout  time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// BackoffConfig configures SSE reconnect backoff.
type BackoffConfig struct {
	InitialDelay   time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MaxDelay       time.Duration `yaml:"max_delay" json:"max_delay"`
	JitterFraction float64       `yaml:"jitter_fraction" json:"jitter_fraction"`
	MaxFailures    int           `yaml:"max_failures" json:"max_failures"`
}

// RateLimitConfig configures the per-device send-side token bucket.
type RateLimitConfig struct {
	MessagesPerSecond float64 `yaml:"messages_per_second" json:"messages_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
	MaxTrackedPeers   int     `yaml:"max_tracked_peers" json:"max_tracked_peers"`
}

// SessionConfig configures session lifecycle limits.
type SessionConfig struct {
	MaxAge             time.Duration `yaml:"max_age" json:"max_age"`
	IdleTimeout        time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxMessages        int           `yaml:"max_messages" json:"max_messages"`
	MaxConcurrent      int           `yaml:"max_concurrent" json:"max_concurrent"`
}

// VaultConfig configures the credential vault's storage location.
type VaultConfig struct {
	Type          string `yaml:"type" json:"type"` // keychain, file
	Directory     string `yaml:"directory" json:"directory"`
	PassphraseEnv string `yaml:"passphrase_env" json:"passphrase_env"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig configures the debug Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// LoadFromFile reads and parses a config document, trying YAML then JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile writes cfg to path, choosing format by extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if len(path) >= 5 && path[len(path)-5:] == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Relay == nil {
		cfg.Relay = &RelayConfig{}
	}
	if cfg.Relay.RequestTimeout == 0 {
		cfg.Relay.RequestTimeout = 30 * time.Second
	}
	if len(cfg.Relay.OriginAllowlist) == 0 {
		cfg.Relay.OriginAllowlist = []string{"https://relay.commands.run"}
	}

	if cfg.Backoff == nil {
		cfg.Backoff = &BackoffConfig{}
	}
	if cfg.Backoff.InitialDelay == 0 {
		cfg.Backoff.InitialDelay = time.Second
	}
	if cfg.Backoff.MaxDelay == 0 {
		cfg.Backoff.MaxDelay = 10 * time.Second
	}
	if cfg.Backoff.JitterFraction == 0 {
		cfg.Backoff.JitterFraction = 0.3
	}
	if cfg.Backoff.MaxFailures == 0 {
		cfg.Backoff.MaxFailures = 12
	}

	if cfg.RateLimit == nil {
		cfg.RateLimit = &RateLimitConfig{}
	}
	if cfg.RateLimit.MessagesPerSecond == 0 {
		cfg.RateLimit.MessagesPerSecond = 10
	}
	if cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 10
	}
	if cfg.RateLimit.MaxTrackedPeers == 0 {
		cfg.RateLimit.MaxTrackedPeers = 500
	}

	if cfg.Session == nil {
		cfg.Session = &SessionConfig{}
	}
	if cfg.Session.MaxAge == 0 {
		cfg.Session.MaxAge = time.Hour
	}
	if cfg.Session.IdleTimeout == 0 {
		cfg.Session.IdleTimeout = 10 * time.Minute
	}
	if cfg.Session.MaxMessages == 0 {
		cfg.Session.MaxMessages = 1000
	}
	if cfg.Session.MaxConcurrent == 0 {
		cfg.Session.MaxConcurrent = 20
	}

	if cfg.Vault == nil {
		cfg.Vault = &VaultConfig{}
	}
	if cfg.Vault.Type == "" {
		cfg.Vault.Type = "keychain"
	}
	if cfg.Vault.Directory == "" {
		cfg.Vault.Directory = "~/.commands-agent/keys"
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{}
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}
