package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads a .env file into the process environment, if present.
// Missing files are not an error; this is a convenience for local dev.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// envVarPattern matches ${VAR} or ${VAR:default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// SubstituteEnvVars replaces ${VAR} or ${VAR:default} with environment
// variable values.
func SubstituteEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		value := os.Getenv(varName)
		if value == "" {
			return defaultValue
		}
		return value
	})
}

// SubstituteEnvVarsInConfig recursively substitutes environment
// variables in every string field of cfg that supports it.
func SubstituteEnvVarsInConfig(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Relay != nil {
		cfg.Relay.BaseURL = SubstituteEnvVars(cfg.Relay.BaseURL)
		cfg.Relay.BearerTokenEnv = SubstituteEnvVars(cfg.Relay.BearerTokenEnv)
	}
	if cfg.Vault != nil {
		cfg.Vault.Directory = SubstituteEnvVars(cfg.Vault.Directory)
		cfg.Vault.PassphraseEnv = SubstituteEnvVars(cfg.Vault.PassphraseEnv)
	}
	if cfg.Logging != nil {
		cfg.Logging.Level = SubstituteEnvVars(cfg.Logging.Level)
		cfg.Logging.Format = SubstituteEnvVars(cfg.Logging.Format)
		cfg.Logging.Output = SubstituteEnvVars(cfg.Logging.Output)
	}
	if cfg.Metrics != nil {
		cfg.Metrics.Addr = SubstituteEnvVars(cfg.Metrics.Addr)
		cfg.Metrics.Path = SubstituteEnvVars(cfg.Metrics.Path)
	}
}

// GetEnvironment returns the current environment from DESKTOP_ENV or
// ENVIRONMENT, defaulting to "development".
func GetEnvironment() string {
	env := os.Getenv("DESKTOP_ENV")
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	if env == "" {
		env = "development"
	}
	return strings.ToLower(env)
}

// IsProduction reports whether the current environment is production.
func IsProduction() bool {
	return GetEnvironment() == "production"
}

// IsDevelopment reports whether the current environment is development or local.
func IsDevelopment() bool {
	env := GetEnvironment()
	return env == "development" || env == "local"
}

// applyEnvironmentOverrides overrides cfg fields with explicit
// environment variables, which take priority over the YAML document.
func applyEnvironmentOverrides(cfg *Config) {
	if url := os.Getenv("DESKTOP_RELAY_BASE_URL"); url != "" && cfg.Relay != nil {
		cfg.Relay.BaseURL = url
	}
	if dir := os.Getenv("DESKTOP_VAULT_DIR"); dir != "" && cfg.Vault != nil {
		cfg.Vault.Directory = dir
	}
	if level := os.Getenv("DESKTOP_LOG_LEVEL"); level != "" && cfg.Logging != nil {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("DESKTOP_LOG_FORMAT"); format != "" && cfg.Logging != nil {
		cfg.Logging.Format = format
	}
	if os.Getenv("DESKTOP_METRICS_ENABLED") == "true" && cfg.Metrics != nil {
		cfg.Metrics.Enabled = true
	}
	if os.Getenv("DESKTOP_METRICS_ENABLED") == "false" && cfg.Metrics != nil {
		cfg.Metrics.Enabled = false
	}
}
