package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(LoaderOptions{
		ConfigDir:  "testdata-does-not-exist",
		DotEnvPath: "",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.Environment)
	assert.NotNil(t, cfg.Relay)
	assert.NotEmpty(t, cfg.Relay.OriginAllowlist)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, 20, cfg.Session.MaxConcurrent)
}

func TestLoadForEnvironment(t *testing.T) {
	for _, env := range []string{"development", "staging", "production"} {
		t.Run(env, func(t *testing.T) {
			cfg, err := LoadForEnvironment(env)
			require.NoError(t, err)
			assert.Equal(t, env, cfg.Environment)
		})
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	os.Setenv("DESKTOP_RELAY_BASE_URL", "https://relay.override.test")
	os.Setenv("DESKTOP_LOG_LEVEL", "debug")
	defer os.Unsetenv("DESKTOP_RELAY_BASE_URL")
	defer os.Unsetenv("DESKTOP_LOG_LEVEL")

	cfg, err := Load(LoaderOptions{ConfigDir: "testdata-does-not-exist"})
	require.NoError(t, err)

	assert.Equal(t, "https://relay.override.test", cfg.Relay.BaseURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestMustLoadDoesNotPanicWithoutConfigFile(t *testing.T) {
	// MustLoad itself never returns an error path today since Load
	// always falls back to defaults; this documents that contract.
	assert.NotPanics(t, func() {
		MustLoad(LoaderOptions{ConfigDir: "testdata-does-not-exist"})
	})
}
