package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
environment: staging
relay:
  base_url: https://relay.example.test
  origin_allowlist:
    - https://relay.example.test
rate_limit:
  messages_per_second: 5
`)
	require.NoError(t, os.WriteFile(path, content, 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "https://relay.example.test", cfg.Relay.BaseURL)
	assert.Equal(t, float64(5), cfg.RateLimit.MessagesPerSecond)
	// Defaults still fill in untouched sections.
	assert.Equal(t, "keychain", cfg.Vault.Type)
	assert.Equal(t, 12, cfg.Backoff.MaxFailures)
}

func TestLoadFromFileJSONFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := []byte(`{"environment":"production","vault":{"type":"file"}}`)
	require.NoError(t, os.WriteFile(path, content, 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "file", cfg.Vault.Type)
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := &Config{Environment: "development"}
	setDefaults(cfg)
	cfg.Relay.BaseURL = "https://relay.roundtrip.test"

	require.NoError(t, SaveToFile(cfg, path))

	reloaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Relay.BaseURL, reloaded.Relay.BaseURL)
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, time.Hour, cfg.Session.MaxAge)
	assert.Equal(t, 500, cfg.RateLimit.MaxTrackedPeers)
	assert.Equal(t, "json", cfg.Logging.Format)
}
