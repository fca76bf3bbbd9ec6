package vault

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commands-run/desktop-agent/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewLogger(io.Discard, logger.ErrorLevel)
}

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	dir := t.TempDir()
	cfg := Config{
		ConfigPath: filepath.Join(dir, "config.json"),
		BundlePath: filepath.Join(dir, "vault.bundle"),
	}
	v, err := New(cfg, NewOSKeychainProvider(), NewSoftwareProvider([]byte("test-machine-secret")), testLogger())
	require.NoError(t, err)
	assert.True(t, v.Degraded(), "os keychain is never available in this build, so New must fall back")
	return v
}

func TestVaultSecureThenRestoreRoundTrip(t *testing.T) {
	v := newTestVault(t)
	secrets := Secrets{
		AccessToken:     "access-123",
		RefreshToken:    "refresh-456",
		IdentityKeySeed: "seed-789",
	}

	require.NoError(t, v.Secure(secrets, json.RawMessage(`{"device_name":"laptop"}`)))

	restored, err := v.Restore()
	require.NoError(t, err)
	assert.Equal(t, secrets, restored)
}

func TestVaultSecureRedactsConfigOnDisk(t *testing.T) {
	v := newTestVault(t)
	secrets := Secrets{AccessToken: "access-123", RefreshToken: "refresh-456", IdentityKeySeed: "seed-789"}
	require.NoError(t, v.Secure(secrets, nil))

	raw, err := readRaw(v.cfg.ConfigPath)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "access-123")
	assert.NotContains(t, string(raw), "refresh-456")
	assert.NotContains(t, string(raw), "seed-789")
	assert.Contains(t, string(raw), redacted)
}

func TestVaultResecurePreservesRestPayload(t *testing.T) {
	v := newTestVault(t)
	rest := json.RawMessage(`{"device_name":"laptop"}`)
	require.NoError(t, v.Secure(Secrets{AccessToken: "a1"}, rest))

	require.NoError(t, v.Resecure(Secrets{AccessToken: "a2"}))

	restored, err := v.Restore()
	require.NoError(t, err)
	assert.Equal(t, "a2", restored.AccessToken)

	raw, err := readRaw(v.cfg.ConfigPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"device_name":"laptop"`)
}

func TestNewFailsWhenNoProviderAvailable(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{ConfigPath: filepath.Join(dir, "config.json"), BundlePath: filepath.Join(dir, "vault.bundle")}
	_, err := New(cfg, NewOSKeychainProvider(), NewSoftwareProvider(nil), testLogger())
	assert.Error(t, err)
}

func readRaw(path string) ([]byte, error) {
	return os.ReadFile(path)
}
