package profile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDraft(workspace string) Draft {
	return Draft{
		DisplayName:       "My Laptop",
		DeviceName:        "My Laptop",
		Provider:          ProviderLocal,
		Model:             "claude",
		PermissionProfile: PermissionDevSafe,
		GatewayURL:        "https://relay.example.com",
		WorkspacePath:     workspace,
	}
}

func TestStoreCreateAssignsValidIdentifiers(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	p, err := s.Create(testDraft(filepath.Join(dir, "workspace")), nil)
	require.NoError(t, err)

	assert.Regexp(t, `^profile_\d+_[0-9a-f]{8}$`, p.ID)
	assert.Regexp(t, `^dev_[a-f0-9]{32}$`, p.DeviceID)
	assert.Equal(t, "my-laptop", p.DeviceName)
	assert.True(t, filepath.IsAbs(p.AuditLogPath))
}

func TestStoreCreateDisambiguatesDeviceNameSlug(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	p1, err := s.Create(testDraft(filepath.Join(dir, "ws1")), nil)
	require.NoError(t, err)
	p2, err := s.Create(testDraft(filepath.Join(dir, "ws2")), []string{p1.DeviceName})
	require.NoError(t, err)

	assert.Equal(t, "my-laptop", p1.DeviceName)
	assert.Equal(t, "my-laptop-2", p2.DeviceName)
}

func TestStoreCreateRejectsRelativeWorkspacePath(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	_, err := s.Create(testDraft("relative/workspace"), nil)
	assert.Error(t, err)
}

func TestStoreCreateRejectsAuditLogPathOutsideProfileDir(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	draft := testDraft(filepath.Join(dir, "workspace"))
	draft.AuditLogPath = filepath.Join(dir, "..", "escaped.log")

	_, err := s.Create(draft, nil)
	assert.Error(t, err)
}

func TestStoreLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	created, err := s.Create(testDraft(filepath.Join(dir, "workspace")), nil)
	require.NoError(t, err)

	loaded, err := s.Load(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.DeviceID, loaded.DeviceID)
	assert.Equal(t, created.WorkspacePath, loaded.WorkspacePath)
}

func TestStoreUpdatePreservesIdentityFields(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	created, err := s.Create(testDraft(filepath.Join(dir, "workspace")), nil)
	require.NoError(t, err)

	mutated := *created
	mutated.ID = "attacker-controlled"
	mutated.DeviceID = "dev_00000000000000000000000000000000"
	mutated.DisplayName = "Renamed"
	mutated.CreatedAt = time.Now().Add(24 * time.Hour)

	require.NoError(t, s.Update(&mutated))

	reloaded, err := s.Load(created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.DeviceID, reloaded.DeviceID)
	assert.Equal(t, created.CreatedAt.Unix(), reloaded.CreatedAt.Unix())
	assert.Equal(t, "Renamed", reloaded.DisplayName)
}

func TestStoreDeleteRemovesProfileDirectory(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	created, err := s.Create(testDraft(filepath.Join(dir, "workspace")), nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete(created.ID))
	_, err = s.Load(created.ID)
	assert.Error(t, err)
}

func TestSlugifyTruncatesAndStripsDisallowedCharacters(t *testing.T) {
	got := slugify("  Weird!! Name__ With Spaces and a really long device name indeed ")
	assert.LessOrEqual(t, len(got), 32)
	assert.Regexp(t, `^[a-z0-9-]+$`, got)
}
