package atomicfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name string `json:"name"`
}

func TestWriteJSONThenReadJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sample.json")

	require.NoError(t, WriteJSON(path, sample{Name: "alpha"}, 0600))

	var out sample
	require.NoError(t, ReadJSON(path, &out))
	assert.Equal(t, "alpha", out.Name)
}

func TestWriteJSONOverwritesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.json")

	require.NoError(t, WriteJSON(path, sample{Name: "first"}, 0600))
	require.NoError(t, WriteJSON(path, sample{Name: "second"}, 0600))

	var out sample
	require.NoError(t, ReadJSON(path, &out))
	assert.Equal(t, "second", out.Name)
}

func TestWriteJSONLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.json")
	require.NoError(t, WriteJSON(path, sample{Name: "alpha"}, 0600))

	entries, err := filepath.Glob(filepath.Join(dir, ".atomic-*"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
