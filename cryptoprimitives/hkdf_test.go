package cryptoprimitives

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHKDFSHA256ExpandDeterministic(t *testing.T) {
	ikm := []byte("shared-secret-bytes-32-long-xxx!")
	salt := []byte("transcript-hash")
	info := []byte(sessionKeyInfo)

	a, err := HKDFSHA256Expand(ikm, salt, info, 96)
	require.NoError(t, err)
	b, err := HKDFSHA256Expand(ikm, salt, info, 96)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 96)
}

func TestHKDFSHA256ExpandDiffersBySalt(t *testing.T) {
	ikm := []byte("shared-secret")
	info := []byte(sessionKeyInfo)

	a, err := HKDFSHA256Expand(ikm, []byte("salt-one"), info, 32)
	require.NoError(t, err)
	b, err := HKDFSHA256Expand(ikm, []byte("salt-two"), info, 32)
	require.NoError(t, err)

	assert.False(t, bytes.Equal(a, b))
}

func TestDeriveSessionKeysSplitsThreeWays(t *testing.T) {
	sharedSecret := []byte("ecdh-shared-secret-material")
	transcriptHash := []byte("transcript-hash-bytes")

	keys, err := DeriveSessionKeys(sharedSecret, transcriptHash)
	require.NoError(t, err)

	assert.NotEqual(t, keys.ClientToAgent, keys.AgentToClient)
	assert.NotEqual(t, keys.ClientToAgent, keys.Control)
	assert.NotEqual(t, keys.AgentToClient, keys.Control)

	keys2, err := DeriveSessionKeys(sharedSecret, transcriptHash)
	require.NoError(t, err)
	assert.Equal(t, keys.ClientToAgent, keys2.ClientToAgent)
	assert.Equal(t, keys.AgentToClient, keys2.AgentToClient)
	assert.Equal(t, keys.Control, keys2.Control)
}

func TestSessionKeysZero(t *testing.T) {
	keys, err := DeriveSessionKeys([]byte("ikm"), []byte("salt"))
	require.NoError(t, err)

	keys.Zero()

	var zero [32]byte
	assert.Equal(t, zero, keys.ClientToAgent)
	assert.Equal(t, zero, keys.AgentToClient)
	assert.Equal(t, zero, keys.Control)
}
