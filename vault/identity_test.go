package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureIdentityThenRestoreRoundTrip(t *testing.T) {
	v := newTestVault(t)
	identity, err := GenerateIdentity()
	require.NoError(t, err)

	require.NoError(t, v.SecureIdentity(Secrets{AccessToken: "a1"}, identity))

	restored, err := v.RestoreIdentity()
	require.NoError(t, err)
	assert.Equal(t, identity.PrivateKey, restored.PrivateKey)
	assert.Equal(t, identity.PublicKeyRaw, []byte(restored.PublicKeyRaw))
}

func TestRotateProducesDifferentIdentity(t *testing.T) {
	v := newTestVault(t)
	first, err := GenerateIdentity()
	require.NoError(t, err)
	require.NoError(t, v.SecureIdentity(Secrets{AccessToken: "a1"}, first))

	rotated, err := v.Rotate(Secrets{AccessToken: "a1"}, testLogger())
	require.NoError(t, err)
	assert.NotEqual(t, first.PublicKeyRaw, rotated.PublicKeyRaw)

	restored, err := v.RestoreIdentity()
	require.NoError(t, err)
	assert.Equal(t, rotated.PublicKeyRaw, []byte(restored.PublicKeyRaw))
}

func TestGenerateIdentityProducesValidKeyLength(t *testing.T) {
	identity, err := GenerateIdentity()
	require.NoError(t, err)
	assert.Len(t, identity.PublicKeyRaw, 32)
}
