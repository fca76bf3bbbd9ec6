package cryptoprimitives

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commands-run/desktop-agent/internal/errs"
)

func TestGenerateX25519Pair(t *testing.T) {
	kp, err := GenerateX25519Pair()
	require.NoError(t, err)
	assert.Len(t, kp.RawPublic(), X25519PublicKeySize)
}

func TestX25519EncodeDecodeRoundTrip(t *testing.T) {
	kp, err := GenerateX25519Pair()
	require.NoError(t, err)

	encoded, err := EncodeX25519Public(kp.RawPublic())
	require.NoError(t, err)
	assert.Len(t, encoded, 12+X25519PublicKeySize)

	decoded, err := DecodeX25519Public(encoded)
	require.NoError(t, err)
	assert.Equal(t, kp.RawPublic(), decoded)
}

func TestX25519DecodeRejectsBadPrefix(t *testing.T) {
	bad := make([]byte, 12+X25519PublicKeySize)
	_, err := DecodeX25519Public(bad)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeCryptoFormat))
}

func TestX25519DecodeRejectsWrongLength(t *testing.T) {
	_, err := DecodeX25519Public([]byte{1, 2, 3})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeCryptoFormat))
}

func TestECDHSharedSecretMatches(t *testing.T) {
	client, err := GenerateX25519Pair()
	require.NoError(t, err)
	agent, err := GenerateX25519Pair()
	require.NoError(t, err)

	clientShared, err := ECDH(client.Private, agent.RawPublic())
	require.NoError(t, err)
	agentShared, err := ECDH(agent.Private, client.RawPublic())
	require.NoError(t, err)

	assert.Equal(t, clientShared, agentShared)
	assert.Len(t, clientShared, 32)
}

func TestECDHRejectsWrongLengthPeerKey(t *testing.T) {
	kp, err := GenerateX25519Pair()
	require.NoError(t, err)

	_, err = ECDH(kp.Private, []byte{1, 2, 3})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeCryptoFormat))
}
