package cryptoprimitives

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commands-run/desktop-agent/internal/errs"
)

func TestEd25519EncodeDecodeRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	encoded, err := EncodeEd25519Public(pub)
	require.NoError(t, err)
	assert.Len(t, encoded, 12+Ed25519PublicKeySize)

	decoded, err := DecodeEd25519Public(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte(pub), decoded)
}

func TestVerifyEd25519ValidAndInvalid(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	msg := []byte("transcript-hash-bytes")
	sig := ed25519.Sign(priv, msg)

	ok, err := VerifyEd25519(pub, msg, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	tampered := append([]byte(nil), msg...)
	tampered[0] ^= 0xFF
	ok, err = VerifyEd25519(pub, tampered, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyEd25519RejectsMalformedKey(t *testing.T) {
	_, err := VerifyEd25519([]byte{1, 2, 3}, []byte("msg"), make([]byte, ed25519.SignatureSize))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeCryptoFormat))
}

func TestVerifyEd25519RejectsMalformedSignature(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	_, err = VerifyEd25519(pub, []byte("msg"), []byte{1, 2, 3})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeCryptoFormat))
}
