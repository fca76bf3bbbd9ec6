package cryptoprimitives

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commands-run/desktop-agent/internal/errs"
)

func TestDecodeBase64Valid(t *testing.T) {
	decoded, err := DecodeBase64(EncodeBase64([]byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), decoded)
}

func TestDecodeBase64RejectsBadAlphabet(t *testing.T) {
	_, err := DecodeBase64("not-valid-base64!!!")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeCryptoFormat))
}

func TestDecodeBase64RejectsBadPadding(t *testing.T) {
	_, err := DecodeBase64("YWJj=")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeCryptoFormat))
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual([]byte("abc"), []byte("abc")))
	assert.False(t, ConstantTimeEqual([]byte("abc"), []byte("abd")))
	assert.False(t, ConstantTimeEqual([]byte("abc"), []byte("ab")))
}

func TestZeroize(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	Zeroize(buf)
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)
}

func TestValidateFixedLength(t *testing.T) {
	assert.NoError(t, ValidateFixedLength("key", 32, 32))

	err := ValidateFixedLength("key", 16, 32)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeCryptoFormat))
}
