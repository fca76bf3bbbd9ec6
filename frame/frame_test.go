package frame

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commands-run/desktop-agent/cryptoprimitives"
	"github.com/commands-run/desktop-agent/internal/errs"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, cryptoprimitives.AEADKeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestBuildNonceDeterministic(t *testing.T) {
	a, err := BuildNonce(ClientToAgent, 7)
	require.NoError(t, err)
	b, err := BuildNonce(ClientToAgent, 7)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := BuildNonce(AgentToClient, 7)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	d, err := BuildNonce(ClientToAgent, 8)
	require.NoError(t, err)
	assert.NotEqual(t, a, d)
}

func TestBuildNonceRejectsUnknownDirection(t *testing.T) {
	_, err := BuildNonce(Direction("bogus"), 0)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeCryptoFormat))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	key := randomKey(t)
	f, err := Encode(key, "sess-1", "msg-1", 3, ClientToAgent, []byte("hello agent"))
	require.NoError(t, err)
	assert.Equal(t, Alg, f.Alg)

	pt, err := Decode(key, f, ClientToAgent, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello agent"), pt)
}

func TestDecodeRejectsSequenceMismatch(t *testing.T) {
	key := randomKey(t)
	f, err := Encode(key, "sess-1", "msg-1", 3, ClientToAgent, []byte("payload"))
	require.NoError(t, err)

	_, err = Decode(key, f, ClientToAgent, 4)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeSequenceViolation))
}

func TestDecodeRejectsDirectionMismatch(t *testing.T) {
	key := randomKey(t)
	f, err := Encode(key, "sess-1", "msg-1", 0, ClientToAgent, []byte("payload"))
	require.NoError(t, err)

	_, err = Decode(key, f, AgentToClient, 0)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeCryptoFormat))
}

func TestDecodeRejectsTamperedCiphertext(t *testing.T) {
	key := randomKey(t)
	f, err := Encode(key, "sess-1", "msg-1", 0, ClientToAgent, []byte("payload"))
	require.NoError(t, err)

	ctBytes, err := cryptoprimitives.DecodeBase64(f.CiphertextB64)
	require.NoError(t, err)
	ctBytes[0] ^= 0xFF
	f.CiphertextB64 = cryptoprimitives.EncodeBase64(ctBytes)

	_, err = Decode(key, f, ClientToAgent, 0)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeDecryptFailure))
}

func TestDecodeRejectsWrongAlg(t *testing.T) {
	key := randomKey(t)
	f, err := Encode(key, "sess-1", "msg-1", 0, ClientToAgent, []byte("payload"))
	require.NoError(t, err)

	f.Alg = "chacha20-poly1305"
	_, err = Decode(key, f, ClientToAgent, 0)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeCryptoFormat))
}

func TestDecodeRejectsWrongKey(t *testing.T) {
	key := randomKey(t)
	otherKey := randomKey(t)
	f, err := Encode(key, "sess-1", "msg-1", 0, ClientToAgent, []byte("payload"))
	require.NoError(t, err)

	_, err = Decode(otherKey, f, ClientToAgent, 0)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeDecryptFailure))
}

func TestBuildAADBindsAllFields(t *testing.T) {
	a := BuildAAD("sess-1", "msg-1", 0, ClientToAgent)
	b := BuildAAD("sess-2", "msg-1", 0, ClientToAgent)
	assert.NotEqual(t, a, b)
}
