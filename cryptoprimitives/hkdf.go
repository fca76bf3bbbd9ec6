package cryptoprimitives

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/commands-run/desktop-agent/internal/errs"
)

// SessionKeyMaterialSize is the total output length the session layer
// derives in a single HKDF-expand call before splitting it three ways.
const SessionKeyMaterialSize = 96

// HKDFSHA256Expand runs HKDF-SHA256 over ikm with the given salt and
// info, returning length bytes of output in one expand call.
func HKDFSHA256Expand(ikm, salt, info []byte, length int) ([]byte, error) {
	if length <= 0 {
		return nil, errs.New(errs.CodeCryptoFormat, fmt.Sprintf("hkdf output length must be positive, got %d", length))
	}
	reader := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, length)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, errs.Wrap(errs.CodeCryptoFormat, "hkdf expand failed", err)
	}
	return out, nil
}

// SessionKeys holds the three independent 32-byte AES-256-GCM keys
// derived from a single handshake's shared secret.
type SessionKeys struct {
	ClientToAgent [32]byte
	AgentToClient [32]byte
	Control       [32]byte
}

// sessionKeyInfo is the fixed HKDF info string binding derived keys to
// this protocol and version; it is never negotiated.
const sessionKeyInfo = "commands.com/gateway/v1/e2ee"

// DeriveSessionKeys derives the three session keys from the ECDH
// shared secret and the handshake transcript hash, via one
// HKDF-SHA256 expand producing 96 bytes split 32/32/32 into
// k_c2a, k_a2c, k_control in that order.
func DeriveSessionKeys(sharedSecret, transcriptHash []byte) (*SessionKeys, error) {
	material, err := HKDFSHA256Expand(sharedSecret, transcriptHash, []byte(sessionKeyInfo), SessionKeyMaterialSize)
	if err != nil {
		return nil, err
	}
	defer Zeroize(material)

	keys := &SessionKeys{}
	copy(keys.ClientToAgent[:], material[0:32])
	copy(keys.AgentToClient[:], material[32:64])
	copy(keys.Control[:], material[64:96])
	return keys, nil
}

// Zero overwrites all three derived keys in place.
func (k *SessionKeys) Zero() {
	if k == nil {
		return
	}
	Zeroize(k.ClientToAgent[:])
	Zeroize(k.AgentToClient[:])
	Zeroize(k.Control[:])
}
