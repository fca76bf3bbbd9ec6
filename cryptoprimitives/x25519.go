// Package cryptoprimitives implements the closed cryptographic operation
// set the session layer is built on: X25519 key agreement, HKDF-SHA256
// key derivation, AES-256-GCM frame sealing, and Ed25519 signature
// verification. No algorithm is ever negotiated; every operation fails
// closed on malformed input rather than falling back to an alternative.
package cryptoprimitives

import (
	"crypto/ecdh"
	"crypto/rand"
	"fmt"

	"github.com/commands-run/desktop-agent/internal/errs"
)

// X25519PrivateKeySize and X25519PublicKeySize are the raw key sizes
// X25519 always uses; SPKI framing adds a fixed prefix on top.
const (
	X25519PrivateKeySize = 32
	X25519PublicKeySize  = 32
)

// x25519Prefix is the 12-byte SPKI-style prefix every encoded X25519
// public key must carry. Any other prefix or length fails closed with
// CryptoFormatError rather than being interpreted loosely.
var x25519Prefix = []byte{0x30, 0x2a, 0x30, 0x05, 0x06, 0x03, 0x2b, 0x65, 0x6e, 0x03, 0x21, 0x00}

// X25519KeyPair holds an ephemeral or identity X25519 key pair.
type X25519KeyPair struct {
	Private *ecdh.PrivateKey
	Public  *ecdh.PublicKey
}

// GenerateX25519Pair generates a fresh ephemeral X25519 key pair.
func GenerateX25519Pair() (*X25519KeyPair, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, errs.Wrap(errs.CodeCryptoFormat, "generate x25519 key pair", err)
	}
	return &X25519KeyPair{Private: priv, Public: priv.PublicKey()}, nil
}

// RawPublic returns the 32-byte raw encoding of the public key.
func (kp *X25519KeyPair) RawPublic() []byte {
	return kp.Public.Bytes()
}

// EncodeX25519Public wraps a raw 32-byte X25519 public key with its
// fixed 12-byte SPKI prefix.
func EncodeX25519Public(raw []byte) ([]byte, error) {
	if len(raw) != X25519PublicKeySize {
		return nil, errs.New(errs.CodeCryptoFormat, fmt.Sprintf("x25519 public key must be %d bytes, got %d", X25519PublicKeySize, len(raw)))
	}
	out := make([]byte, 0, len(x25519Prefix)+len(raw))
	out = append(out, x25519Prefix...)
	out = append(out, raw...)
	return out, nil
}

// DecodeX25519Public strips and validates the SPKI prefix, returning
// the raw 32-byte key. Any prefix mismatch or wrong length fails with
// CryptoFormatError.
func DecodeX25519Public(encoded []byte) ([]byte, error) {
	if len(encoded) != len(x25519Prefix)+X25519PublicKeySize {
		return nil, errs.New(errs.CodeCryptoFormat, fmt.Sprintf("x25519 spki key must be %d bytes, got %d", len(x25519Prefix)+X25519PublicKeySize, len(encoded)))
	}
	prefix, raw := encoded[:len(x25519Prefix)], encoded[len(x25519Prefix):]
	for i, b := range x25519Prefix {
		if prefix[i] != b {
			return nil, errs.New(errs.CodeCryptoFormat, "x25519 spki prefix mismatch")
		}
	}
	return raw, nil
}

// ECDH performs X25519 Diffie-Hellman between priv and the peer's raw
// 32-byte public key, returning the 32-byte shared secret. Low-order
// and identity points are rejected by crypto/ecdh itself, so a peer
// public key that collapses the shared secret to a known constant
// never produces output here.
func ECDH(priv *ecdh.PrivateKey, peerPubRaw []byte) ([]byte, error) {
	if len(peerPubRaw) != X25519PublicKeySize {
		return nil, errs.New(errs.CodeCryptoFormat, fmt.Sprintf("peer public key must be %d bytes, got %d", X25519PublicKeySize, len(peerPubRaw)))
	}
	peerPub, err := ecdh.X25519().NewPublicKey(peerPubRaw)
	if err != nil {
		return nil, errs.Wrap(errs.CodeCryptoFormat, "invalid peer x25519 public key", err)
	}
	shared, err := priv.ECDH(peerPub)
	if err != nil {
		return nil, errs.Wrap(errs.CodeCryptoFormat, "x25519 ecdh failed", err)
	}
	return shared, nil
}
