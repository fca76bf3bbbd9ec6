package cryptoprimitives

import (
	"crypto/ed25519"
	"fmt"

	"github.com/commands-run/desktop-agent/internal/errs"
)

// Ed25519PublicKeySize is the raw size of an Ed25519 public key.
const Ed25519PublicKeySize = ed25519.PublicKeySize

// ed25519Prefix is the 12-byte SPKI-style prefix every encoded Ed25519
// public key must carry.
var ed25519Prefix = []byte{0x30, 0x2a, 0x30, 0x05, 0x06, 0x03, 0x2b, 0x65, 0x70, 0x03, 0x21, 0x00}

// EncodeEd25519Public wraps a raw 32-byte Ed25519 public key with its
// fixed 12-byte SPKI prefix.
func EncodeEd25519Public(raw []byte) ([]byte, error) {
	if len(raw) != Ed25519PublicKeySize {
		return nil, errs.New(errs.CodeCryptoFormat, fmt.Sprintf("ed25519 public key must be %d bytes, got %d", Ed25519PublicKeySize, len(raw)))
	}
	out := make([]byte, 0, len(ed25519Prefix)+len(raw))
	out = append(out, ed25519Prefix...)
	out = append(out, raw...)
	return out, nil
}

// DecodeEd25519Public strips and validates the SPKI prefix, returning
// the raw 32-byte key.
func DecodeEd25519Public(encoded []byte) ([]byte, error) {
	if len(encoded) != len(ed25519Prefix)+Ed25519PublicKeySize {
		return nil, errs.New(errs.CodeCryptoFormat, fmt.Sprintf("ed25519 spki key must be %d bytes, got %d", len(ed25519Prefix)+Ed25519PublicKeySize, len(encoded)))
	}
	prefix, raw := encoded[:len(ed25519Prefix)], encoded[len(ed25519Prefix):]
	for i, b := range ed25519Prefix {
		if prefix[i] != b {
			return nil, errs.New(errs.CodeCryptoFormat, "ed25519 spki prefix mismatch")
		}
	}
	return raw, nil
}

// VerifyEd25519 reports whether sig is a valid Ed25519 signature over
// msg under the raw 32-byte public key pubRaw. It never returns an
// error for a bad signature, only for a malformed key or a signature
// of the wrong length: signature
// validity is a closed boolean per spec, distinct from format failure.
func VerifyEd25519(pubRaw, msg, sig []byte) (bool, error) {
	if len(pubRaw) != Ed25519PublicKeySize {
		return false, errs.New(errs.CodeCryptoFormat, fmt.Sprintf("ed25519 public key must be %d bytes, got %d", Ed25519PublicKeySize, len(pubRaw)))
	}
	if len(sig) != ed25519.SignatureSize {
		return false, errs.New(errs.CodeCryptoFormat, fmt.Sprintf("ed25519 signature must be %d bytes, got %d", ed25519.SignatureSize, len(sig)))
	}
	return ed25519.Verify(ed25519.PublicKey(pubRaw), msg, sig), nil
}
