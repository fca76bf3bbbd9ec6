package cryptoprimitives

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/commands-run/desktop-agent/internal/errs"
)

// AEADKeySize, AEADNonceSize, and AEADTagSize are the fixed sizes the
// session layer uses for AES-256-GCM; no other tag or nonce length is
// ever accepted.
const (
	AEADKeySize   = 32
	AEADNonceSize = 12
	AEADTagSize   = 16
)

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != AEADKeySize {
		return nil, errs.New(errs.CodeCryptoFormat, fmt.Sprintf("aes-256-gcm key must be %d bytes, got %d", AEADKeySize, len(key)))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Wrap(errs.CodeCryptoFormat, "aes cipher init failed", err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, AEADTagSize)
	if err != nil {
		return nil, errs.Wrap(errs.CodeCryptoFormat, "gcm init failed", err)
	}
	return gcm, nil
}

// AESGCMSeal encrypts pt under key and nonce, authenticating aad, and
// returns the ciphertext and its detached 16-byte tag separately.
func AESGCMSeal(key, nonce, aad, pt []byte) (ct, tag []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	if len(nonce) != AEADNonceSize {
		return nil, nil, errs.New(errs.CodeCryptoFormat, fmt.Sprintf("aes-256-gcm nonce must be %d bytes, got %d", AEADNonceSize, len(nonce)))
	}
	sealed := gcm.Seal(nil, nonce, pt, aad)
	split := len(sealed) - AEADTagSize
	ct = sealed[:split]
	tag = sealed[split:]
	return ct, tag, nil
}

// AESGCMOpen decrypts ct under key and nonce, verifying aad and the
// detached 16-byte tag. Any failure — wrong key, tampered ciphertext,
// tampered aad, or a tag of the wrong length — returns DecryptFailure
// without distinguishing the cause, per the fail-closed design.
func AESGCMOpen(key, nonce, aad, ct, tag []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != AEADNonceSize {
		return nil, errs.New(errs.CodeCryptoFormat, fmt.Sprintf("aes-256-gcm nonce must be %d bytes, got %d", AEADNonceSize, len(nonce)))
	}
	if len(tag) != AEADTagSize {
		return nil, errs.New(errs.CodeDecryptFailure, fmt.Sprintf("aes-256-gcm tag must be %d bytes, got %d", AEADTagSize, len(tag)))
	}
	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	pt, err := gcm.Open(nil, nonce, sealed, aad)
	if err != nil {
		return nil, errs.Wrap(errs.CodeDecryptFailure, "aes-256-gcm authentication failed", err)
	}
	return pt, nil
}
