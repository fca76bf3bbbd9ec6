// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package vault implements the CredentialVault: at-rest protection for
// the long-lived access token, refresh token, and Ed25519 identity
// private key, with an OS-keychain-backed mode when available and an
// explicit, logged degraded plaintext fallback when it is not.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/commands-run/desktop-agent/cryptoprimitives"
)

const (
	pbkdf2Iterations = 100_000
	pbkdf2KeyLen     = 32
	saltSize         = 32
)

// Provider encrypts and decrypts the vault's secret bundle. Available
// reports whether this provider's backing store (an OS keychain, or a
// local software fallback) is usable on the current host.
type Provider interface {
	Available() bool
	Encrypt(plaintext []byte) (*SealedBundle, error)
	Decrypt(bundle *SealedBundle) ([]byte, error)
	Name() string
}

// SealedBundle is the ciphertext bundle persisted alongside the
// redacted config: salt and nonce needed to re-derive the key and
// open the AEAD, plus the ciphertext itself.
type SealedBundle struct {
	Algorithm  string `json:"algorithm"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// osKeychainProvider is the integration point for a real platform
// keychain (macOS Keychain, Windows DPAPI, a Secret Service D-Bus
// client on Linux). None of those bindings exist in this module's
// dependency set, so this provider always reports itself unavailable;
// wiring a real backend means swapping this type for a CGO or D-Bus
// client satisfying the same interface.
type osKeychainProvider struct{}

// NewOSKeychainProvider returns the OS-keychain integration point.
func NewOSKeychainProvider() Provider { return osKeychainProvider{} }

func (osKeychainProvider) Available() bool { return false }

func (osKeychainProvider) Name() string { return "os-keychain" }

func (osKeychainProvider) Encrypt([]byte) (*SealedBundle, error) {
	return nil, fmt.Errorf("os keychain provider is not available on this platform")
}

func (osKeychainProvider) Decrypt(*SealedBundle) ([]byte, error) {
	return nil, fmt.Errorf("os keychain provider is not available on this platform")
}

// softwareProvider is the PBKDF2 + AES-256-GCM fallback used when no
// OS keychain binding is available. passphrase supplies the
// machine-local secret the derived key is built from; it must not be
// the empty string.
type softwareProvider struct {
	passphrase []byte
}

// NewSoftwareProvider builds the PBKDF2-backed fallback provider.
func NewSoftwareProvider(passphrase []byte) Provider {
	return &softwareProvider{passphrase: passphrase}
}

func (p *softwareProvider) Available() bool { return len(p.passphrase) > 0 }

func (p *softwareProvider) Name() string { return "software-pbkdf2" }

func (p *softwareProvider) Encrypt(plaintext []byte) (*SealedBundle, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := p.gcm(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return &SealedBundle{
		Algorithm:  "pbkdf2-sha256+aes-256-gcm",
		Salt:       cryptoprimitives.EncodeBase64(salt),
		Nonce:      cryptoprimitives.EncodeBase64(nonce),
		Ciphertext: cryptoprimitives.EncodeBase64(ciphertext),
	}, nil
}

func (p *softwareProvider) Decrypt(bundle *SealedBundle) ([]byte, error) {
	salt, err := cryptoprimitives.DecodeBase64(bundle.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	nonce, err := cryptoprimitives.DecodeBase64(bundle.Nonce)
	if err != nil {
		return nil, fmt.Errorf("decode nonce: %w", err)
	}
	ciphertext, err := cryptoprimitives.DecodeBase64(bundle.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := p.gcm(salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt bundle: %w", err)
	}
	return plaintext, nil
}

func (p *softwareProvider) gcm(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(p.passphrase, salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
