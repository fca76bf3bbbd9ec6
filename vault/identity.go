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

package vault

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/commands-run/desktop-agent/cryptoprimitives"
	"github.com/commands-run/desktop-agent/internal/logger"
)

// AgentIdentity is the long-lived Ed25519 device identity: its public
// half is registered with the relay keyed by device_id, and is never
// regenerated except through an explicit Rotate call.
type AgentIdentity struct {
	PublicKeyRaw []byte
	PrivateKey   ed25519.PrivateKey
}

// GenerateIdentity creates a fresh AgentIdentity.
func GenerateIdentity() (*AgentIdentity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &AgentIdentity{PublicKeyRaw: pub, PrivateKey: priv}, nil
}

// SecureIdentity seals identity's private key into the vault bundle
// alongside the access and refresh tokens in auth, replacing whatever
// identity material the bundle previously held. The public key is not
// secret and is the caller's responsibility to persist in the profile
// record.
func (v *Vault) SecureIdentity(auth Secrets, identity *AgentIdentity) error {
	auth.IdentityKeySeed = cryptoprimitives.EncodeBase64(identity.PrivateKey.Seed())
	return v.Secure(auth, nil)
}

// RestoreIdentity reconstructs the AgentIdentity from the vault's
// sealed bundle.
func (v *Vault) RestoreIdentity() (*AgentIdentity, error) {
	secrets, err := v.Restore()
	if err != nil {
		return nil, err
	}
	seed, err := cryptoprimitives.DecodeBase64(secrets.IdentityKeySeed)
	if err != nil {
		return nil, fmt.Errorf("decode identity seed: %w", err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &AgentIdentity{PublicKeyRaw: pub, PrivateKey: priv}, nil
}

// Rotate generates a brand new AgentIdentity and re-seals it in place
// of the current one, preserving the rest of auth (access/refresh
// tokens are untouched). It is the only way an identity may ever
// change after profile creation; callers must re-register the new
// public key with the relay before discarding the old one.
func (v *Vault) Rotate(auth Secrets, log logger.Logger) (*AgentIdentity, error) {
	identity, err := GenerateIdentity()
	if err != nil {
		return nil, err
	}
	if err := v.SecureIdentity(auth, identity); err != nil {
		return nil, err
	}
	log.Info("agent identity rotated", logger.String("provider", v.provider.Name()))
	return identity, nil
}
