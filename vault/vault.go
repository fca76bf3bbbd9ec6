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
	"encoding/json"
	"fmt"

	"github.com/commands-run/desktop-agent/internal/atomicfile"
	"github.com/commands-run/desktop-agent/internal/errs"
	"github.com/commands-run/desktop-agent/internal/logger"
)

// redacted is the sentinel written into the on-disk config JSON in
// place of every field the vault protects.
const redacted = "<vault-sealed>"

// Secrets is the set of values the vault protects at rest: the
// long-lived relay access and refresh tokens, and the device's Ed25519
// identity private key.
type Secrets struct {
	AccessToken    string `json:"access_token"`
	RefreshToken   string `json:"refresh_token"`
	IdentityKeySeed string `json:"identity_key_seed"`
}

// Config locates the two files a Vault manages: the application config
// (which holds everything except Secrets, plus a redaction sentinel for
// each protected field) and the sealed bundle file next to it.
type Config struct {
	ConfigPath string
	BundlePath string
}

// Vault brackets an agent process's lifetime: Secure is called on
// startup to pull Secrets out of a plaintext config and replace them
// with redaction sentinels plus a sealed bundle; Restore reverses that
// for in-memory use; Resecure re-seals after a credential rotation
// (e.g. a token refresh) without ever leaving the config holding live
// secrets on disk.
type Vault struct {
	cfg      Config
	provider Provider
	log      logger.Logger
	degraded bool
}

// New builds a Vault. provider is tried first; if it reports itself
// unavailable, fallback is used instead and every Secure/Restore call
// logs a warning that the vault is running in degraded (software-only)
// mode. New never silently prefers fallback over an available
// provider.
func New(cfg Config, provider, fallback Provider, log logger.Logger) (*Vault, error) {
	active := provider
	degraded := false
	if active == nil || !active.Available() {
		if fallback == nil || !fallback.Available() {
			return nil, errs.New(errs.CodeKeychainUnavailable, "no usable vault provider: keychain and software fallback both unavailable")
		}
		active = fallback
		degraded = true
	}
	v := &Vault{cfg: cfg, provider: active, log: log, degraded: degraded}
	if degraded {
		log.Warn("vault running in degraded software-only mode; OS keychain unavailable",
			logger.String("provider", active.Name()))
	}
	return v, nil
}

// Degraded reports whether the vault fell back to the software
// provider because no OS keychain was available.
func (v *Vault) Degraded() bool { return v.degraded }

// onDiskConfig mirrors the persisted config file: everything else the
// application stores, plus sentinel values in place of the protected
// Secrets fields.
type onDiskConfig struct {
	AccessToken    string          `json:"access_token"`
	RefreshToken   string          `json:"refresh_token"`
	IdentityKeySeed string         `json:"identity_key_seed"`
	Rest           json.RawMessage `json:"rest,omitempty"`
}

// Secure redacts secrets out of the config at cfg.ConfigPath, encrypts
// them into the bundle at cfg.BundlePath, and atomically rewrites both
// files. rest is arbitrary additional config content the caller wants
// preserved verbatim alongside the redacted fields.
func (v *Vault) Secure(secrets Secrets, rest json.RawMessage) error {
	bundle, err := v.provider.Encrypt(mustMarshal(secrets))
	if err != nil {
		return errs.Wrap(errs.CodeKeychainUnavailable, "seal vault secrets", err)
	}

	cfg := onDiskConfig{
		AccessToken:    redacted,
		RefreshToken:   redacted,
		IdentityKeySeed: redacted,
		Rest:           rest,
	}

	if err := atomicfile.WriteJSON(v.cfg.BundlePath, bundle, 0600); err != nil {
		return fmt.Errorf("write vault bundle: %w", err)
	}
	if err := atomicfile.WriteJSON(v.cfg.ConfigPath, cfg, 0600); err != nil {
		return fmt.Errorf("write redacted config: %w", err)
	}
	return nil
}

// Restore reads the bundle at cfg.BundlePath and decrypts it back into
// Secrets for in-memory use. It does not modify either file on disk.
func (v *Vault) Restore() (Secrets, error) {
	var bundle SealedBundle
	if err := atomicfile.ReadJSON(v.cfg.BundlePath, &bundle); err != nil {
		return Secrets{}, fmt.Errorf("read vault bundle: %w", err)
	}

	plaintext, err := v.provider.Decrypt(&bundle)
	if err != nil {
		return Secrets{}, errs.Wrap(errs.CodeKeychainUnavailable, "unseal vault secrets", err)
	}

	var secrets Secrets
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return Secrets{}, errs.Wrap(errs.CodeCryptoFormat, "decode unsealed secrets", err)
	}
	return secrets, nil
}

// Resecure re-derives the sealed bundle from rotated secrets (e.g.
// after a token refresh) without touching the rest of the config file.
// It never writes the new secrets in plaintext anywhere: the config's
// redaction sentinels and Rest payload are left exactly as they were.
func (v *Vault) Resecure(secrets Secrets) error {
	var existing onDiskConfig
	if err := atomicfile.ReadJSON(v.cfg.ConfigPath, &existing); err != nil {
		return fmt.Errorf("read existing config: %w", err)
	}
	return v.Secure(secrets, existing.Rest)
}

func mustMarshal(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("vault: marshal secrets: %v", err))
	}
	return b
}

