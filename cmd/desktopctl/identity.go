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

package main

import (
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/commands-run/desktop-agent/vault"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage the device's long-lived Ed25519 identity",
}

var identityRotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Rotate the device identity key",
	Long: `Generates a new Ed25519 identity key and re-seals it in the
vault, leaving the access and refresh tokens untouched. The caller is
responsible for re-registering the new public key with the relay
before the old identity is discarded anywhere else.`,
	RunE: runIdentityRotate,
}

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identityRotateCmd)
}

func runIdentityRotate(cmd *cobra.Command, args []string) error {
	v, err := openVault()
	if err != nil {
		return err
	}

	secrets, err := v.Restore()
	if err != nil {
		return fmt.Errorf("restore existing secrets: %w", err)
	}

	identity, err := v.Rotate(secrets, log)
	if err != nil {
		return fmt.Errorf("rotate identity: %w", err)
	}

	fmt.Println("Identity rotated successfully.")
	fmt.Printf("  New public key: %s\n", hex.EncodeToString(identity.PublicKeyRaw))
	fmt.Println("  Remember to re-register this public key with the relay.")
	return nil
}

func openVault() (*vault.Vault, error) {
	dir := appConfig.Vault.Directory
	if dir == "" {
		dir = filepath.Join(mustHomeDir(), ".commands-agent")
	}

	cfg := vault.Config{
		ConfigPath: filepath.Join(dir, "config.json"),
		BundlePath: filepath.Join(dir, "credentials.enc"),
	}

	passphrase := resolvePassphrase()
	v, err := vault.New(cfg, vault.NewOSKeychainProvider(), vault.NewSoftwareProvider(passphrase), log)
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}
	return v, nil
}
