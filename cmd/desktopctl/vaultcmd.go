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
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Inspect the credential vault",
}

var vaultStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the vault directory and whether the vault runs on the software fallback provider",
	RunE:  runVaultStatus,
}

func init() {
	rootCmd.AddCommand(vaultCmd)
	vaultCmd.AddCommand(vaultStatusCmd)
}

func runVaultStatus(cmd *cobra.Command, args []string) error {
	v, err := openVault()
	if err != nil {
		return err
	}

	fmt.Println("Vault status:")
	fmt.Printf("  Config path:  %s\n", appConfig.Vault.Directory)
	fmt.Printf("  Degraded:     %v\n", v.Degraded())
	if v.Degraded() {
		fmt.Println("  Note: OS keychain unavailable, running on the software PBKDF2 fallback.")
	}
	return nil
}

func resolvePassphrase() []byte {
	envVar := appConfig.Vault.PassphraseEnv
	if envVar == "" {
		envVar = "DESKTOP_AGENT_VAULT_PASSPHRASE"
	}
	return []byte(os.Getenv(envVar))
}

func mustHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
