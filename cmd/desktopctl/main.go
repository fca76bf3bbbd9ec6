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

// Command desktopctl is the operator/debug CLI for the desktop E2EE
// session layer: identity rotation, session inspection, vault status,
// and profile creation.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/commands-run/desktop-agent/internal/config"
	"github.com/commands-run/desktop-agent/internal/logger"
)

var (
	configDir string
	log       logger.Logger
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "desktopctl",
	Short: "Operator CLI for the desktop E2EE session layer",
	Long: `desktopctl inspects and manages the local state of the desktop
agent's end-to-end encrypted session layer: rotating the device
identity, listing the devices a session can be opened with, checking
vault status, and creating
new profiles.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log = logger.NewDefaultLogger()
		cfg, err := config.Load(config.LoaderOptions{ConfigDir: configDir, DotEnvPath: ".env"})
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		appConfig = cfg
		return nil
	},
}

func main() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "config", "configuration directory")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
