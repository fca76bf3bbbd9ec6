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
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/commands-run/desktop-agent/profile"
)

var (
	profileDisplayName string
	profileDeviceName  string
	profileProvider    string
	profileModel       string
	profilePermission  string
	profileGatewayURL  string
	profileWorkspace   string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage agent profiles",
}

var profileCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new profile",
	RunE:  runProfileCreate,
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileCreateCmd)

	profileCreateCmd.Flags().StringVar(&profileDisplayName, "display-name", "", "human-readable name (required)")
	profileCreateCmd.Flags().StringVar(&profileDeviceName, "device-name", "", "device slug, disambiguated among siblings (required)")
	profileCreateCmd.Flags().StringVar(&profileProvider, "provider", "local", "cloud or local")
	profileCreateCmd.Flags().StringVar(&profileModel, "model", "", "model identifier")
	profileCreateCmd.Flags().StringVar(&profilePermission, "permission-profile", "dev-safe", "read-only, dev-safe, or full")
	profileCreateCmd.Flags().StringVar(&profileGatewayURL, "gateway-url", "", "relay gateway URL (required)")
	profileCreateCmd.Flags().StringVar(&profileWorkspace, "workspace-path", "", "absolute workspace path (required)")

	profileCreateCmd.MarkFlagRequired("display-name")
	profileCreateCmd.MarkFlagRequired("device-name")
	profileCreateCmd.MarkFlagRequired("gateway-url")
	profileCreateCmd.MarkFlagRequired("workspace-path")
}

func runProfileCreate(cmd *cobra.Command, args []string) error {
	root := profilesRoot()
	store := profile.NewStore(root)

	existing, err := existingDeviceNames(root)
	if err != nil {
		return fmt.Errorf("scan existing profiles: %w", err)
	}

	draft := profile.Draft{
		DisplayName:       profileDisplayName,
		DeviceName:        profileDeviceName,
		Provider:          profile.Provider(profileProvider),
		Model:             profileModel,
		PermissionProfile: profile.PermissionProfile(profilePermission),
		GatewayURL:        profileGatewayURL,
		WorkspacePath:     profileWorkspace,
	}

	p, err := store.Create(draft, existing)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}

	fmt.Println("Profile created:")
	fmt.Printf("  ID:          %s\n", p.ID)
	fmt.Printf("  Device ID:   %s\n", p.DeviceID)
	fmt.Printf("  Device name: %s\n", p.DeviceName)
	fmt.Printf("  Directory:   %s\n", store.Dir(p.ID))
	return nil
}

func profilesRoot() string {
	return filepath.Join(mustHomeDir(), ".commands-agent", "profiles")
}

func existingDeviceNames(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	store := profile.NewStore(root)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, err := store.Load(e.Name())
		if err != nil {
			continue
		}
		names = append(names, p.DeviceName)
	}
	return names, nil
}
