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

// Package profile implements the Profile data model: creation,
// sanitized mutation, device-name slug disambiguation, and the
// on-disk layout under a profile's own directory.
package profile

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/commands-run/desktop-agent/internal/atomicfile"
	"github.com/commands-run/desktop-agent/internal/errs"
)

// Provider is where the profile's agent runs.
type Provider string

const (
	ProviderCloud Provider = "cloud"
	ProviderLocal Provider = "local"
)

// PermissionProfile bounds what the agent is allowed to do.
type PermissionProfile string

const (
	PermissionReadOnly PermissionProfile = "read-only"
	PermissionDevSafe  PermissionProfile = "dev-safe"
	PermissionFull     PermissionProfile = "full"
)

var deviceIDPattern = regexp.MustCompile(`^dev_[a-f0-9]{32}$`)

var slugPattern = regexp.MustCompile(`[^a-z0-9-]+`)

// Profile is one configured agent device, owned by exactly one signed-in
// owner and persisted at profiles/{id}/profile.json.
type Profile struct {
	ID                string            `json:"id"`
	DeviceID          string            `json:"device_id"`
	DisplayName       string            `json:"display_name"`
	DeviceName        string            `json:"device_name"`
	Provider          Provider          `json:"provider"`
	Model             string            `json:"model"`
	PermissionProfile PermissionProfile `json:"permission_profile"`
	GatewayURL        string            `json:"gateway_url"`
	WorkspacePath     string            `json:"workspace_path"`
	MCPConfig         json.RawMessage   `json:"mcp_config,omitempty"`
	AuditLogPath      string            `json:"audit_log_path"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Draft is the caller-supplied input to Create; everything else in
// Profile is derived or defaulted.
type Draft struct {
	DisplayName       string
	DeviceName        string
	Provider          Provider
	Model             string
	PermissionProfile PermissionProfile
	GatewayURL        string
	WorkspacePath     string
	MCPConfig         json.RawMessage
	AuditLogPath      string // empty selects the profile-dir default
}

// Store manages Profile persistence under rootDir (typically
// ~/.commands-agent/profiles).
type Store struct {
	rootDir string
	now     func() time.Time
}

// NewStore builds a Store rooted at rootDir.
func NewStore(rootDir string) *Store {
	return &Store{rootDir: rootDir, now: time.Now}
}

// Dir returns the directory a profile with id is persisted under.
func (s *Store) Dir(id string) string { return filepath.Join(s.rootDir, id) }

func (s *Store) path(id string) string { return filepath.Join(s.Dir(id), "profile.json") }

// Create builds a new Profile from draft, assigning a fresh id and
// device_id, disambiguating device_name against existingNames, and
// validating every invariant spec §3 names before persisting it.
func (s *Store) Create(draft Draft, existingNames []string) (*Profile, error) {
	id, err := newProfileID(s.now())
	if err != nil {
		return nil, err
	}
	deviceID, err := newDeviceID()
	if err != nil {
		return nil, err
	}

	p := &Profile{
		ID:                id,
		DeviceID:          deviceID,
		DisplayName:       draft.DisplayName,
		DeviceName:        disambiguateSlug(slugify(draft.DeviceName), existingNames),
		Provider:          draft.Provider,
		Model:             draft.Model,
		PermissionProfile: draft.PermissionProfile,
		GatewayURL:        draft.GatewayURL,
		WorkspacePath:     draft.WorkspacePath,
		MCPConfig:         draft.MCPConfig,
		AuditLogPath:      draft.AuditLogPath,
		CreatedAt:         s.now(),
	}
	if p.AuditLogPath == "" {
		p.AuditLogPath = filepath.Join(s.Dir(id), "audit.log")
	}

	if err := Validate(p, s.Dir(id)); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.Dir(id), 0700); err != nil {
		return nil, fmt.Errorf("create profile directory: %w", err)
	}
	if err := s.write(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Update re-validates and atomically rewrites an existing profile.
// Update never changes ID or DeviceID; callers attempting to do so get
// those fields silently restored from the existing record on disk.
func (s *Store) Update(p *Profile) error {
	existing, err := s.Load(p.ID)
	if err != nil {
		return err
	}
	p.ID = existing.ID
	p.DeviceID = existing.DeviceID
	p.CreatedAt = existing.CreatedAt

	if err := Validate(p, s.Dir(p.ID)); err != nil {
		return err
	}
	return s.write(p)
}

// Load reads the profile with id from disk.
func (s *Store) Load(id string) (*Profile, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", id, err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", id, err)
	}
	return &p, nil
}

// Delete removes the profile's entire directory. Callers must ensure
// no local runtime still references the profile before calling this.
func (s *Store) Delete(id string) error {
	return os.RemoveAll(s.Dir(id))
}

func (s *Store) write(p *Profile) error {
	return atomicfile.WriteJSON(s.path(p.ID), p, 0600)
}

// Validate checks the invariants spec §3 names for Profile: device_id
// format, workspace_path absoluteness, and audit_log_path containment
// within profileDir (or the process's configured default elsewhere).
func Validate(p *Profile, profileDir string) error {
	if !deviceIDPattern.MatchString(p.DeviceID) {
		return errs.New(errs.CodeCryptoFormat, "device_id must match dev_[a-f0-9]{32}")
	}
	if !filepath.IsAbs(p.WorkspacePath) {
		return errs.New(errs.CodeCryptoFormat, "workspace_path must be absolute")
	}
	if p.AuditLogPath != "" {
		absDir, err := filepath.Abs(profileDir)
		if err != nil {
			return fmt.Errorf("resolve profile directory: %w", err)
		}
		absLog, err := filepath.Abs(p.AuditLogPath)
		if err != nil {
			return fmt.Errorf("resolve audit_log_path: %w", err)
		}
		rel, err := filepath.Rel(absDir, absLog)
		if err != nil || strings.HasPrefix(rel, "..") {
			return errs.New(errs.CodeCryptoFormat, "audit_log_path must lie within the profile directory")
		}
	}
	switch p.Provider {
	case ProviderCloud, ProviderLocal:
	default:
		return errs.New(errs.CodeCryptoFormat, "provider must be cloud or local")
	}
	switch p.PermissionProfile {
	case PermissionReadOnly, PermissionDevSafe, PermissionFull:
	default:
		return errs.New(errs.CodeCryptoFormat, "permission_profile must be read-only, dev-safe, or full")
	}
	return nil
}

func newProfileID(now time.Time) (string, error) {
	suffix, err := randomHex(4)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("profile_%d_%s", now.Unix(), suffix), nil
}

func newDeviceID() (string, error) {
	suffix, err := randomHex(16)
	if err != nil {
		return "", err
	}
	return "dev_" + suffix, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// slugify lower-cases name and strips everything but [a-z0-9-],
// truncated to 32 characters.
func slugify(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	lower = strings.ReplaceAll(lower, " ", "-")
	slug := slugPattern.ReplaceAllString(lower, "")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "device"
	}
	if len(slug) > 32 {
		slug = slug[:32]
	}
	return slug
}

// disambiguateSlug appends -2, -3, ... until slug does not collide
// with any entry in existing.
func disambiguateSlug(slug string, existing []string) string {
	taken := make(map[string]bool, len(existing))
	for _, n := range existing {
		taken[n] = true
	}
	if !taken[slug] {
		return slug
	}
	base := slug
	if len(base) > 28 {
		base = base[:28]
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if !taken[candidate] {
			return candidate
		}
	}
}

