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

// Package sharetoken normalizes share-invite input from its three
// accepted surfaces and mediates a pending-token slot for the case
// where a share link is opened before the owner is signed in. The
// relay is the sole authority for minting, consuming, listing, and
// revoking tokens; this package is a thin façade over relay.Client.
package sharetoken

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/commands-run/desktop-agent/internal/errs"
	"github.com/commands-run/desktop-agent/relay"
)

const deepLinkScheme = "commands-desktop"

// pendingTTL is how long an unauthenticated consume attempt is held
// before it is discarded.
const pendingTTL = 5 * time.Minute

// tokenPattern is the closed grammar every normalized token must match.
var tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{16,512}$`)

// Normalize extracts a bare share token from any of the three accepted
// input surfaces: a raw token, an http or https URL carrying `?token=`
// or `/share/<token>`, or the `commands-desktop://share/<token>` deep
// link. The URL's host is not checked against any allowlist. It returns a CryptoFormatError if the result does not match
// the token grammar.
func Normalize(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errs.New(errs.CodeCryptoFormat, "empty share input")
	}

	token := input
	if u, err := url.Parse(input); err == nil && u.Scheme != "" {
		switch u.Scheme {
		case deepLinkScheme:
			token = strings.TrimPrefix(u.Opaque, "share/")
			if token == u.Opaque {
				token = strings.TrimPrefix(strings.TrimPrefix(u.Path, "/"), "share/")
			}
		case "http", "https":
			if t := u.Query().Get("token"); t != "" {
				token = t
			} else if idx := strings.LastIndex(u.Path, "/share/"); idx != -1 {
				token = u.Path[idx+len("/share/"):]
			} else {
				token = input
			}
		}
	}

	token = strings.Trim(token, "/")
	if !tokenPattern.MatchString(token) {
		return "", errs.New(errs.CodeCryptoFormat, "share token does not match the expected grammar")
	}
	return token, nil
}

// pendingEntry is one token held awaiting sign-in.
type pendingEntry struct {
	token     string
	expiresAt time.Time
}

// Service mediates share-token consume/mint/list/revoke calls against
// the relay, and holds at most one pending token across a sign-in.
type Service struct {
	client  *relay.Client
	baseURL string

	mu      sync.Mutex
	pending *pendingEntry
	now     func() time.Time
}

// New builds a Service backed by client against baseURL.
func New(client *relay.Client, baseURL string) *Service {
	return &Service{client: client, baseURL: baseURL, now: time.Now}
}

// Consume attempts to redeem token immediately. If the caller is not
// signed in (signedIn == false), the token is normalized and held in
// the pending slot instead of being sent to the relay, and Consume
// returns (false, nil) to indicate deferral rather than success.
func (s *Service) Consume(ctx context.Context, input string, signedIn bool) (consumed bool, err error) {
	token, err := Normalize(input)
	if err != nil {
		return false, err
	}

	if !signedIn {
		s.setPending(token)
		return false, nil
	}

	if err := s.client.ConsumeShareToken(ctx, s.baseURL, token); err != nil {
		return false, err
	}
	return true, nil
}

// ConsumePendingOnSignIn consumes whatever token is currently pending,
// exactly once, then clears the slot regardless of outcome. It is a
// no-op (ok == false) if nothing is pending or the pending entry has
// expired.
func (s *Service) ConsumePendingOnSignIn(ctx context.Context) (ok bool, err error) {
	token, found := s.takePending()
	if !found {
		return false, nil
	}
	if err := s.client.ConsumeShareToken(ctx, s.baseURL, token); err != nil {
		return false, err
	}
	return true, nil
}

// ClearPending discards any held pending token. Called on sign-out.
func (s *Service) ClearPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

func (s *Service) setPending(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &pendingEntry{token: token, expiresAt: s.now().Add(pendingTTL)}
}

func (s *Service) takePending() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return "", false
	}
	entry := s.pending
	s.pending = nil
	if s.now().After(entry.expiresAt) {
		return "", false
	}
	return entry.token, true
}

// Mint requests a new share invite token for deviceID.
func (s *Service) Mint(ctx context.Context, deviceID string) (string, error) {
	return s.client.MintShareToken(ctx, s.baseURL, deviceID)
}

// ListGrants lists the grants issued for deviceID.
func (s *Service) ListGrants(ctx context.Context, deviceID string) ([]relay.Grant, error) {
	return s.client.ListGrants(ctx, s.baseURL, deviceID)
}

// Revoke revokes grantID.
func (s *Service) Revoke(ctx context.Context, grantID string) error {
	return s.client.RevokeGrant(ctx, s.baseURL, grantID)
}
