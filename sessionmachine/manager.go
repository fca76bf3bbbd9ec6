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

package sessionmachine

import (
	"fmt"
	"sync"
	"time"

	"github.com/commands-run/desktop-agent/internal/errs"
	"github.com/commands-run/desktop-agent/internal/logger"
)

// MaxConcurrentSessions is the cap on simultaneously active sessions
// for one user's devices.
const MaxConcurrentSessions = 20

// Manager owns every active Session, enforcing one active session per
// peer device, the concurrent-session cap, and reaping expired
// sessions on an interval. The session arena is keyed by peer device_id, not
// by session_id: a device may only have one active session at a time,
// matching the wire model where start_session is rejected outright if
// the target device already has one open.
type Manager struct {
	mu             sync.RWMutex
	sessionsByPeer map[string]*Session
	role           Role
	defaultConfig  Config
	cleanupTicker  *time.Ticker
	stopCleanup    chan struct{}
	rateLimiter    *PeerRateLimiter
}

// NewManager creates a Manager with default session policies and a
// per-peer rate limiter, and starts its background reaper. role is the
// side every session this Manager creates plays (RoleClient on the
// desktop app, RoleAgent on the agent process).
func NewManager(role Role, cfg Config) *Manager {
	if cfg.MaxAge == 0 {
		cfg.MaxAge = time.Hour
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 10 * time.Minute
	}
	if cfg.MaxMessages == 0 {
		cfg.MaxMessages = 1000
	}

	m := &Manager{
		sessionsByPeer: make(map[string]*Session),
		role:           role,
		defaultConfig:  cfg,
		stopCleanup:    make(chan struct{}),
		rateLimiter:    NewPeerRateLimiter(DefaultMessagesPerSecond, DefaultBurst, MaxTrackedPeers),
	}
	m.cleanupTicker = time.NewTicker(30 * time.Second)
	go m.runCleanup()
	return m
}

// CreateSession registers a new session for peerID, rejecting the
// request if peerID already has an active session (one session per
// peer device) or if MaxConcurrentSessions active sessions already
// exist across every peer.
func (m *Manager) CreateSession(id, peerID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, exists := m.sessionsByPeer[peerID]; exists && !existing.IsExpired() {
		return nil, fmt.Errorf("peer device %s already has an active session", peerID)
	}
	if m.activeCountLocked() >= MaxConcurrentSessions {
		return nil, errs.New(errs.CodeRateLimited, fmt.Sprintf("concurrent session cap of %d reached", MaxConcurrentSessions))
	}

	sess := NewSession(id, peerID, m.role, m.defaultConfig)
	m.sessionsByPeer[peerID] = sess
	return sess, nil
}

func (m *Manager) activeCountLocked() int {
	count := 0
	for _, s := range m.sessionsByPeer {
		if !s.IsExpired() {
			count++
		}
	}
	return count
}

// Get retrieves the active session for peerID, reaping it first if
// expired.
func (m *Manager) Get(peerID string) (*Session, bool) {
	m.mu.RLock()
	sess, ok := m.sessionsByPeer[peerID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if sess.IsExpired() {
		m.Remove(peerID)
		return nil, false
	}
	return sess, true
}

// GetBySessionID retrieves the active session addressed by session_id
// rather than peer device id, for routing an inbound frame whose
// envelope only carries session_id. It is an O(n) scan over the
// tracked peers, which is acceptable given MaxConcurrentSessions is a
// small, deliberately bounded cap.
func (m *Manager) GetBySessionID(sessionID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sess := range m.sessionsByPeer {
		if sess.ID() == sessionID {
			return sess, !sess.IsExpired()
		}
	}
	return nil, false
}

// Remove closes and forgets the session for peerID.
func (m *Manager) Remove(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessionsByPeer[peerID]; ok {
		_ = sess.Close()
		delete(m.sessionsByPeer, peerID)
	}
}

// AllowSend checks the per-peer rate limit before a caller attempts
// to enqueue an outbound message.
func (m *Manager) AllowSend(peerID string) bool {
	return m.rateLimiter.Allow(peerID)
}

// Count returns the number of sessions currently tracked (including
// any not yet reaped).
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessionsByPeer)
}

// Close stops the reaper and closes every tracked session.
func (m *Manager) Close() error {
	close(m.stopCleanup)
	m.cleanupTicker.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for peerID, sess := range m.sessionsByPeer {
		_ = sess.Close()
		delete(m.sessionsByPeer, peerID)
	}
	return nil
}

func (m *Manager) runCleanup() {
	for {
		select {
		case <-m.cleanupTicker.C:
			m.reapExpired()
		case <-m.stopCleanup:
			return
		}
	}
}

func (m *Manager) reapExpired() {
	m.mu.Lock()
	var expired []string
	for peerID, sess := range m.sessionsByPeer {
		if sess.IsExpired() {
			expired = append(expired, peerID)
		}
	}
	for _, peerID := range expired {
		if sess, ok := m.sessionsByPeer[peerID]; ok {
			_ = sess.Close()
			delete(m.sessionsByPeer, peerID)
		}
	}
	m.mu.Unlock()

	if len(expired) > 0 {
		logger.Debug("reaped expired sessions", logger.Int("count", len(expired)))
	}
}
