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
	"container/list"
	"sync"

	"golang.org/x/time/rate"

	"github.com/commands-run/desktop-agent/internal/metrics"
)

// DefaultMessagesPerSecond and DefaultBurst configure each peer's token
// bucket: it refills at 10 tokens a second and holds at most 10, so the
// long-run rate is 10 msg/s, but a peer that starts a one-second span
// with a full bucket can pass up to 20 messages within it. The limit is
// not a sliding one-second window.
const (
	DefaultMessagesPerSecond = 10
	DefaultBurst             = 10
	MaxTrackedPeers          = 500
)

// PeerRateLimiter tracks a token-bucket limiter per peer, bounded to
// MaxTrackedPeers entries with FIFO eviction so an unbounded stream of
// distinct peer IDs cannot grow memory without limit.
type PeerRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
	order     *list.List
	elements  map[string]*list.Element
	rps       rate.Limit
	burst     int
	maxPeers  int
}

// NewPeerRateLimiter creates a limiter set using messagesPerSecond and
// burst for every tracked peer, capped at maxPeers distinct peers.
func NewPeerRateLimiter(messagesPerSecond float64, burst, maxPeers int) *PeerRateLimiter {
	return &PeerRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		order:    list.New(),
		elements: make(map[string]*list.Element),
		rps:      rate.Limit(messagesPerSecond),
		burst:    burst,
		maxPeers: maxPeers,
	}
}

// Allow reports whether peerID may send a message now, creating its
// limiter on first use and evicting the oldest tracked peer if the
// bound would otherwise be exceeded.
func (p *PeerRateLimiter) Allow(peerID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	limiter, ok := p.limiters[peerID]
	if !ok {
		if len(p.limiters) >= p.maxPeers {
			p.evictOldestLocked()
		}
		limiter = rate.NewLimiter(p.rps, p.burst)
		p.limiters[peerID] = limiter
		p.elements[peerID] = p.order.PushBack(peerID)
	} else {
		p.touchLocked(peerID)
	}

	ok = limiter.Allow()
	if !ok {
		metrics.RateLimitRejections.Inc()
	}
	return ok
}

func (p *PeerRateLimiter) touchLocked(peerID string) {
	if el, ok := p.elements[peerID]; ok {
		p.order.MoveToBack(el)
	}
}

func (p *PeerRateLimiter) evictOldestLocked() {
	oldest := p.order.Front()
	if oldest == nil {
		return
	}
	peerID := oldest.Value.(string)
	p.order.Remove(oldest)
	delete(p.elements, peerID)
	delete(p.limiters, peerID)
}

// TrackedCount returns the number of peers currently tracked.
func (p *PeerRateLimiter) TrackedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.limiters)
}
