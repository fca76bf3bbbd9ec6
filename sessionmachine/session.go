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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/commands-run/desktop-agent/cryptoprimitives"
	"github.com/commands-run/desktop-agent/frame"
	"github.com/commands-run/desktop-agent/internal/errs"
	"github.com/commands-run/desktop-agent/internal/metrics"
)

// MaxPlaintextLen is the largest plaintext payload a single frame may
// carry.
const MaxPlaintextLen = 100_000

// Config carries the session lifecycle policies the state machine
// enforces: absolute age, idle timeout, and message count limits.
type Config struct {
	MaxAge      time.Duration
	IdleTimeout time.Duration
	MaxMessages int
}

// Role identifies which side of the session this peer plays, which in
// turn decides which derived key it seals with and which it opens with.
type Role string

const (
	RoleClient Role = "client"
	RoleAgent  Role = "agent"
)

// Session is one encrypted channel to a peer device: the derived
// session keys, monotonic per-direction sequence counters, and a
// serialized send queue so concurrent callers never interleave wire
// writes out of sequence order.
type Session struct {
	mu sync.Mutex

	id        string
	peerID    string
	role      Role
	state     State
	createdAt time.Time
	lastUsed  time.Time
	config    Config

	keys     *cryptoprimitives.SessionKeys
	sendSeq  uint64
	recvSeq  uint64
	msgCount int

	sendQueue chan sendRequest
	done      chan struct{}
}

// NetworkSendFunc delivers one encoded frame to the peer over the
// wire, returning errs.CodeRelayGone if the relay no longer recognizes
// the session. The sequence counter only advances once this returns
// nil, so a failed delivery never consumes a sequence number.
type NetworkSendFunc func(ctx context.Context, f *frame.Frame) error

type sendRequest struct {
	ctx       context.Context
	plaintext []byte
	messageID string
	send      NetworkSendFunc
	result    chan sendResult
}

type sendResult struct {
	f   *frame.Frame
	err error
}

// NewSession constructs a Session in the handshaking state; it moves
// to ready once the caller calls Activate with derived keys. role
// decides which derived key this side seals outbound frames with and
// which it expects inbound frames to be sealed with. Per-direction
// sequence counters start at 1, never 0: the wire contract requires
// next_out_seq and every frame's seq to be >= 1.
func NewSession(id, peerID string, role Role, cfg Config) *Session {
	s := &Session{
		id:        id,
		peerID:    peerID,
		role:      role,
		state:     StateHandshaking,
		createdAt: time.Now(),
		lastUsed:  time.Now(),
		config:    cfg,
		sendSeq:   1,
		recvSeq:   1,
		sendQueue: make(chan sendRequest),
		done:      make(chan struct{}),
	}
	go s.runSendLoop()
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// PeerID returns the peer device identifier this session is bound to.
func (s *Session) PeerID() string { return s.peerID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the session to a new state, rejecting illegal
// transitions per the closed state graph.
func (s *Session) Transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return transition(&s.state, to)
}

// Activate installs session keys and moves the session to ready; it
// is called once the handshake engine has derived keys.
func (s *Session) Activate(keys *cryptoprimitives.SessionKeys) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := transition(&s.state, StateReady); err != nil {
		return err
	}
	s.keys = keys
	metrics.SessionsCreated.WithLabelValues("success").Inc()
	metrics.SessionsActive.Inc()
	return nil
}

// IsExpired reports whether the session has hit its absolute age,
// idle timeout, or message count limit.
func (s *Session) IsExpired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isExpiredLocked()
}

func (s *Session) isExpiredLocked() bool {
	if s.state == StateEnded || s.state == StateError {
		return true
	}
	now := time.Now()
	if s.config.MaxAge > 0 && now.After(s.createdAt.Add(s.config.MaxAge)) {
		return true
	}
	if s.config.IdleTimeout > 0 && now.After(s.lastUsed.Add(s.config.IdleTimeout)) {
		return true
	}
	if s.config.MaxMessages > 0 && s.msgCount >= s.config.MaxMessages {
		return true
	}
	return false
}

// Encrypt seals plaintext into a wire frame and hands it to send,
// routed through the session's serialized send queue so a later call
// never starts sealing before an earlier call's send has returned. The
// sequence counter only advances after send reports success, so a
// failed delivery leaves next_out_seq untouched and the caller may
// retry the same logical message without skipping a sequence number.
func (s *Session) Encrypt(ctx context.Context, messageID string, plaintext []byte, send NetworkSendFunc) (*frame.Frame, error) {
	if len(plaintext) > MaxPlaintextLen {
		return nil, errs.New(errs.CodeCryptoFormat, fmt.Sprintf("plaintext exceeds %d byte cap", MaxPlaintextLen))
	}

	req := sendRequest{ctx: ctx, plaintext: plaintext, messageID: messageID, send: send, result: make(chan sendResult, 1)}
	select {
	case s.sendQueue <- req:
	case <-s.done:
		return nil, errs.New(errs.CodeCryptoFormat, "session closed")
	}

	res := <-req.result
	return res.f, res.err
}

func (s *Session) runSendLoop() {
	for {
		select {
		case req := <-s.sendQueue:
			f, err := s.sealAndSend(req.ctx, req.messageID, req.plaintext, req.send)
			req.result <- sendResult{f: f, err: err}
		case <-s.done:
			return
		}
	}
}

// sendKeyAndDirectionLocked returns the key and wire direction this
// side seals outbound frames with: a client sends client-to-agent, an
// agent sends agent-to-client.
func (s *Session) sendKeyAndDirectionLocked() ([32]byte, frame.Direction) {
	if s.role == RoleAgent {
		return s.keys.AgentToClient, frame.AgentToClient
	}
	return s.keys.ClientToAgent, frame.ClientToAgent
}

// recvKeyAndDirectionLocked returns the key and wire direction this
// side expects inbound frames to carry: the opposite of its send pair.
func (s *Session) recvKeyAndDirectionLocked() ([32]byte, frame.Direction) {
	if s.role == RoleAgent {
		return s.keys.ClientToAgent, frame.ClientToAgent
	}
	return s.keys.AgentToClient, frame.AgentToClient
}

// sealAndSend builds the frame at the current sendSeq, releases the
// lock for the network round trip, and only commits sendSeq, msgCount,
// and lastUsed once send has actually succeeded.
func (s *Session) sealAndSend(ctx context.Context, messageID string, plaintext []byte, send NetworkSendFunc) (*frame.Frame, error) {
	s.mu.Lock()
	if s.isExpiredLocked() {
		s.mu.Unlock()
		return nil, errs.New(errs.CodeCryptoFormat, "session expired")
	}
	sendKey, sendDir := s.sendKeyAndDirectionLocked()
	seq := s.sendSeq
	s.mu.Unlock()

	f, err := frame.Encode(sendKey[:], s.id, messageID, seq, sendDir, plaintext)
	if err != nil {
		return nil, err
	}

	if err := send(ctx, f); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sendSeq++
	s.msgCount++
	s.lastUsed = time.Now()
	s.mu.Unlock()

	metrics.SessionMessageSize.WithLabelValues("outbound").Observe(float64(len(plaintext)))
	return f, nil
}

// Decrypt opens an inbound frame, enforcing strict sequence
// monotonicity against recvSeq.
func (s *Session) Decrypt(f *frame.Frame) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isExpiredLocked() {
		return nil, errs.New(errs.CodeCryptoFormat, "session expired")
	}
	recvKey, recvDir := s.recvKeyAndDirectionLocked()
	pt, err := frame.Decode(recvKey[:], f, recvDir, s.recvSeq)
	if err != nil {
		return nil, err
	}
	s.recvSeq++
	s.lastUsed = time.Now()
	metrics.SessionMessageSize.WithLabelValues("inbound").Observe(float64(len(pt)))
	return pt, nil
}

// Close transitions the session to ended, stops its send loop, and
// zeroizes its derived keys.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateEnded && s.state != StateError {
		if s.state == StateReady {
			if err := transition(&s.state, StateEnding); err == nil {
				_ = transition(&s.state, StateEnded)
			} else {
				s.state = StateEnded
			}
		} else {
			s.state = StateEnded
		}
		metrics.SessionsActive.Dec()
		metrics.SessionsClosed.Inc()
	}

	select {
	case <-s.done:
	default:
		close(s.done)
	}

	if s.keys != nil {
		s.keys.Zero()
	}
	return nil
}
