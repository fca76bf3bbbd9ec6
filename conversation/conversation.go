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

// Package conversation is the SessionStateMachine-driven hub: it runs
// the handshake against a peer device, then serializes outbound sends
// and dispatches inbound frames for the session's lifetime, wiring
// handshake, relay, and sessionmachine into one end-to-end session
// open/send/receive/close lifecycle.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/commands-run/desktop-agent/frame"
	"github.com/commands-run/desktop-agent/handshake"
	"github.com/commands-run/desktop-agent/internal/errs"
	"github.com/commands-run/desktop-agent/internal/logger"
	"github.com/commands-run/desktop-agent/internal/metrics"
	"github.com/commands-run/desktop-agent/relay"
	"github.com/commands-run/desktop-agent/sessionmachine"
)

// Conversation opens and drives one end-to-end encrypted session
// against a single peer device. manager must have been built with
// sessionmachine.RoleClient: a Conversation always plays the
// initiating side of the handshake.
type Conversation struct {
	relayClient *relay.Client
	baseURL     string
	manager     *sessionmachine.Manager
	backoff     sessionmachine.BackoffPolicy
	handler     Handler
	log         logger.Logger

	mu             sync.Mutex
	peerID         string
	conversationID string
	handshakeID    string
	session        *sessionmachine.Session
	cancelReceive  context.CancelFunc
}

// New builds a Conversation driven by relayClient against baseURL,
// registering sessions with manager and reporting every inbound event
// and lifecycle change to handler.
func New(relayClient *relay.Client, baseURL string, manager *sessionmachine.Manager, backoff sessionmachine.BackoffPolicy, handler Handler, log logger.Logger) *Conversation {
	return &Conversation{
		relayClient: relayClient,
		baseURL:     baseURL,
		manager:     manager,
		backoff:     backoff,
		handler:     handler,
		log:         log,
	}
}

// Open runs the four-round handshake against peerDeviceID, binds the
// resulting session to conversationID, and starts its receive loop.
// Open rejects a peer device that already has an active session: the
// arena holds exactly one session per device.
func (c *Conversation) Open(ctx context.Context, peerDeviceID, conversationID string) error {
	sess, handshakeID, err := c.handshakeAndCreateSession(ctx, peerDeviceID, conversationID)
	if err != nil {
		return err
	}

	receiveCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.peerID = peerDeviceID
	c.conversationID = conversationID
	c.handshakeID = handshakeID
	c.session = sess
	c.cancelReceive = cancel
	c.mu.Unlock()

	go c.runReceiveLoop(receiveCtx, sess)
	return nil
}

// handshakeAndCreateSession drives all four handshake rounds against
// peerDeviceID over the relay and registers the resulting session with
// manager, returning it ready to send and receive.
func (c *Conversation) handshakeAndCreateSession(ctx context.Context, peerDeviceID, conversationID string) (*sessionmachine.Session, string, error) {
	sessionID := sessionmachine.NewSessionID()
	handshakeID := sessionmachine.NewHandshakeID()

	init, state, err := handshake.InitiateClient(sessionID, handshakeID)
	if err != nil {
		return nil, "", err
	}

	body := relay.ClientInitRequest{
		HandshakeID:              handshakeID,
		DeviceID:                 peerDeviceID,
		ClientEphemeralPublicKey: init.ClientEphPubB64,
		ClientSessionNonce:       init.ClientNonceB64,
		ConversationID:           conversationID,
	}
	if err := c.relayClient.PostClientInit(ctx, c.baseURL, sessionID, body); err != nil {
		return nil, "", fmt.Errorf("post client-init: %w", err)
	}

	ack, err := handshake.PollForAck(ctx, func(pollCtx context.Context) (*handshake.AgentAck, error) {
		status, serr := c.relayClient.GetHandshakeStatus(pollCtx, c.baseURL, sessionID, handshakeID)
		if serr != nil {
			return nil, serr
		}
		if status.Status != "agent_acknowledged" {
			return nil, nil
		}
		return &handshake.AgentAck{
			SessionID:        sessionID,
			HandshakeID:      handshakeID,
			AgentEphPubB64:   status.AgentEphemeralPublicKey,
			TranscriptSigB64: status.TranscriptSignature,
		}, nil
	})
	if err != nil {
		return nil, "", err
	}

	agentIdentityPubRaw, err := c.relayClient.GetIdentityKey(ctx, c.baseURL, peerDeviceID)
	if err != nil {
		return nil, "", fmt.Errorf("fetch agent identity key: %w", err)
	}

	result, err := handshake.FinalizeClient(state, ack, agentIdentityPubRaw)
	if err != nil {
		return nil, "", err
	}

	sess, err := c.manager.CreateSession(sessionID, peerDeviceID)
	if err != nil {
		result.SessionKeys.Zero()
		return nil, "", err
	}
	if err := sess.Activate(result.SessionKeys); err != nil {
		c.manager.Remove(peerDeviceID)
		return nil, "", err
	}

	c.log.Info("session handshake complete",
		logger.String("peer_device_id", peerDeviceID),
		logger.String("session_id", sessionID),
		logger.String("handshake_id", handshakeID))
	return sess, handshakeID, nil
}

// Send encrypts prompt as a user message and delivers it to the peer
// device, gated by the per-device rate limit, transparently
// reconnecting exactly once if the relay reports the session gone.
func (c *Conversation) Send(ctx context.Context, prompt string) error {
	c.mu.Lock()
	sess := c.session
	peerID := c.peerID
	conversationID := c.conversationID
	c.mu.Unlock()
	if sess == nil {
		return fmt.Errorf("conversation is not open")
	}

	if !c.manager.AllowSend(peerID) {
		return errs.New(errs.CodeRateLimited, fmt.Sprintf("per-device rate limit exceeded for %s", peerID))
	}

	messageID := sessionmachine.NewMessageID()
	payload, err := json.Marshal(struct {
		SessionID string `json:"session_id"`
		MessageID string `json:"message_id"`
		Prompt    string `json:"prompt"`
	}{SessionID: sess.ID(), MessageID: messageID, Prompt: prompt})
	if err != nil {
		return fmt.Errorf("marshal message payload: %w", err)
	}

	send := func(sendCtx context.Context) error {
		c.mu.Lock()
		active := c.session
		handshakeID := c.handshakeID
		c.mu.Unlock()

		_, serr := active.Encrypt(sendCtx, messageID, payload, func(frameCtx context.Context, f *frame.Frame) error {
			envelope := relay.NewMessageEnvelope(handshakeID, f)
			return c.relayClient.PostMessage(frameCtx, c.baseURL, active.ID(), envelope)
		})
		return serr
	}
	reconnect := func(reconnectCtx context.Context) error {
		return c.reconnect(reconnectCtx, peerID, conversationID)
	}

	return sessionmachine.SendWithReconnect(ctx, send, reconnect)
}

// reconnect runs the auto-reconnect path triggered by a relay-gone
// send failure: tear the stale session down, announce
// session.reconnecting, and run a fresh handshake bound to the same
// conversation. SendWithReconnect retries the send exactly once after
// this returns.
func (c *Conversation) reconnect(ctx context.Context, peerID, conversationID string) error {
	timer := metrics.NewTimer()
	c.handler.OnReconnecting()

	c.mu.Lock()
	oldCancel := c.cancelReceive
	c.mu.Unlock()
	if oldCancel != nil {
		oldCancel()
	}
	c.manager.Remove(peerID)

	sess, handshakeID, err := c.handshakeAndCreateSession(ctx, peerID, conversationID)
	if err != nil {
		return err
	}

	receiveCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.session = sess
	c.handshakeID = handshakeID
	c.cancelReceive = cancel
	c.mu.Unlock()

	go c.runReceiveLoop(receiveCtx, sess)
	metrics.SessionDuration.WithLabelValues("reconnect").Observe(timer.ElapsedSeconds())
	return nil
}

// runReceiveLoop subscribes to the session's event stream and
// dispatches every delivered envelope until the stream ends, the
// relay reports the session gone, or ctx is canceled by Close or a
// reconnect tearing this loop down in favor of a fresh one.
func (c *Conversation) runReceiveLoop(ctx context.Context, sess *sessionmachine.Session) {
	path := fmt.Sprintf("/gateway/v1/sessions/%s/events", sess.ID())
	sub := relay.NewSubscription(c.relayClient, c.baseURL, path)

	err := sub.Run(ctx, c.backoff, func(ev relay.Event) {
		c.handleEvent(sess, ev)
	})
	if err == nil || ctx.Err() != nil {
		return
	}

	if errs.Is(err, errs.CodeRelayGone) {
		c.manager.Remove(sess.PeerID())
		c.handler.OnSessionEnded("relay reports the session no longer exists")
		return
	}

	_ = sess.Transition(sessionmachine.StateError)
	c.handler.OnSessionError(err)
}

// handleEvent decodes one SSE event into a session.message envelope,
// opens its frame in strict sequence, and routes the resulting
// payload into the closed event sum. A malformed envelope or a frame
// that fails sequence/crypto validation is reported, never panics.
func (c *Conversation) handleEvent(sess *sessionmachine.Session, ev relay.Event) {
	var envelope relay.MessageEnvelope
	if err := json.Unmarshal([]byte(ev.Data), &envelope); err != nil || envelope.Type != relay.MessageEnvelopeType {
		c.handler.OnUnknown(&InboundEvent{Kind: EventUnknown, Raw: []byte(ev.Data)})
		return
	}

	pt, err := sess.Decrypt(envelope.Frame())
	if err != nil {
		_ = sess.Transition(sessionmachine.StateError)
		c.handler.OnSessionError(err)
		return
	}

	ev2 := classifyPayload(pt)
	switch ev2.Kind {
	case EventProgress:
		c.handler.OnProgress(ev2)
	case EventAgentError:
		c.handler.OnAgentError(ev2)
	case EventResult:
		c.handler.OnResult(ev2)
	default:
		c.handler.OnUnknown(ev2)
	}
}

// Close tears down the active session and stops its receive loop.
func (c *Conversation) Close() error {
	c.mu.Lock()
	cancel := c.cancelReceive
	peerID := c.peerID
	c.session = nil
	c.cancelReceive = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if peerID != "" {
		c.manager.Remove(peerID)
	}
	return nil
}
