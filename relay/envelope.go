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

package relay

import "github.com/commands-run/desktop-agent/frame"

// MessageEnvelopeType is the only "type" value a session.message
// envelope ever carries on this wire.
const MessageEnvelopeType = "session.message"

// MessageEnvelope is the wire envelope POSTed to /messages and
// delivered back over the SSE stream: a frame.Frame addressed by
// session_id and message_id, additionally tagged with the handshake_id
// that derived the keys it is sealed under and an explicit encrypted
// marker so a future plaintext control envelope can share the same
// outer shape without ambiguity.
type MessageEnvelope struct {
	Type        string `json:"type"`
	SessionID   string `json:"session_id"`
	MessageID   string `json:"message_id"`
	HandshakeID string `json:"handshake_id"`
	Encrypted   bool   `json:"encrypted"`
	Alg         string `json:"alg"`
	Direction   string `json:"direction"`
	Seq         uint64 `json:"seq"`
	Nonce       string `json:"nonce"`
	Ciphertext  string `json:"ciphertext"`
	Tag         string `json:"tag"`
	AAD         string `json:"aad"`
}

// NewMessageEnvelope wraps f as the session.message envelope bound to
// handshakeID.
func NewMessageEnvelope(handshakeID string, f *frame.Frame) *MessageEnvelope {
	return &MessageEnvelope{
		Type:        MessageEnvelopeType,
		SessionID:   f.SessionID,
		MessageID:   f.MessageID,
		HandshakeID: handshakeID,
		Encrypted:   true,
		Alg:         f.Alg,
		Direction:   f.Direction,
		Seq:         f.Seq,
		Nonce:       f.NonceB64,
		Ciphertext:  f.CiphertextB64,
		Tag:         f.TagB64,
		AAD:         f.AADB64,
	}
}

// Frame unwraps the envelope back into the internal frame.Frame shape
// frame.Decode expects.
func (e *MessageEnvelope) Frame() *frame.Frame {
	return &frame.Frame{
		SessionID:     e.SessionID,
		MessageID:     e.MessageID,
		Seq:           e.Seq,
		Direction:     e.Direction,
		Alg:           e.Alg,
		NonceB64:      e.Nonce,
		CiphertextB64: e.Ciphertext,
		TagB64:        e.Tag,
		AADB64:        e.AAD,
	}
}
