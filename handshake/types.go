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

// Package handshake drives the four-round key agreement that bootstraps
// a session: client-init, agent-ack, client poll, and client
// derive-and-verify. No algorithm is ever negotiated — X25519 ephemeral
// keys, HKDF-SHA256, and Ed25519 transcript signatures are the only
// path through.
package handshake

import "github.com/commands-run/desktop-agent/cryptoprimitives"

// ClientInit is round 1: the client announces a new handshake with a
// fresh ephemeral public key and nonce.
type ClientInit struct {
	SessionID       string `json:"session_id"`
	HandshakeID     string `json:"handshake_id"`
	ClientEphPubB64 string `json:"client_eph_pub_b64"`
	ClientNonceB64  string `json:"client_nonce_b64"`
}

// AgentAck is round 2: the agent's ephemeral key and a signature over
// the full transcript hash, proving the agent's long-lived identity
// key endorses this specific handshake.
type AgentAck struct {
	SessionID        string `json:"session_id"`
	HandshakeID      string `json:"handshake_id"`
	AgentEphPubB64   string `json:"agent_eph_pub_b64"`
	TranscriptSigB64 string `json:"transcript_sig_b64"`
}

// Result is what a completed handshake produces: the derived session
// keys and the transcript hash they were bound to.
type Result struct {
	SessionKeys    *cryptoprimitives.SessionKeys
	TranscriptHash string
}

// ClientState holds the ephemeral material a client must retain
// between round 1 and round 4. FinalizeClient sets KeyPair.Private to
// nil as soon as it has run ECDH with it.
type ClientState struct {
	KeyPair     *cryptoprimitives.X25519KeyPair
	NonceB64    string
	SessionID   string
	HandshakeID string
}
