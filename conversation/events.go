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

package conversation

import "encoding/json"

// EventKind is the closed sum of shapes a decrypted inbound payload
// can take.
type EventKind string

const (
	EventProgress     EventKind = "progress"
	EventResult       EventKind = "result"
	EventAgentError   EventKind = "agent_error"
	EventSessionEnded EventKind = "session_ended"
	EventSessionError EventKind = "session_error"
	EventUnknown      EventKind = "unknown"
)

// InboundEvent is one classified decrypted payload delivered to a
// Handler. Raw always carries the plaintext bytes Decrypt produced, so
// a Handler that only cares about Unknown payloads can still inspect
// them without a second decode pass.
type InboundEvent struct {
	Kind      EventKind
	MessageID string
	Status    string
	Result    string
	ErrorText string
	Turns     int
	CostUSD   float64
	Model     string
	Raw       []byte
}

// assistantPayload mirrors the shapes an agent turn can send back:
// a running heartbeat, a terminal error, or a completed result. A
// payload tolerated by this struct but matching none of its non-empty
// fields classifies as EventUnknown rather than failing the receive
// path — an opaque agent payload must never crash delivery.
type assistantPayload struct {
	MessageID string  `json:"message_id"`
	Status    string  `json:"status"`
	Result    string  `json:"result"`
	Error     string  `json:"error"`
	Turns     int     `json:"turns"`
	CostUSD   float64 `json:"cost_usd"`
	Model     string  `json:"model"`
}

// classifyPayload inspects decrypted plaintext and sorts it into the
// closed payload sum. A payload that is not even well-formed JSON, or
// that matches none of the known shapes, classifies as EventUnknown
// rather than erroring: the receive path must tolerate opaque agent
// output without ever crashing.
func classifyPayload(raw []byte) *InboundEvent {
	var p assistantPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return &InboundEvent{Kind: EventUnknown, Raw: raw}
	}

	switch {
	case p.Status == "running":
		return &InboundEvent{Kind: EventProgress, MessageID: p.MessageID, Status: p.Status, Raw: raw}
	case p.Error != "":
		return &InboundEvent{Kind: EventAgentError, MessageID: p.MessageID, ErrorText: p.Error, Raw: raw}
	case p.Result != "":
		return &InboundEvent{
			Kind:      EventResult,
			MessageID: p.MessageID,
			Result:    p.Result,
			Turns:     p.Turns,
			CostUSD:   p.CostUSD,
			Model:     p.Model,
			Raw:       raw,
		}
	default:
		return &InboundEvent{Kind: EventUnknown, Raw: raw}
	}
}

// Handler receives every inbound event and lifecycle notification a
// Conversation produces for as long as it stays open. Implementations
// must not block; a Conversation calls these synchronously from its
// receive loop.
type Handler interface {
	// OnReconnecting fires once a send has discovered the relay no
	// longer recognizes the session and a fresh handshake is starting.
	OnReconnecting()
	OnProgress(*InboundEvent)
	OnResult(*InboundEvent)
	OnAgentError(*InboundEvent)
	OnSessionEnded(reason string)
	OnSessionError(err error)
	OnUnknown(*InboundEvent)
}
