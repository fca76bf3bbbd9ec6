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

// Package sessionmachine implements the session lifecycle state
// machine: state transitions, sequence enforcement, a serialized
// per-session send queue, per-peer rate limiting, and the two
// auto-reconnect paths a session takes on transport failure.
package sessionmachine

import (
	"fmt"

	"github.com/commands-run/desktop-agent/internal/metrics"
)

// State is one of the session lifecycle's closed set of states.
type State string

const (
	StateIdle        State = "idle"
	StateHandshaking State = "handshaking"
	StateReady       State = "ready"
	StateEnding      State = "ending"
	StateEnded       State = "ended"
	StateError       State = "error"
)

// validTransitions enumerates every state change this machine permits.
// Any transition not listed here is rejected.
var validTransitions = map[State][]State{
	StateIdle:        {StateHandshaking, StateError},
	StateHandshaking: {StateReady, StateError},
	StateReady:       {StateEnding, StateError},
	StateEnding:      {StateEnded, StateError},
	StateEnded:       {},
	StateError:       {},
}

// CanTransition reports whether from may transition to to.
func CanTransition(from, to State) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// transition validates and records a state change, emitting a metric
// for every attempted transition regardless of outcome.
func transition(current *State, to State) error {
	from := *current
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid session state transition from %s to %s", from, to)
	}
	*current = to
	metrics.SessionStateTransitions.WithLabelValues(string(from), string(to)).Inc()
	return nil
}
