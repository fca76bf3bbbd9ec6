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

import "github.com/google/uuid"

// NewSessionID generates the UUIDv4 session_id a new Session is keyed
// by.
func NewSessionID() string { return uuid.NewString() }

// NewHandshakeID generates the UUIDv4 handshake_id for one handshake
// attempt on a session.
func NewHandshakeID() string { return uuid.NewString() }

// NewMessageID generates the UUIDv4 message_id stamped on one outbound
// frame.
func NewMessageID() string { return uuid.NewString() }
