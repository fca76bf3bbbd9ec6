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

package handshake

import (
	"crypto/sha256"
	"fmt"

	"github.com/commands-run/desktop-agent/cryptoprimitives"
)

// ComputeTranscriptHash binds a handshake to the exact field order
// both peers observed on the wire. Unlike a canonically-sorted digest,
// field order here is fixed and meaningful: reordering the same five
// values produces a different hash, so a transcript can never be
// replayed against a differently-ordered handshake.
func ComputeTranscriptHash(sessionID, handshakeID, clientEphPubB64, clientNonceB64, agentEphPubB64 string) string {
	material := fmt.Sprintf("%s|%s|%s|%s|%s", sessionID, handshakeID, clientEphPubB64, clientNonceB64, agentEphPubB64)
	sum := sha256.Sum256([]byte(material))
	return cryptoprimitives.EncodeBase64(sum[:])
}
