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

// Package frame implements the wire codec for encrypted session
// messages: deterministic nonce construction, AAD binding, and strict
// decode validation. Every frame carries exactly one AES-256-GCM seal.
package frame

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/commands-run/desktop-agent/cryptoprimitives"
	"github.com/commands-run/desktop-agent/internal/errs"
	"github.com/commands-run/desktop-agent/internal/metrics"
)

// Direction identifies which of the two session keys a frame uses and
// which way it travels.
type Direction string

const (
	ClientToAgent Direction = "c2a"
	AgentToClient Direction = "a2c"
)

// directionPrefix is the fixed 4-byte nonce prefix for each direction,
// the null byte pads the 3-character tag to a full word.
func directionPrefix(dir Direction) ([4]byte, error) {
	switch dir {
	case ClientToAgent:
		return [4]byte{'c', '2', 'a', 0}, nil
	case AgentToClient:
		return [4]byte{'a', '2', 'c', 0}, nil
	default:
		return [4]byte{}, errs.New(errs.CodeCryptoFormat, fmt.Sprintf("unknown frame direction %q", dir))
	}
}

// Alg is the only AEAD algorithm tag this codec ever emits or accepts.
const Alg = "aes-256-gcm"

// Frame is the wire representation of one encrypted message, with all
// binary fields base64-encoded for JSON transport.
type Frame struct {
	SessionID     string `json:"session_id"`
	MessageID     string `json:"message_id"`
	Seq           uint64 `json:"seq"`
	Direction     string `json:"direction"`
	Alg           string `json:"alg"`
	NonceB64      string `json:"nonce_b64"`
	CiphertextB64 string `json:"ciphertext_b64"`
	TagB64        string `json:"tag_b64"`
	AADB64        string `json:"aad_b64"`
}

// BuildNonce deterministically constructs the 12-byte AES-GCM nonce
// from direction and sequence number: bytes 0-3 are the direction
// prefix, bytes 4-11 are the big-endian sequence number. The same
// (direction, seq) pair always produces the same nonce, which is safe
// here only because a session key is never reused across directions
// or replayed sequence numbers.
func BuildNonce(dir Direction, seq uint64) ([]byte, error) {
	prefix, err := directionPrefix(dir)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, cryptoprimitives.AEADNonceSize)
	copy(nonce[0:4], prefix[:])
	binary.BigEndian.PutUint64(nonce[4:12], seq)
	return nonce, nil
}

// BuildAAD constructs the additional authenticated data binding a
// frame to its session, message identity, sequence number, and
// direction: base64("session_id|message_id|seq|direction").
func BuildAAD(sessionID, messageID string, seq uint64, dir Direction) []byte {
	raw := fmt.Sprintf("%s|%s|%d|%s", sessionID, messageID, seq, dir)
	return []byte(cryptoprimitives.EncodeBase64([]byte(raw)))
}

// Encode seals plaintext into a wire Frame for the given session,
// message, sequence number, and direction, using key.
func Encode(key []byte, sessionID, messageID string, seq uint64, dir Direction, plaintext []byte) (*Frame, error) {
	timer := metrics.NewTimer()
	nonce, err := BuildNonce(dir, seq)
	if err != nil {
		metrics.FramesProcessed.WithLabelValues("encode", "error").Inc()
		return nil, err
	}
	aad := BuildAAD(sessionID, messageID, seq, dir)

	ct, tag, err := cryptoprimitives.AESGCMSeal(key, nonce, aad, plaintext)
	if err != nil {
		metrics.FramesProcessed.WithLabelValues("encode", "error").Inc()
		return nil, err
	}

	f := &Frame{
		SessionID:     sessionID,
		MessageID:     messageID,
		Seq:           seq,
		Direction:     string(dir),
		Alg:           Alg,
		NonceB64:      cryptoprimitives.EncodeBase64(nonce),
		CiphertextB64: cryptoprimitives.EncodeBase64(ct),
		TagB64:        cryptoprimitives.EncodeBase64(tag),
		AADB64:        string(aad),
	}

	metrics.FramesProcessed.WithLabelValues("encode", "success").Inc()
	metrics.FrameSize.Observe(float64(len(plaintext)))
	metrics.FrameProcessingDuration.WithLabelValues("encode").Observe(timer.ElapsedSeconds())
	return f, nil
}

// Decode validates and opens a wire Frame with key, checking that the
// recomputed nonce and AAD match what is on the wire before ever
// attempting to open the ciphertext. Any mismatch in alg, sequence
// expectations, nonce recomputation, or tag length fails closed.
func Decode(key []byte, f *Frame, expectedDir Direction, expectedSeq uint64) ([]byte, error) {
	timer := metrics.NewTimer()

	if f.Alg != Alg {
		metrics.FramesProcessed.WithLabelValues("decode", "error").Inc()
		return nil, errs.New(errs.CodeCryptoFormat, fmt.Sprintf("unsupported frame algorithm %q", f.Alg))
	}
	if Direction(f.Direction) != expectedDir {
		metrics.FramesProcessed.WithLabelValues("decode", "error").Inc()
		return nil, errs.New(errs.CodeCryptoFormat, fmt.Sprintf("frame direction %q does not match expected %q", f.Direction, expectedDir))
	}
	if f.Seq != expectedSeq {
		metrics.SequenceViolations.Inc()
		metrics.FramesProcessed.WithLabelValues("decode", "error").Inc()
		return nil, errs.New(errs.CodeSequenceViolation, fmt.Sprintf("expected seq %d, got %d", expectedSeq, f.Seq))
	}

	nonce, err := cryptoprimitives.DecodeBase64(f.NonceB64)
	if err != nil {
		metrics.FramesProcessed.WithLabelValues("decode", "error").Inc()
		return nil, err
	}
	expectedNonce, err := BuildNonce(expectedDir, expectedSeq)
	if err != nil {
		return nil, err
	}
	if !cryptoprimitives.ConstantTimeEqual(nonce, expectedNonce) {
		metrics.FramesProcessed.WithLabelValues("decode", "error").Inc()
		return nil, errs.New(errs.CodeCryptoFormat, "frame nonce does not match recomputed nonce")
	}

	expectedAAD := BuildAAD(f.SessionID, f.MessageID, f.Seq, Direction(f.Direction))
	if !cryptoprimitives.ConstantTimeEqual([]byte(f.AADB64), expectedAAD) {
		metrics.FramesProcessed.WithLabelValues("decode", "error").Inc()
		return nil, errs.New(errs.CodeCryptoFormat, "frame aad does not match recomputed aad")
	}

	ct, err := cryptoprimitives.DecodeBase64(f.CiphertextB64)
	if err != nil {
		metrics.FramesProcessed.WithLabelValues("decode", "error").Inc()
		return nil, err
	}
	tag, err := cryptoprimitives.DecodeBase64(f.TagB64)
	if err != nil {
		metrics.FramesProcessed.WithLabelValues("decode", "error").Inc()
		return nil, err
	}
	if len(tag) != cryptoprimitives.AEADTagSize {
		metrics.DecryptFailures.WithLabelValues("auth_tag").Inc()
		metrics.FramesProcessed.WithLabelValues("decode", "error").Inc()
		return nil, errs.New(errs.CodeCryptoFormat, fmt.Sprintf("tag must be %d bytes, got %d", cryptoprimitives.AEADTagSize, len(tag)))
	}

	pt, err := cryptoprimitives.AESGCMOpen(key, expectedNonce, expectedAAD, ct, tag)
	if err != nil {
		metrics.DecryptFailures.WithLabelValues("auth_tag").Inc()
		metrics.FramesProcessed.WithLabelValues("decode", "error").Inc()
		return nil, err
	}

	metrics.FramesProcessed.WithLabelValues("decode", "success").Inc()
	metrics.FrameSize.Observe(float64(len(pt)))
	metrics.FrameProcessingDuration.WithLabelValues("decode").Observe(timer.ElapsedSeconds())
	return pt, nil
}

// ValidateBase64Field is a small helper for callers decoding frames
// off the wire that want to surface a CryptoFormatError for a
// specific named field before calling Decode.
func ValidateBase64Field(name, value string) error {
	if _, err := base64.StdEncoding.DecodeString(value); err != nil {
		return errs.New(errs.CodeCryptoFormat, fmt.Sprintf("field %s is not valid base64", name))
	}
	return nil
}
