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
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/commands-run/desktop-agent/cryptoprimitives"
	"github.com/commands-run/desktop-agent/internal/errs"
	"github.com/commands-run/desktop-agent/internal/logger"
	"github.com/commands-run/desktop-agent/internal/metrics"
)

// Poll timing constants from the handshake's wait-for-ack contract: a
// client polls every interval, each individual poll is bounded by
// perPollTimeout, and the whole handshake gives up after overallDeadline.
const (
	PollInterval    = 500 * time.Millisecond
	PerPollTimeout  = 10 * time.Second
	OverallDeadline = 45 * time.Second
)

// NonceSize is the length of the random client nonce bound into the
// transcript hash.
const NonceSize = 16

// InitiateClient starts round 1: it generates a fresh ephemeral X25519
// pair and nonce and returns both the wire message and the state the
// client must retain until Finalize.
func InitiateClient(sessionID, handshakeID string) (*ClientInit, *ClientState, error) {
	kp, err := cryptoprimitives.GenerateX25519Pair()
	if err != nil {
		return nil, nil, err
	}
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, errs.Wrap(errs.CodeCryptoFormat, "generate client nonce", err)
	}

	init := &ClientInit{
		SessionID:       sessionID,
		HandshakeID:     handshakeID,
		ClientEphPubB64: cryptoprimitives.EncodeBase64(kp.RawPublic()),
		ClientNonceB64:  cryptoprimitives.EncodeBase64(nonce),
	}
	state := &ClientState{
		KeyPair:     kp,
		NonceB64:    init.ClientNonceB64,
		SessionID:   sessionID,
		HandshakeID: handshakeID,
	}

	metrics.HandshakesInitiated.WithLabelValues("initiator").Inc()
	return init, state, nil
}

// RespondAgent performs round 2: the agent generates its own ephemeral
// pair, recomputes the transcript hash over the five ordered fields,
// and signs it with the agent's long-lived Ed25519 identity key.
func RespondAgent(init *ClientInit, identityPriv ed25519.PrivateKey) (*AgentAck, *cryptoprimitives.X25519KeyPair, error) {
	kp, err := cryptoprimitives.GenerateX25519Pair()
	if err != nil {
		return nil, nil, err
	}
	agentEphPubB64 := cryptoprimitives.EncodeBase64(kp.RawPublic())
	transcriptHash := ComputeTranscriptHash(init.SessionID, init.HandshakeID, init.ClientEphPubB64, init.ClientNonceB64, agentEphPubB64)

	digest, err := cryptoprimitives.DecodeBase64(transcriptHash)
	if err != nil {
		return nil, nil, err
	}
	sig := ed25519.Sign(identityPriv, digest)

	metrics.HandshakesInitiated.WithLabelValues("responder").Inc()
	return &AgentAck{
		SessionID:        init.SessionID,
		HandshakeID:      init.HandshakeID,
		AgentEphPubB64:   agentEphPubB64,
		TranscriptSigB64: cryptoprimitives.EncodeBase64(sig),
	}, kp, nil
}

// PollFunc fetches the agent-ack for a handshake, returning (nil, nil)
// while the agent has not yet responded. Transport concerns (HTTP
// calls, relay addressing) live in the caller; this package only
// drives timing and validates the result.
type PollFunc func(ctx context.Context) (*AgentAck, error)

// PollForAck polls poll at PollInterval, bounding each attempt by
// PerPollTimeout and the whole wait by OverallDeadline. It returns
// CodeHandshakeTimeout once the overall deadline elapses without an
// ack.
func PollForAck(ctx context.Context, poll PollFunc) (*AgentAck, error) {
	deadline := time.Now().Add(OverallDeadline)
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	rounds := 0
	for {
		if time.Now().After(deadline) {
			metrics.HandshakesFailed.WithLabelValues(string(errs.CodeHandshakeTimeout)).Inc()
			return nil, errs.New(errs.CodeHandshakeTimeout, "handshake ack not received within overall deadline")
		}

		pollCtx, cancel := context.WithTimeout(ctx, PerPollTimeout)
		ack, err := poll(pollCtx)
		cancel()
		rounds++

		if err != nil {
			logger.Debug("handshake poll attempt failed", logger.Int("round", rounds), logger.Error(err))
		} else if ack != nil {
			metrics.HandshakePolls.Observe(float64(rounds))
			return ack, nil
		}

		select {
		case <-ctx.Done():
			return nil, errs.Wrap(errs.CodeHandshakeTimeout, "handshake cancelled while polling", ctx.Err())
		case <-ticker.C:
		}
	}
}

// FinalizeClient performs round 4: it recomputes the transcript hash,
// verifies the agent's signature over it with the agent's identity
// key, runs ECDH against the agent's ephemeral public key, and derives
// the three session keys. The raw ECDH shared secret is zeroized before
// this function returns, and once ECDH has run state no longer holds
// the client's ephemeral private key (KeyPair.Private is set to nil).
func FinalizeClient(state *ClientState, ack *AgentAck, agentIdentityPubRaw []byte) (*Result, error) {
	timer := metrics.NewTimer()

	transcriptHash := ComputeTranscriptHash(state.SessionID, state.HandshakeID, cryptoprimitives.EncodeBase64(state.KeyPair.RawPublic()), state.NonceB64, ack.AgentEphPubB64)

	digest, err := cryptoprimitives.DecodeBase64(transcriptHash)
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues(string(errs.CodeCryptoFormat)).Inc()
		return nil, err
	}
	sig, err := cryptoprimitives.DecodeBase64(ack.TranscriptSigB64)
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues(string(errs.CodeCryptoFormat)).Inc()
		return nil, err
	}

	ok, err := cryptoprimitives.VerifyEd25519(agentIdentityPubRaw, digest, sig)
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues(string(errs.CodeCryptoFormat)).Inc()
		return nil, err
	}
	if !ok {
		metrics.HandshakesFailed.WithLabelValues(string(errs.CodeSignatureInvalid)).Inc()
		return nil, errs.New(errs.CodeSignatureInvalid, "agent transcript signature verification failed")
	}

	agentEphPubRaw, err := cryptoprimitives.DecodeBase64(ack.AgentEphPubB64)
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues(string(errs.CodeCryptoFormat)).Inc()
		return nil, err
	}

	shared, err := cryptoprimitives.ECDH(state.KeyPair.Private, agentEphPubRaw)
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues(string(errs.CodeCryptoFormat)).Inc()
		return nil, err
	}
	defer cryptoprimitives.Zeroize(shared)
	state.KeyPair.Private = nil

	keys, err := cryptoprimitives.DeriveSessionKeys(shared, digest)
	if err != nil {
		metrics.HandshakesFailed.WithLabelValues(string(errs.CodeCryptoFormat)).Inc()
		return nil, fmt.Errorf("derive session keys: %w", err)
	}

	metrics.HandshakesCompleted.WithLabelValues("success").Inc()
	metrics.HandshakeDuration.WithLabelValues("initiator").Observe(timer.ElapsedSeconds())
	return &Result{SessionKeys: keys, TranscriptHash: transcriptHash}, nil
}
