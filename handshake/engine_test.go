package handshake

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commands-run/desktop-agent/internal/errs"
)

func TestTranscriptHashDeterministicAndOrderSensitive(t *testing.T) {
	a := ComputeTranscriptHash("sess", "hs", "client-eph", "nonce", "agent-eph")
	b := ComputeTranscriptHash("sess", "hs", "client-eph", "nonce", "agent-eph")
	assert.Equal(t, a, b)

	reordered := ComputeTranscriptHash("hs", "sess", "client-eph", "nonce", "agent-eph")
	assert.NotEqual(t, a, reordered)
}

func TestFullHandshakeRoundTrip(t *testing.T) {
	agentPub, agentPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	init, clientState, err := InitiateClient("sess-1", "hs-1")
	require.NoError(t, err)

	ack, agentKP, err := RespondAgent(init, agentPriv)
	require.NoError(t, err)
	_ = agentKP

	result, err := FinalizeClient(clientState, ack, agentPub)
	require.NoError(t, err)
	assert.Len(t, result.SessionKeys.ClientToAgent, 32)
	assert.Len(t, result.SessionKeys.AgentToClient, 32)
	assert.Len(t, result.SessionKeys.Control, 32)
	assert.NotEqual(t, result.SessionKeys.ClientToAgent, result.SessionKeys.AgentToClient)
}

func TestFinalizeClientRejectsBadSignature(t *testing.T) {
	_, wrongPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	agentPub, agentPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_ = wrongPriv

	init, clientState, err := InitiateClient("sess-2", "hs-2")
	require.NoError(t, err)
	ack, _, err := RespondAgent(init, agentPriv)
	require.NoError(t, err)

	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_ = agentPub

	_, err = FinalizeClient(clientState, ack, otherPub)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeSignatureInvalid))
}

func TestPollForAckSucceedsOnceReady(t *testing.T) {
	attempts := 0
	poll := func(ctx context.Context) (*AgentAck, error) {
		attempts++
		if attempts < 3 {
			return nil, nil
		}
		return &AgentAck{SessionID: "sess"}, nil
	}

	ack, err := PollForAck(context.Background(), poll)
	require.NoError(t, err)
	assert.Equal(t, "sess", ack.SessionID)
	assert.GreaterOrEqual(t, attempts, 3)
}

func TestPollForAckTimesOutOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	poll := func(ctx context.Context) (*AgentAck, error) {
		return nil, nil
	}

	_, err := PollForAck(ctx, poll)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeHandshakeTimeout))
}
