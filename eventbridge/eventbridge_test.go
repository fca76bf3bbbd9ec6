package eventbridge

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commands-run/desktop-agent/internal/logger"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []ConversationEvent
	lines  []StdoutLine
}

func (h *recordingHandler) HandleConversationEvent(ev ConversationEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHandler) HandleStdoutLine(l StdoutLine) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = append(h.lines, l)
}

func testLogger() logger.Logger { return logger.NewLogger(io.Discard, logger.ErrorLevel) }

func TestBridgeDispatchesDesktopEventAndLogLine(t *testing.T) {
	h := &recordingHandler{}
	b := New("profile-1", h, testLogger())

	stdout := strings.NewReader(
		"__DESKTOP_EVENT__:{\"type\":\"turn_started\"}\n" +
			"plain log line\n",
	)
	stderr := strings.NewReader("")

	require.NoError(t, b.Run(context.Background(), stdout, stderr))

	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.events, 1)
	assert.Equal(t, "profile-1", h.events[0].ProfileID)
	assert.JSONEq(t, `{"type":"turn_started"}`, string(h.events[0].Payload))

	require.Len(t, h.lines, 1)
	assert.Equal(t, "plain log line", h.lines[0].Line)
}

func TestBridgeDropsMalformedDesktopEventLine(t *testing.T) {
	h := &recordingHandler{}
	b := New("profile-1", h, testLogger())

	stdout := strings.NewReader("__DESKTOP_EVENT__:{not json\n")
	stderr := strings.NewReader("")

	require.NoError(t, b.Run(context.Background(), stdout, stderr))

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Empty(t, h.events)
	assert.Empty(t, h.lines)
}

func TestBridgeReturnsWhenStdoutPipeCloses(t *testing.T) {
	h := &recordingHandler{}
	b := New("profile-1", h, testLogger())

	pr, pw := io.Pipe()

	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background(), pr, strings.NewReader("")) }()

	require.NoError(t, pw.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after stdout pipe closed")
	}
}

func TestBoundedBufferEvictsOldestBytes(t *testing.T) {
	b := newBoundedBuffer(8)
	var truncations int
	onTrunc := func() { truncations++ }

	b.Append([]byte("12345678"), onTrunc)
	assert.Equal(t, "12345678", string(b.Bytes()))

	b.Append([]byte("9"), onTrunc)
	assert.Equal(t, "23456789", string(b.Bytes()))
	assert.Equal(t, 1, truncations)
}

func TestClassifyStderrKnownPatterns(t *testing.T) {
	assert.Equal(t, "identity_conflict", classifyStderr("fatal: identity registration conflict with existing account"))
	assert.Equal(t, "network_unreachable", classifyStderr("dial tcp: network unreachable"))
	assert.Equal(t, "clean", classifyStderr("  \n "))
	assert.Equal(t, "unknown", classifyStderr("something else entirely"))
}

func TestBridgeClassifyExitUsesRetainedStderrTail(t *testing.T) {
	h := &recordingHandler{}
	b := New("profile-1", h, testLogger())

	stdout := strings.NewReader("")
	stderr := strings.NewReader("fatal: network unreachable\n")
	require.NoError(t, b.Run(context.Background(), stdout, stderr))

	assert.Equal(t, "network_unreachable", b.ClassifyExit())
}
