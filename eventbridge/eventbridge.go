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

// Package eventbridge demultiplexes a locally-spawned agent process's
// stdout into desktop events and plain log lines, and retains a bounded
// stderr tail for post-exit fatal-string classification. The desktop
// process never holds session keys; this bridge is its only window
// into what the agent is doing.
package eventbridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/commands-run/desktop-agent/internal/logger"
	"github.com/commands-run/desktop-agent/internal/metrics"
)

const (
	desktopEventPrefix = "__DESKTOP_EVENT__:"
	maxStdoutBuffer     = 1 << 20 // 1 MiB
	maxStderrTail       = 4 << 10 // 4 KiB
	maxLineLength       = 1 << 20
)

// ConversationEvent is a parsed `__DESKTOP_EVENT__:` line, attributed
// to the profile that owns the agent process which emitted it.
type ConversationEvent struct {
	ProfileID string
	Payload   json.RawMessage
}

// StdoutLine is any stdout line that is not a desktop event, forwarded
// verbatim as a generic log line.
type StdoutLine struct {
	ProfileID string
	Line      string
}

// Handler receives demultiplexed output. Implementations must not
// block; the bridge calls them synchronously from its read loop.
type Handler interface {
	HandleConversationEvent(ConversationEvent)
	HandleStdoutLine(StdoutLine)
}

// Bridge demultiplexes one agent process's combined output streams.
type Bridge struct {
	profileID string
	handler   Handler
	log       logger.Logger

	stdoutBuf *boundedBuffer
	stderrBuf *boundedBuffer
}

// New builds a Bridge for the process owned by profileID.
func New(profileID string, handler Handler, log logger.Logger) *Bridge {
	return &Bridge{
		profileID: profileID,
		handler:   handler,
		log:       log,
		stdoutBuf: newBoundedBuffer(maxStdoutBuffer),
		stderrBuf: newBoundedBuffer(maxStderrTail),
	}
}

// Run reads stdout and stderr concurrently until both reach EOF or ctx
// is canceled, returning the first error encountered by either reader.
func (b *Bridge) Run(ctx context.Context, stdout, stderr io.Reader) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.readStdout(ctx, stdout) })
	g.Go(func() error { return b.readStderr(ctx, stderr) })
	return g.Wait()
}

func (b *Bridge) readStdout(ctx context.Context, r io.Reader) error {
	reader := bufio.NewReaderSize(r, 64*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line, err := readLine(reader, maxLineLength)
		if line != "" {
			b.stdoutBuf.Append([]byte(line), func() { metrics.BridgeStdoutTruncations.Inc() })
			b.dispatch(line)
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read stdout: %w", err)
		}
	}
}

func (b *Bridge) readStderr(ctx context.Context, r io.Reader) error {
	reader := bufio.NewReaderSize(r, 8*1024)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line, err := readLine(reader, maxLineLength)
		if line != "" {
			b.stderrBuf.Append([]byte(line+"\n"), nil)
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read stderr: %w", err)
		}
	}
}

func (b *Bridge) dispatch(line string) {
	if rest, ok := strings.CutPrefix(line, desktopEventPrefix); ok {
		var payload json.RawMessage
		if err := json.Unmarshal([]byte(rest), &payload); err != nil {
			metrics.BridgeLinesProcessed.WithLabelValues("desktop_event", "malformed").Inc()
			b.log.Warn("dropping malformed desktop event line", logger.String("profile_id", b.profileID), logger.Error(err))
			return
		}
		metrics.BridgeLinesProcessed.WithLabelValues("desktop_event", "ok").Inc()
		b.handler.HandleConversationEvent(ConversationEvent{ProfileID: b.profileID, Payload: payload})
		return
	}
	metrics.BridgeLinesProcessed.WithLabelValues("log", "ok").Inc()
	b.handler.HandleStdoutLine(StdoutLine{ProfileID: b.profileID, Line: line})
}

// StderrTail returns the last maxStderrTail bytes of stderr observed so
// far, intended for post-exit fatal-string classification.
func (b *Bridge) StderrTail() string {
	return string(b.stderrBuf.Bytes())
}

// ClassifyExit maps the retained stderr tail to a user-facing
// classification using a small set of known fatal substrings; an
// unrecognized tail classifies as "unknown".
func (b *Bridge) ClassifyExit() string {
	tail := b.StderrTail()
	class := classifyStderr(tail)
	metrics.BridgeProcessExits.WithLabelValues(class).Inc()
	return class
}

var fatalPatterns = []struct {
	substr string
	class  string
}{
	{"identity registration conflict", "identity_conflict"},
	{"already registered to another account", "identity_conflict"},
	{"network unreachable", "network_unreachable"},
	{"connection refused", "network_unreachable"},
	{"no such host", "network_unreachable"},
}

func classifyStderr(tail string) string {
	lower := strings.ToLower(tail)
	for _, p := range fatalPatterns {
		if strings.Contains(lower, p.substr) {
			return p.class
		}
	}
	if strings.TrimSpace(tail) == "" {
		return "clean"
	}
	return "unknown"
}

// readLine reads one newline-terminated line (CRLF or LF, trimmed of
// both), truncated to maxLen bytes; the whole line is still consumed
// from r.
func readLine(r *bufio.Reader, maxLen int) (string, error) {
	line, err := r.ReadString('\n')
	if len(line) > maxLen {
		line = line[:maxLen]
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, err
}

// boundedBuffer is a byte buffer capped at a fixed size, dropping the
// oldest bytes to make room for new appends once full.
type boundedBuffer struct {
	mu  sync.Mutex
	cap int
	buf []byte
}

func newBoundedBuffer(capBytes int) *boundedBuffer {
	return &boundedBuffer{cap: capBytes}
}

// Append adds p to the buffer, evicting the oldest bytes if doing so
// would exceed cap. onTruncate, if non-nil, is invoked once per
// eviction-triggering append.
func (b *boundedBuffer) Append(p []byte, onTruncate func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if len(b.buf) > b.cap {
		overflow := len(b.buf) - b.cap
		b.buf = b.buf[overflow:]
		if onTruncate != nil {
			onTruncate()
		}
	}
}

func (b *boundedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}
