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

package relay

import (
	"bufio"
	"container/list"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/commands-run/desktop-agent/internal/errs"
	"github.com/commands-run/desktop-agent/internal/metrics"
	"github.com/commands-run/desktop-agent/sessionmachine"
)

// Event is one parsed SSE event.
type Event struct {
	ID   string
	Name string
	Data string
}

// EventHandler is invoked once per de-duplicated event.
type EventHandler func(Event)

const (
	maxParseBuffer = 1 << 20 // 1 MiB
	maxEventData   = 512 << 10
	dedupCapacity  = 200
)

// eventDedup is a bounded FIFO set of recently seen event ids.
type eventDedup struct {
	mu    sync.Mutex
	order *list.List
	seen  map[string]*list.Element
}

func newEventDedup() *eventDedup {
	return &eventDedup{order: list.New(), seen: make(map[string]*list.Element)}
}

// seenBefore records id and reports whether it was already present.
func (d *eventDedup) seenBefore(id string) bool {
	if id == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return true
	}
	elem := d.order.PushBack(id)
	d.seen[id] = elem
	if d.order.Len() > dedupCapacity {
		oldest := d.order.Front()
		d.order.Remove(oldest)
		delete(d.seen, oldest.Value.(string))
	}
	return false
}

// sseParser incrementally parses an SSE byte stream per the spec:
// CRLF/LF normalized line endings (including a trailing \r deferred
// across chunk boundaries), a single leading space after ':' dropped,
// an event emitted on each blank-line terminator, and any residual
// event flushed at EOF.
type sseParser struct {
	reader *bufio.Reader

	id, name string
	data     strings.Builder
	haveData bool
}

func newSSEParser(r io.Reader) *sseParser {
	return &sseParser{reader: bufio.NewReaderSize(r, maxParseBuffer)}
}

// next reads and returns the next complete event, or io.EOF once the
// stream ends (flushing any residual event first).
func (p *sseParser) next() (*Event, error) {
	for {
		line, err := p.readLine()
		if err != nil {
			if err == io.EOF {
				if ev := p.flush(); ev != nil {
					return ev, nil
				}
			}
			return nil, err
		}

		if line == "" {
			if ev := p.flush(); ev != nil {
				return ev, nil
			}
			continue
		}

		if err := p.applyField(line); err != nil {
			return nil, err
		}
	}
}

// readLine reads one LF-terminated line and strips a trailing CR, so
// CRLF and LF endings read the same, including a CR that arrives as the
// very last byte of one read with its paired LF in the next. A bare CR
// is not treated as a line ending.
func (p *sseParser) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r"), nil
		}
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if len(line) > maxParseBuffer {
		return "", errs.New(errs.CodeCryptoFormat, "sse line exceeds parse buffer cap")
	}
	return line, nil
}

func (p *sseParser) applyField(line string) error {
	field, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")

	switch field {
	case "id":
		p.id = value
	case "event":
		p.name = value
	case "data":
		if p.haveData {
			p.data.WriteByte('\n')
		}
		p.data.WriteString(value)
		p.haveData = true
		if p.data.Len() > maxEventData {
			metrics.SSEEventsReceived.WithLabelValues("oversize").Inc()
			return errs.New(errs.CodeCryptoFormat, "sse event data exceeds 512KiB cap")
		}
	default:
		// Unknown fields (and comment lines starting with ':') are ignored.
	}
	return nil
}

func (p *sseParser) flush() *Event {
	if !p.haveData && p.name == "" && p.id == "" {
		return nil
	}
	ev := &Event{ID: p.id, Name: p.name, Data: p.data.String()}
	p.id = ""
	p.name = ""
	p.data.Reset()
	p.haveData = false
	return ev
}

// Subscription runs one SSE subscription with reconnect-on-break
// backoff, Last-Event-ID resume, and bounded event dedup.
type Subscription struct {
	client      *Client
	baseURL     string
	path        string
	dedup       *eventDedup
	lastEventID string
	mu          sync.Mutex
}

// NewSubscription builds a Subscription against path (relative to
// baseURL), e.g. "/gateway/v1/sessions/{sid}/events".
func NewSubscription(client *Client, baseURL, path string) *Subscription {
	return &Subscription{client: client, baseURL: baseURL, path: path, dedup: newEventDedup()}
}

// Run streams events to handler until ctx is canceled, a 404
// terminates the subscription (terminal: the caller must not retry
// its own subscription attempt), or retries exceed policy.MaxFailures.
func (s *Subscription) Run(ctx context.Context, policy sessionmachine.BackoffPolicy, handler EventHandler) error {
	return sessionmachine.RunStreamWithBackoff(ctx, policy, func(ctx context.Context) error {
		return s.runOnce(ctx, handler)
	})
}

func (s *Subscription) runOnce(ctx context.Context, handler EventHandler) error {
	rawURL := s.baseURL + s.path
	if err := s.client.originAllowed(rawURL); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build sse request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+s.client.tokens.AccessToken())
	s.mu.Lock()
	lastID := s.lastEventID
	s.mu.Unlock()
	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}

	resp, err := s.client.http.Do(req)
	if err != nil {
		return errs.Wrap(errs.CodeRelayTransient, "sse connection failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errs.New(errs.CodeRelayGone, "sse subscription not found")
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return errs.New(errs.CodeRelayUnauthenticated, "sse subscription unauthenticated")
	}
	if resp.StatusCode != http.StatusOK {
		return errs.New(errs.CodeRelayTransient, fmt.Sprintf("sse subscription returned status %d", resp.StatusCode))
	}

	start := time.Now()
	parser := newSSEParser(resp.Body)
	for {
		ev, err := parser.next()
		if err != nil {
			metrics.SSEStreamDuration.Observe(time.Since(start).Seconds())
			if err == io.EOF {
				return errs.New(errs.CodeRelayTransient, "sse stream closed by peer")
			}
			return err
		}

		if s.dedup.seenBefore(ev.ID) {
			metrics.SSEEventsReceived.WithLabelValues("duplicate").Inc()
			continue
		}
		if ev.ID != "" {
			s.mu.Lock()
			s.lastEventID = ev.ID
			s.mu.Unlock()
		}
		metrics.SSEEventsReceived.WithLabelValues("delivered").Inc()
		handler(*ev)
	}
}
