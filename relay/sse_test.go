package relay

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEParserEmitsOnBlankLine(t *testing.T) {
	raw := "id: 1\nevent: ping\ndata: hello\n\n"
	p := newSSEParser(strings.NewReader(raw))

	ev, err := p.next()
	require.NoError(t, err)
	assert.Equal(t, "1", ev.ID)
	assert.Equal(t, "ping", ev.Name)
	assert.Equal(t, "hello", ev.Data)
}

func TestSSEParserFlushesResidualAtEOF(t *testing.T) {
	raw := "data: partial"
	p := newSSEParser(strings.NewReader(raw))

	ev, err := p.next()
	require.NoError(t, err)
	assert.Equal(t, "partial", ev.Data)

	_, err = p.next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSSEParserJoinsMultilineData(t *testing.T) {
	raw := "data: line1\ndata: line2\n\n"
	p := newSSEParser(strings.NewReader(raw))

	ev, err := p.next()
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", ev.Data)
}

func TestSSEParserNormalizesCRLF(t *testing.T) {
	raw := "id: 7\r\ndata: crlf\r\n\r\n"
	p := newSSEParser(strings.NewReader(raw))

	ev, err := p.next()
	require.NoError(t, err)
	assert.Equal(t, "7", ev.ID)
	assert.Equal(t, "crlf", ev.Data)
}

func TestSSEParserDropsSingleLeadingSpace(t *testing.T) {
	raw := "data:  two spaces\n\n"
	p := newSSEParser(strings.NewReader(raw))

	ev, err := p.next()
	require.NoError(t, err)
	assert.Equal(t, " two spaces", ev.Data)
}

func TestSSEParserRejectsOversizeEventData(t *testing.T) {
	raw := "data: " + strings.Repeat("x", maxEventData+1) + "\n\n"
	p := newSSEParser(strings.NewReader(raw))

	_, err := p.next()
	require.Error(t, err)
}

func TestEventDedupDropsRepeats(t *testing.T) {
	d := newEventDedup()
	assert.False(t, d.seenBefore("a"))
	assert.True(t, d.seenBefore("a"))
	assert.False(t, d.seenBefore("b"))
}

func TestEventDedupEvictsOldestBeyondCapacity(t *testing.T) {
	d := newEventDedup()
	first := "evt-0"
	for i := 0; i <= dedupCapacity; i++ {
		assert.False(t, d.seenBefore(fmt.Sprintf("evt-%d", i)))
	}
	// One id past capacity has evicted the very first id, so re-seeing
	// it is reported as new rather than a duplicate.
	assert.False(t, d.seenBefore(first))
}
