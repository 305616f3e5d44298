package bosbase

import (
	"io"
	"strings"
	"testing"

	"github.com/go-playground/assert/v2"
)

func readEvents(t *testing.T, stream string) []*StreamEvent {
	reader := newEventStreamReader(strings.NewReader(stream))
	events := []*StreamEvent{}
	for {
		event, err := reader.Next()
		if err != nil {
			assert.Equal(t, err, io.EOF)
			return events
		}
		events = append(events, event)
	}
}

func TestEventStreamFrames(t *testing.T) {
	events := readEvents(t, "event: PING\ndata: {}\n\nevent: msg\ndata: {\"x\":1}\n\n")

	assert.Equal(t, len(events), 2)
	assert.Equal(t, events[0].Name, "PING")
	assert.Equal(t, events[0].Payload(), map[string]any{})
	assert.Equal(t, events[1].Name, "msg")
	assert.Equal(t, events[1].Payload(), map[string]any{"x": float64(1)})
}

func TestEventStreamFrameWithoutData(t *testing.T) {
	events := readEvents(t, "event: PING\n\nevent: msg\ndata: {\"x\":1}\n\n")

	assert.Equal(t, len(events), 2)
	assert.Equal(t, events[0].Name, "PING")
	assert.Equal(t, events[0].Data, "")
	assert.Equal(t, events[0].Payload(), map[string]any{})
	assert.Equal(t, events[1].Name, "msg")
	assert.Equal(t, events[1].Payload(), map[string]any{"x": float64(1)})
}

func TestEventStreamMultilineData(t *testing.T) {
	events := readEvents(t, "id: 7\ndata: {\"a\":\ndata: 2}\n\n")

	assert.Equal(t, len(events), 1)
	assert.Equal(t, events[0].Name, DefaultEventName)
	assert.Equal(t, events[0].Id, "7")
	assert.Equal(t, events[0].Data, "{\"a\":\n2}")
	assert.Equal(t, events[0].Payload(), map[string]any{"a": float64(2)})
}

func TestEventStreamCommentsAndCrlf(t *testing.T) {
	events := readEvents(t, ": keep alive\r\nevent: e\r\n: another\r\ndata: [1,2]\r\n\r\n")

	assert.Equal(t, len(events), 1)
	assert.Equal(t, events[0].Name, "e")
	assert.Equal(t, events[0].Payload(), []any{float64(1), float64(2)})
}

func TestEventStreamMalformedData(t *testing.T) {
	events := readEvents(t, "event: e\ndata: {not json\n\n")

	assert.Equal(t, len(events), 1)
	assert.Equal(t, events[0].Payload(), map[string]any{})
}

func TestEventStreamPartialFrame(t *testing.T) {
	// a frame without the terminating blank line is never emitted
	events := readEvents(t, "event: a\ndata: {}\n\nevent: b\ndata: {}\n")

	assert.Equal(t, len(events), 1)
	assert.Equal(t, events[0].Name, "a")
}

func TestEventStreamUnknownFields(t *testing.T) {
	events := readEvents(t, "retry: 100\nevent: e\nfoo\ndata:x\n\n")

	assert.Equal(t, len(events), 1)
	assert.Equal(t, events[0].Name, "e")
	assert.Equal(t, events[0].Data, "x")
}

func TestEventStreamLineWithoutColon(t *testing.T) {
	// a bare field name is not a field
	events := readEvents(t, "event: e\ndata\ndata: x\ndata\n\n")

	assert.Equal(t, len(events), 1)
	assert.Equal(t, events[0].Name, "e")
	assert.Equal(t, events[0].Data, "x")
}
