package bosbase

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

const DefaultEventName = "message"

// one push-stream frame, accumulated from consecutive non-blank lines
type StreamEvent struct {
	Name string
	// `data` lines joined with "\n"
	Data string
	Id   string
}

// json payload of the frame. Missing or malformed data is an empty object.
func (self *StreamEvent) Payload() any {
	if strings.TrimSpace(self.Data) == "" {
		return map[string]any{}
	}
	var payload any
	if err := json.Unmarshal([]byte(self.Data), &payload); err != nil {
		return map[string]any{}
	}
	return payload
}

// line oriented event-stream decoder.
// Frames are separated by a blank line. Lines starting with `:` are comments.
type eventStreamReader struct {
	reader *bufio.Reader
}

func newEventStreamReader(r io.Reader) *eventStreamReader {
	return &eventStreamReader{
		reader: bufio.NewReader(r),
	}
}

// reads lines until a frame boundary and returns the completed frame.
// End of stream or a read error returns the error and drops any partial frame.
func (self *eventStreamReader) Next() (*StreamEvent, error) {
	event := &StreamEvent{}
	dataLines := []string{}
	for {
		line, err := self.reader.ReadString('\n')
		if err != nil {
			// a trailing line without a newline is never part of a complete frame
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if event.Name == "" {
				event.Name = DefaultEventName
			}
			event.Data = strings.Join(dataLines, "\n")
			return event, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch field {
		case "event":
			if value == "" {
				event.Name = DefaultEventName
			} else {
				event.Name = value
			}
		case "data":
			dataLines = append(dataLines, value)
		case "id":
			event.Id = value
		}
	}
}
