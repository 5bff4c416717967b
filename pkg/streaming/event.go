package streaming

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"
)

// EventType identifies the kind of a stream event
type EventType string

const (
	// EventStart opens a stream, always the first event
	EventStart EventType = "start"
	// EventData carries a chunk of the streamed payload
	EventData EventType = "data"
	// EventError reports a failure, terminal for the stream
	EventError EventType = "error"
	// EventEnd closes a stream that completed successfully
	EventEnd EventType = "end"
	// EventHeartbeat keeps idle connections alive
	EventHeartbeat EventType = "heartbeat"
	// EventMetadata carries out-of-band stream information
	EventMetadata EventType = "metadata"
	// EventProgress reports completion progress for bounded streams
	EventProgress EventType = "progress"
)

// Valid reports whether the event type is one of the known types
func (t EventType) Valid() bool {
	switch t {
	case EventStart, EventData, EventError, EventEnd, EventHeartbeat, EventMetadata, EventProgress:
		return true
	}
	return false
}

// Event is a single typed event in a streaming session.
//
// Sequence numbers are assigned at emission time, start at 1, and are
// strictly increasing within a session.
type Event struct {
	Type      EventType              `json:"type"`
	Data      interface{}            `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Sequence  int64                  `json:"sequence"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Progress is the payload of a progress event
type Progress struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
}

// ErrorData is the payload of an error event
type ErrorData struct {
	Code    string `json:"code"`
	Type    string `json:"type,omitempty"`
	Message string `json:"message"`
}

// EncodeSSE writes the event as a server-sent-events frame. The event
// type goes into the SSE event field, the sequence into the id field,
// and the JSON-encoded event into the data field.
func EncodeSSE(w io.Writer, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return sse.Encode(w, sse.Event{
		Id:    strconv.FormatInt(ev.Sequence, 10),
		Event: string(ev.Type),
		Data:  string(payload),
	})
}

// ParseSSE reads server-sent-events frames produced by EncodeSSE and
// returns the decoded events in order.
func ParseSSE(r io.Reader) ([]Event, error) {
	frames, err := sse.Decode(bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSE stream: %w", err)
	}

	events := make([]Event, 0, len(frames))
	for _, frame := range frames {
		data, ok := frame.Data.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected SSE data type %T", frame.Data)
		}

		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("failed to decode event payload: %w", err)
		}
		if !ev.Type.Valid() {
			return nil, fmt.Errorf("unknown event type %q", ev.Type)
		}
		events = append(events, ev)
	}

	return events, nil
}

// NDJSONEncoder writes events as newline-delimited JSON
type NDJSONEncoder struct {
	enc *json.Encoder
}

// NewNDJSONEncoder creates an encoder writing to w
func NewNDJSONEncoder(w io.Writer) *NDJSONEncoder {
	return &NDJSONEncoder{enc: json.NewEncoder(w)}
}

// Encode writes one event as a single JSON line
func (e *NDJSONEncoder) Encode(ev Event) error {
	return e.enc.Encode(ev)
}

// ParseNDJSON reads newline-delimited JSON events
func ParseNDJSON(r io.Reader) ([]Event, error) {
	var events []Event
	dec := json.NewDecoder(r)
	for {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode event line: %w", err)
		}
		if !ev.Type.Valid() {
			return nil, fmt.Errorf("unknown event type %q", ev.Type)
		}
		events = append(events, ev)
	}
	return events, nil
}
