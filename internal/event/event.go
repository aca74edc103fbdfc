package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is an immutable message envelope. The payload is kept as raw JSON
// with the type string acting as its schema tag: event kinds are open-ended
// and contributed by external callers, so payload validation happens at the
// boundary, not here. Fan-out only reads the envelope.
type Event struct {
	Type      string            `json:"type"`
	Data      json.RawMessage   `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// New creates an envelope, marshalling data as the payload.
func New(typ string, data any) (*Event, error) {
	if typ == "" {
		return nil, fmt.Errorf("event type is required")
	}
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event payload: %w", err)
		}
		raw = b
	}
	return &Event{
		Type:      typ,
		Data:      raw,
		Timestamp: time.Now(),
	}, nil
}

// NewRaw creates an envelope around an already-serialized payload.
func NewRaw(typ string, data json.RawMessage, metadata map[string]string) *Event {
	return &Event{
		Type:      typ,
		Data:      data,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// WithMetadata returns a copy of the event carrying the given metadata.
// The receiver is left untouched.
func (e *Event) WithMetadata(metadata map[string]string) *Event {
	clone := *e
	clone.Metadata = metadata
	return &clone
}

// Encode serializes the envelope for the wire.
func (e *Event) Encode() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return b, nil
}

// Decode parses a wire envelope.
func Decode(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return &e, nil
}
