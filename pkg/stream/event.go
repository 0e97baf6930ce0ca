// Package stream reads the newline-delimited JSON event stream produced by a
// chat orchestrator and drives a thinking → answer presentation from it.
//
// Each record on the wire is one JSON object per line:
//
//	{"type": "thought", "content": "<free text>"}
//	{"type": "token",   "content": "<incremental text fragment>"}
//	{"type": "complete"}
//	{"type": "error",   "content": "<error message>"}
//
// Reader turns an io.Reader of arbitrarily chunked bytes into Events and
// Presenter applies them to a Surface.
package stream

import (
	"encoding/json"
	"errors"
)

// Kind is the discriminator carried in an event's "type" field.
type Kind string

const (
	// KindThought carries provisional "thinking" status text. Each thought
	// replaces the previous one.
	KindThought Kind = "thought"

	// KindToken carries an incremental fragment of the answer.
	KindToken Kind = "token"

	// KindComplete marks the logical end of the answer. The byte stream
	// itself may still carry further records.
	KindComplete Kind = "complete"

	// KindError carries an upstream error message for the user.
	KindError Kind = "error"
)

// Known reports whether k is one of the kinds this package acts on.
func (k Kind) Known() bool {
	switch k {
	case KindThought, KindToken, KindComplete, KindError:
		return true
	default:
		return false
	}
}

// Event is a single decoded stream record. Fields other than "type" and
// "content" are ignored.
type Event struct {
	Kind    Kind   `json:"type"`
	Content string `json:"content,omitempty"`
}

var errNotObject = errors.New("stream record is not a JSON object")

// ParseEvent decodes a single line into an Event. The line must hold exactly
// one JSON object; leading or trailing whitespace is allowed.
//
// Keys are matched exactly: "Type" or "CONTENT" are unknown fields, not
// aliases. A "type" or "content" that is not a string is treated as absent.
func ParseEvent(line []byte) (*Event, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, err
	}

	if len(raw) == 0 || raw[0] != '{' {
		return nil, errNotObject
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	return &Event{
		Kind:    Kind(stringField(fields, "type")),
		Content: stringField(fields, "content"),
	}, nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	v, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}
