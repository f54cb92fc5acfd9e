// Package events decodes and validates the event input of a scoring run.
//
// Input is a JSON array of {name, data} objects. Malformed input is reported
// as a *ValidationError and nothing is scored.
package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/assetscore/assetscore/pkg/types"
)

// ValidationError describes why event input was rejected. Index is -1 when
// the problem is with the document as a whole.
type ValidationError struct {
	Index int
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Index < 0:
		return "events: " + e.Msg
	case e.Field == "":
		return fmt.Sprintf("events[%d]: %s", e.Index, e.Msg)
	default:
		return fmt.Sprintf("events[%d].%s: %s", e.Index, e.Field, e.Msg)
	}
}

// raw keeps fields as json.RawMessage so a missing field can be told apart
// from an empty one.
type raw struct {
	Name *string         `json:"name"`
	Data json.RawMessage `json:"data"`
}

// Decode reads a JSON array of events from r.
func Decode(r io.Reader) ([]types.Event, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("events: read: %w", err)
	}
	return DecodeBytes(body)
}

// DecodeBytes parses a JSON array of events.
func DecodeBytes(body []byte) ([]types.Event, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &ValidationError{Index: -1, Msg: "input must be a JSON array"}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, &ValidationError{Index: -1, Msg: "invalid JSON: " + err.Error()}
	}
	return FromRaw(items)
}

// FromRaw validates already-split array elements. It is used where the array
// is embedded in a larger document (an API request body).
func FromRaw(items []json.RawMessage) ([]types.Event, error) {
	out := make([]types.Event, 0, len(items))
	for i, item := range items {
		ev, err := decodeOne(i, item)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func decodeOne(i int, item json.RawMessage) (types.Event, error) {
	trimmed := bytes.TrimSpace(item)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return types.Event{}, &ValidationError{Index: i, Msg: "must be an object"}
	}
	var r raw
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return types.Event{}, &ValidationError{Index: i, Msg: err.Error()}
	}
	if r.Name == nil {
		return types.Event{}, &ValidationError{Index: i, Field: "name", Msg: "is required"}
	}
	if *r.Name == "" {
		return types.Event{}, &ValidationError{Index: i, Field: "name", Msg: "must not be empty"}
	}
	if len(r.Data) == 0 || bytes.Equal(r.Data, []byte("null")) {
		return types.Event{}, &ValidationError{Index: i, Field: "data", Msg: "is required"}
	}
	var data map[string]float64
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return types.Event{}, &ValidationError{Index: i, Field: "data", Msg: "must map metric names to numbers"}
	}
	return types.Event{Name: *r.Name, Data: data}, nil
}
