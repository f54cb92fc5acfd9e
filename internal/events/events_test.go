package events

import (
	"errors"
	"strings"
	"testing"
)

func TestDecode_Valid(t *testing.T) {
	input := `[
	  {"name": "temperature_alert", "data": {"temperature_celsius": 120, "alert_completed": 1}},
	  {"name": "relay_check", "data": {}}
	]`
	got, err := Decode(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "temperature_alert" || got[0].Data["temperature_celsius"] != 120 {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].Name != "relay_check" || len(got[1].Data) != 0 {
		t.Errorf("got[1] = %+v", got[1])
	}
}

func TestDecode_EmptyArray(t *testing.T) {
	got, err := DecodeBytes([]byte(" [] "))
	if err != nil {
		t.Fatalf("DecodeBytes: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantIndex int
		wantField string
	}{
		{"object instead of array", `{"name": "x", "data": {}}`, -1, ""},
		{"empty input", ``, -1, ""},
		{"truncated", `[{"name": "x"`, -1, ""},
		{"element not object", `[1]`, 0, ""},
		{"missing name", `[{"data": {}}]`, 0, "name"},
		{"empty name", `[{"name": "", "data": {}}]`, 0, "name"},
		{"missing data", `[{"name": "ok", "data": {}}, {"name": "x"}]`, 1, "data"},
		{"null data", `[{"name": "x", "data": null}]`, 0, "data"},
		{"non-numeric metric", `[{"name": "x", "data": {"m": "high"}}]`, 0, "data"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeBytes([]byte(tc.input))
			if got != nil {
				t.Errorf("events = %v, want nil", got)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if ve.Index != tc.wantIndex || ve.Field != tc.wantField {
				t.Errorf("ValidationError = %+v, want index %d field %q", ve, tc.wantIndex, tc.wantField)
			}
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	tests := []struct {
		err  ValidationError
		want string
	}{
		{ValidationError{Index: -1, Msg: "input must be a JSON array"}, "events: input must be a JSON array"},
		{ValidationError{Index: 2, Msg: "must be an object"}, "events[2]: must be an object"},
		{ValidationError{Index: 0, Field: "name", Msg: "is required"}, "events[0].name: is required"},
	}
	for _, tc := range tests {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("Error() = %q, want %q", got, tc.want)
		}
	}
}
