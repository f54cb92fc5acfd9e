package events

import (
	"errors"
	"strings"
	"testing"
)

const readings = `
# TYPE temperature_celsius gauge
temperature_celsius{event="temperature_alert",seq="2"} 120
# TYPE alert_completed gauge
alert_completed{event="temperature_alert",seq="2"} 1
# TYPE contact_resistance_ohms gauge
contact_resistance_ohms{event="relay_check",seq="1"} 2.2
# TYPE inspection_time_minutes untyped
inspection_time_minutes{event="inspect_valves"} 7
`

func TestDecodePrometheus(t *testing.T) {
	got, err := DecodePrometheus(strings.NewReader(readings))
	if err != nil {
		t.Fatalf("DecodePrometheus: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3: %+v", len(got), got)
	}

	wantOrder := []string{"inspect_valves", "relay_check", "temperature_alert"}
	for i, name := range wantOrder {
		if got[i].Name != name {
			t.Errorf("got[%d].Name = %q, want %q", i, got[i].Name, name)
		}
	}
	temp := got[2].Data
	if temp["temperature_celsius"] != 120 || temp["alert_completed"] != 1 {
		t.Errorf("temperature_alert data = %v", temp)
	}
	if got[1].Data["contact_resistance_ohms"] != 2.2 {
		t.Errorf("relay_check data = %v", got[1].Data)
	}
}

func TestDecodePrometheus_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no event label", "# TYPE m gauge\nm{site=\"a\"} 1\n"},
		{"bad seq", "# TYPE m gauge\nm{event=\"e\",seq=\"first\"} 1\n"},
		{"summary", "# TYPE m summary\nm_sum{event=\"e\"} 1\nm_count{event=\"e\"} 1\n"},
		{"garbage", "this is not exposition text {\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodePrometheus(strings.NewReader(tc.input))
			if got != nil {
				t.Errorf("events = %v, want nil", got)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
		})
	}
}
