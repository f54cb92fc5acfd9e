package events

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/assetscore/assetscore/pkg/types"
)

// Labels read by DecodePrometheus.
const (
	// LabelEvent names the event a sample belongs to. Required.
	LabelEvent = "event"

	// LabelSeq orders events; samples sharing event and seq form one event.
	// Events without seq sort first, then by name.
	LabelSeq = "seq"
)

type eventKey struct {
	seq  int
	name string
}

// DecodePrometheus reads sensor readings exposed in the Prometheus text
// format. Each sample labelled event="<name>" contributes one metric
// (the family name) to that event's data. Counter, gauge and untyped
// samples are accepted; other types are rejected.
func DecodePrometheus(r io.Reader) ([]types.Event, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil {
		return nil, &ValidationError{Index: -1, Msg: "invalid prometheus text: " + err.Error()}
	}

	grouped := map[eventKey]map[string]float64{}
	for name, mf := range mfs {
		for _, m := range mf.GetMetric() {
			key, err := keyOf(name, m)
			if err != nil {
				return nil, err
			}
			v, ok := sampleValue(m)
			if !ok {
				return nil, &ValidationError{Index: -1, Field: name,
					Msg: fmt.Sprintf("unsupported metric type %s", mf.GetType())}
			}
			if grouped[key] == nil {
				grouped[key] = map[string]float64{}
			}
			grouped[key][name] = v
		}
	}

	keys := make([]eventKey, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].seq != keys[j].seq {
			return keys[i].seq < keys[j].seq
		}
		return keys[i].name < keys[j].name
	})

	out := make([]types.Event, 0, len(keys))
	for _, k := range keys {
		out = append(out, types.Event{Name: k.name, Data: grouped[k]})
	}
	return out, nil
}

func keyOf(family string, m *dto.Metric) (eventKey, error) {
	var k eventKey
	for _, lp := range m.GetLabel() {
		switch lp.GetName() {
		case LabelEvent:
			k.name = lp.GetValue()
		case LabelSeq:
			n, err := strconv.Atoi(lp.GetValue())
			if err != nil {
				return k, &ValidationError{Index: -1, Field: family,
					Msg: fmt.Sprintf("label seq %q is not an integer", lp.GetValue())}
			}
			k.seq = n
		}
	}
	if k.name == "" {
		return k, &ValidationError{Index: -1, Field: family, Msg: "sample has no event label"}
	}
	return k, nil
}

func sampleValue(m *dto.Metric) (float64, bool) {
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue(), true
	case m.Counter != nil:
		return m.Counter.GetValue(), true
	case m.Untyped != nil:
		return m.Untyped.GetValue(), true
	default:
		return 0, false
	}
}
