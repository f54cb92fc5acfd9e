package export

import (
	"fmt"
	"io"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/assetscore/assetscore/internal/compute"
)

// Metric family names.
const (
	MetricFinalScore = "assetscore_final_score"
	MetricAgeScore   = "assetscore_age_score"
	MetricEventScore = "assetscore_event_score"
	MetricAgeYears   = "assetscore_age_years"
	MetricState      = "assetscore_state"
	MetricScoredAt   = "assetscore_scored_timestamp_seconds"
)

// ContentType is the Content-Type of the text exposition format.
var ContentType = string(expfmt.NewFormat(expfmt.TypeTextPlain))

var states = []string{compute.StateHealthy, compute.StateDegraded, compute.StateCritical}

type gauge struct {
	name  string
	help  string
	value func(*compute.Result) float64
}

var gauges = []gauge{
	{MetricFinalScore, "Final combined asset score.", func(r *compute.Result) float64 { return r.FinalScore }},
	{MetricAgeScore, "Age component of the asset score.", func(r *compute.Result) float64 { return r.AgeScore }},
	{MetricEventScore, "Event rule contribution to the asset score.", func(r *compute.Result) float64 { return r.EventScore }},
	{MetricAgeYears, "Asset age in years at scoring time.", func(r *compute.Result) float64 { return r.AgeYears }},
	{MetricScoredAt, "Unix time the asset was last scored.", func(r *compute.Result) float64 {
		return float64(r.Timestamp.UnixNano()) / 1e9
	}},
}

// Families builds the metric families for results, in a stable order.
func Families(results []*compute.Result) []*dto.MetricFamily {
	out := make([]*dto.MetricFamily, 0, len(gauges)+1)
	for _, g := range gauges {
		mf := newFamily(g.name, g.help)
		for _, r := range results {
			mf.Metric = append(mf.Metric, gaugeMetric(g.value(r), label("asset", r.AssetID)))
		}
		out = append(out, mf)
	}

	state := newFamily(MetricState, "Health state of the asset; 1 for the current state.")
	for _, r := range results {
		for _, s := range states {
			v := 0.0
			if r.State == s {
				v = 1
			}
			state.Metric = append(state.Metric, gaugeMetric(v, label("asset", r.AssetID), label("state", s)))
		}
	}
	return append(out, state)
}

// Write renders results as Prometheus text to w.
func Write(w io.Writer, results []*compute.Result) error {
	for _, mf := range Families(results) {
		if len(mf.Metric) == 0 {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("export: write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

func newFamily(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: ptr(name),
		Help: ptr(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

// gaugeMetric expects labels already sorted by name.
func gaugeMetric(v float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{
		Label: labels,
		Gauge: &dto.Gauge{Value: ptr(v)},
	}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: ptr(name), Value: ptr(value)}
}

func ptr[T any](v T) *T { return &v }
