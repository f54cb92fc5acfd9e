package compute

import (
	"math"

	"github.com/assetscore/assetscore/internal/decay"
	"github.com/assetscore/assetscore/pkg/types"
)

// State constants derived from the final score.
const (
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
	StateCritical = "critical"
)

// Thresholds that map a score to a health state.
const (
	ThresholdHealthy  = 85.0
	ThresholdDegraded = 60.0
)

// maxAgeScore caps the age component.
const maxAgeScore = 100.0

// Bounds is the final clamp range and rounding precision.
type Bounds struct {
	Min      float64
	Max      float64
	Decimals int
}

// DefaultBounds is [0, 100] rounded to 2 decimals.
var DefaultBounds = Bounds{Min: 0, Max: 100, Decimals: 2}

// BoundsFrom returns the policy bounds, or DefaultBounds when b is nil.
func BoundsFrom(b *types.Bounds) Bounds {
	if b == nil {
		return DefaultBounds
	}
	return Bounds{Min: b.Min, Max: b.Max, Decimals: b.Decimals}
}

// AgeScore evaluates model at age and clamps the result into [baseline, 100].
func AgeScore(age float64, model decay.Model, baseline float64) (float64, error) {
	raw, err := model.Evaluate(age)
	if err != nil {
		return 0, err
	}
	return math.Max(baseline, math.Min(maxAgeScore, raw)), nil
}

// Combine sums the age and event contributions, clamps the sum into
// [b.Min, b.Max] and rounds it to b.Decimals places.
//
// The clamp is applied after summation, never to either input.
func Combine(ageScore, eventScore float64, b Bounds) float64 {
	return round(clamp(ageScore+eventScore, b.Min, b.Max), b.Decimals)
}

// stateFromScore maps a numeric score to a named health state.
func stateFromScore(score float64) string {
	switch {
	case score >= ThresholdHealthy:
		return StateHealthy
	case score >= ThresholdDegraded:
		return StateDegraded
	default:
		return StateCritical
	}
}

// clamp restricts v to [lo, hi]. NaN clamps to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// round rounds v half away from zero to the given number of decimals.
func round(v float64, decimals int) float64 {
	if decimals < 0 {
		decimals = 0
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
