package decay

import (
	"fmt"
	"math"
	"sort"

	"github.com/assetscore/assetscore/pkg/types"
)

// Defaults of the legacy calculator.
const (
	DefaultK          = 0.15
	DefaultSlope      = 5.0
	DefaultBaseline   = 35.0
	DefaultGrowthRate = 1.0
	DefaultMidAge     = 5.0
	DefaultMaxScore   = 100.0
)

// curve is one parametric model variant holding its own parameters.
type curve interface {
	raw(age float64) float64
}

// builder constructs a curve from the model block. perYear is the number of
// granularity units per year, used to rescale rate parameters.
type builder func(cfg types.ModelConfig, baseline, perYear float64) (curve, error)

var builders = map[string]builder{
	"exponential": newExponential,
	"linear":      newLinear,
	"piecewise":   newPiecewise,
	"sigmoid":     newSigmoid,
}

// Models returns the supported parametric model names, sorted.
func Models() []string {
	out := make([]string, 0, len(builders))
	for name := range builders {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Parametric is a built-in decay curve with baseline flooring and whole-number
// rounding.
type Parametric struct {
	name     string
	unit     Granularity
	curve    curve
	baseline float64
}

// NewParametric selects the curve named by cfg.Name.
func NewParametric(cfg types.ModelConfig, baseline float64) (*Parametric, error) {
	build, ok := builders[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("decay: unknown model %q: want one of %v", cfg.Name, Models())
	}
	unit, err := ParseGranularity(cfg.Granularity)
	if err != nil {
		return nil, err
	}
	c, err := build(cfg, baseline, unit.PerYear())
	if err != nil {
		return nil, fmt.Errorf("decay: %s: %w", cfg.Name, err)
	}
	return &Parametric{name: cfg.Name, unit: unit, curve: c, baseline: baseline}, nil
}

// Evaluate returns round(max(curve(age), baseline)).
func (p *Parametric) Evaluate(age float64) (float64, error) {
	return math.Round(math.Max(p.curve.raw(age), p.baseline)), nil
}

// Unit returns the configured granularity.
func (p *Parametric) Unit() Granularity { return p.unit }

// Name returns the model name.
func (p *Parametric) Name() string { return p.name }

// Exponential is 100 * exp(-k * age).
type Exponential struct {
	K float64
}

func (e Exponential) raw(age float64) float64 { return 100 * math.Exp(-e.K*age) }

func newExponential(cfg types.ModelConfig, _, perYear float64) (curve, error) {
	return Exponential{K: valueOr(cfg.K, DefaultK) / perYear}, nil
}

// Linear is 100 - slope * age.
type Linear struct {
	Slope float64
}

func (l Linear) raw(age float64) float64 { return 100 - l.Slope*age }

func newLinear(cfg types.ModelConfig, _, perYear float64) (curve, error) {
	return Linear{Slope: valueOr(cfg.Slope, DefaultSlope) / perYear}, nil
}

// Piecewise returns the score of the first tier whose MaxAge >= age.
type Piecewise struct {
	Tiers []types.Tier
}

func (p Piecewise) raw(age float64) float64 {
	for _, t := range p.Tiers {
		if age <= t.MaxAge {
			return t.Score
		}
	}
	return 0
}

// DefaultTiers returns the legacy calculator's tier table.
func DefaultTiers(baseline float64) []types.Tier {
	return []types.Tier{
		{MaxAge: 2, Score: 90},
		{MaxAge: 5, Score: 70},
		{MaxAge: 8, Score: 50},
		{MaxAge: math.Inf(1), Score: baseline},
	}
}

func newPiecewise(cfg types.ModelConfig, baseline, _ float64) (curve, error) {
	tiers := cfg.Tiers
	if len(tiers) == 0 {
		tiers = DefaultTiers(baseline)
	}
	if last := tiers[len(tiers)-1]; !math.IsInf(last.MaxAge, 1) {
		return nil, fmt.Errorf("last tier max_age is %v, want inf as catch-all", last.MaxAge)
	}
	return Piecewise{Tiers: append([]types.Tier(nil), tiers...)}, nil
}

// Sigmoid is baseline + (maxScore - baseline) / (1 + exp(growthRate * (age - midAge))).
type Sigmoid struct {
	GrowthRate float64
	MidAge     float64
	MaxScore   float64
	Baseline   float64
}

func (s Sigmoid) raw(age float64) float64 {
	return s.Baseline + (s.MaxScore-s.Baseline)/(1+math.Exp(s.GrowthRate*(age-s.MidAge)))
}

func newSigmoid(cfg types.ModelConfig, baseline, _ float64) (curve, error) {
	s := Sigmoid{
		GrowthRate: DefaultGrowthRate,
		MidAge:     DefaultMidAge,
		MaxScore:   DefaultMaxScore,
		Baseline:   baseline,
	}
	if cfg.Sigmoid != nil {
		s.GrowthRate = cfg.Sigmoid.GrowthRate
		s.MidAge = cfg.Sigmoid.MidAge
		s.MaxScore = cfg.Sigmoid.MaxScore
	}
	return s, nil
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
