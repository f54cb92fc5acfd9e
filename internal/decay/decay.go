package decay

import (
	"errors"
	"time"

	"github.com/assetscore/assetscore/pkg/types"
)

// Model maps an age to a score already floored at the baseline.
type Model interface {
	// Evaluate returns the score for age, measured in Unit().
	Evaluate(age float64) (float64, error)

	// Unit is the granularity the model expects age in.
	Unit() Granularity
}

// ErrNoModel is returned when a policy has neither a formula nor a model block.
var ErrNoModel = errors.New("decay: policy defines neither decay_formula nor model")

// New builds the Model described by cfg. A model block takes precedence over
// decay_formula.
func New(cfg *types.ScoringConfig) (Model, error) {
	switch {
	case cfg.Model != nil:
		return NewParametric(*cfg.Model, cfg.BaselineScore)
	case cfg.DecayFormula != "":
		return NewFormula(cfg.DecayFormula, cfg.DecayParams, cfg.BaselineScore)
	default:
		return nil, ErrNoModel
	}
}

// AgeYears returns the elapsed time between installed and current in years
// of 365 days.
func AgeYears(installed, current time.Time) float64 {
	return current.Sub(installed).Hours() / 24 / 365
}
