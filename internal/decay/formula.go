package decay

import (
	"fmt"
	"math"

	"github.com/assetscore/assetscore/internal/expr"
	"github.com/assetscore/assetscore/pkg/types"
)

// Formula is a decay curve compiled from policy text. Parameter values are
// bound at construction; callers supply only the age.
type Formula struct {
	prog     *expr.Program
	args     []any // parameter values, in declaration order
	baseline float64
}

// NewFormula compiles formula with variables ["age", params...] in order.
// The formula is evaluated once at age 0 so a formula that does not produce a
// number fails here rather than mid-scoring.
func NewFormula(formula string, params types.Params, baseline float64) (*Formula, error) {
	names := append([]string{"age"}, params.Names()...)
	prog, err := expr.Compile(formula, names)
	if err != nil {
		return nil, fmt.Errorf("decay: compile formula: %w", err)
	}

	f := &Formula{prog: prog, baseline: baseline}
	for _, v := range params.Values() {
		f.args = append(f.args, v)
	}

	if _, err := f.Raw(0); err != nil {
		return nil, fmt.Errorf("decay: check formula at age 0: %w", err)
	}
	return f, nil
}

// Raw evaluates the formula without flooring.
func (f *Formula) Raw(age float64) (float64, error) {
	args := make([]any, 0, len(f.args)+1)
	args = append(args, age)
	args = append(args, f.args...)

	v, err := f.prog.Call(args...)
	if err != nil {
		return 0, err
	}
	score, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("%w: formula %q produced %T, want number", expr.ErrType, f.prog, v)
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, fmt.Errorf("%w: formula %q produced %v at age %v, want a finite number", expr.ErrType, f.prog, score, age)
	}
	return score, nil
}

// Evaluate returns the formula value floored at the baseline.
func (f *Formula) Evaluate(age float64) (float64, error) {
	raw, err := f.Raw(age)
	if err != nil {
		return 0, err
	}
	return math.Max(raw, f.baseline), nil
}

// Unit reports years; formulas take age as supplied.
func (f *Formula) Unit() Granularity { return Years }

// String returns the formula text.
func (f *Formula) String() string { return f.prog.String() }
