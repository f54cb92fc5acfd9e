package rules

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/assetscore/assetscore/internal/expr"
	"github.com/assetscore/assetscore/pkg/types"
)

// Variables bound to operator and action expressions.
var (
	OperatorVars = []string{"value", "rule"}
	ActionVars   = []string{"totalScore", "value", "score", "factor", "rule"}
)

// Skip reasons reported in debug logs.
const (
	skipMetricMissing   = "metric missing"
	skipOperatorMissing = "operator missing"
	skipNoMatch         = "operator false"
	skipActionMissing   = "action missing"
)

// Table is a compiled rule table. It is immutable and safe for concurrent use.
type Table struct {
	events map[string]*compiledRule
}

type compiledRule struct {
	conditions []compiledCondition
}

type compiledCondition struct {
	metric  string
	op      string
	binding map[string]any // the `rule` variable; read-only
	match   *expr.Program  // nil: operator missing or has no logic
	action  *expr.Program  // nil: action missing or has no logic
	score   float64
	factor  float64
}

// Applied records one action that changed the running total.
type Applied struct {
	Event  string  `json:"event"`
	Metric string  `json:"metric"`
	Op     string  `json:"op"`
	Value  float64 `json:"value"`
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}

// Compile compiles every operator and action expression in events.
func Compile(events map[string]types.EventRule) (*Table, error) {
	t := &Table{events: make(map[string]*compiledRule, len(events))}
	for name, rule := range events {
		ops := make(map[string]*expr.Program, len(rule.Operators))
		for opName, op := range rule.Operators {
			if op.Logic == "" {
				continue
			}
			prog, err := expr.Compile(op.Logic, OperatorVars)
			if err != nil {
				return nil, fmt.Errorf("rules: event %q operator %q: %w", name, opName, err)
			}
			ops[opName] = prog
		}

		cr := &compiledRule{conditions: make([]compiledCondition, 0, len(rule.Conditions))}
		for i, c := range rule.Conditions {
			cc := compiledCondition{
				metric:  c.Metric,
				op:      c.Op,
				binding: c.Binding(),
				match:   ops[c.Op],
				factor:  1,
			}
			if c.Action != nil {
				cc.score = c.Action.ScoreOrDefault()
				cc.factor = c.Action.FactorOrDefault()
				if c.Action.Logic != "" {
					prog, err := expr.Compile(c.Action.Logic, ActionVars)
					if err != nil {
						return nil, fmt.Errorf("rules: event %q condition %d action: %w", name, i, err)
					}
					cc.action = prog
				}
			}
			cr.conditions = append(cr.conditions, cc)
		}
		t.events[name] = cr
	}
	return t, nil
}

// Evaluate folds events into an additive score contribution.
func (t *Table) Evaluate(events []types.Event) (float64, error) {
	return t.fold(events, nil)
}

// Explain is Evaluate plus the ordered list of actions that were applied.
func (t *Table) Explain(events []types.Event) (float64, []Applied, error) {
	var applied []Applied
	total, err := t.fold(events, func(a Applied) { applied = append(applied, a) })
	return total, applied, err
}

// Len returns the number of event types in the table.
func (t *Table) Len() int { return len(t.events) }

func (t *Table) fold(events []types.Event, record func(Applied)) (float64, error) {
	total := 0.0
	for _, ev := range events {
		next, err := t.step(total, ev, record)
		if err != nil {
			return 0, err
		}
		total = next
	}
	return total, nil
}

// step applies one event's matching conditions to total and returns the new total.
func (t *Table) step(total float64, ev types.Event, record func(Applied)) (float64, error) {
	rule, ok := t.events[ev.Name]
	if !ok {
		return total, nil
	}
	for _, c := range rule.conditions {
		next, applied, err := c.apply(total, ev)
		if err != nil {
			return 0, fmt.Errorf("rules: event %q metric %q: %w", ev.Name, c.metric, err)
		}
		if applied && record != nil {
			record(Applied{
				Event:  ev.Name,
				Metric: c.metric,
				Op:     c.op,
				Value:  ev.Data[c.metric],
				Before: total,
				After:  next,
			})
		}
		total = next
	}
	return total, nil
}

// apply evaluates one condition. It returns total unchanged when the
// condition is skipped.
func (c *compiledCondition) apply(total float64, ev types.Event) (float64, bool, error) {
	value, ok := ev.Data[c.metric]
	if !ok {
		c.skip(ev, skipMetricMissing)
		return total, false, nil
	}
	if c.match == nil {
		c.skip(ev, skipOperatorMissing)
		return total, false, nil
	}

	matched, err := c.match.EvalBool(map[string]any{"value": value, "rule": c.binding})
	if err != nil {
		return 0, false, err
	}
	if !matched {
		c.skip(ev, skipNoMatch)
		return total, false, nil
	}
	if c.action == nil {
		c.skip(ev, skipActionMissing)
		return total, false, nil
	}

	next, err := c.action.EvalFloat(map[string]any{
		"totalScore": total,
		"value":      value,
		"score":      c.score,
		"factor":     c.factor,
		"rule":       c.binding,
	})
	if err != nil {
		return 0, false, err
	}
	if math.IsNaN(next) || math.IsInf(next, 0) {
		return 0, false, fmt.Errorf("%w: action %q produced %v, want a finite number", expr.ErrType, c.action, next)
	}
	return next, true, nil
}

func (c *compiledCondition) skip(ev types.Event, reason string) {
	slog.Debug("rules: condition skipped",
		"event", ev.Name, "metric", c.metric, "op", c.op, "reason", reason)
}
