package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ScoringConfig is a complete scoring policy. It is loaded once per scoring
// run (or per hot reload) and treated as immutable afterwards.
type ScoringConfig struct {
	// BaselineScore is the floor no asset score may fall below.
	BaselineScore float64 `json:"baseline_score" yaml:"baseline_score"`

	// DecayFormula is an expression over `age` and the DecayParams names.
	DecayFormula string `json:"decay_formula,omitempty" yaml:"decay_formula,omitempty"`

	// DecayParams binds, in order, the extra variables of DecayFormula.
	DecayParams Params `json:"decay_params,omitempty" yaml:"decay_params,omitempty"`

	// Model selects a built-in parametric decay curve instead of DecayFormula.
	Model *ModelConfig `json:"model,omitempty" yaml:"model,omitempty"`

	// Bounds controls the final clamp range and rounding. Nil means [0,100], 2 decimals.
	Bounds *Bounds `json:"bounds,omitempty" yaml:"bounds,omitempty"`

	// Events is the rule table keyed by event name.
	Events map[string]EventRule `json:"events" yaml:"events"`
}

// ModelConfig selects and parameterises one built-in decay curve.
type ModelConfig struct {
	// Name is one of: exponential | linear | piecewise | sigmoid.
	Name string `json:"name" yaml:"name"`

	// Granularity is the unit age is measured in: days | weeks | months | years.
	Granularity string `json:"granularity,omitempty" yaml:"granularity,omitempty"`

	K       *float64       `json:"k,omitempty" yaml:"k,omitempty"`
	Slope   *float64       `json:"slope,omitempty" yaml:"slope,omitempty"`
	Tiers   []Tier         `json:"tiers,omitempty" yaml:"tiers,omitempty"`
	Sigmoid *SigmoidParams `json:"sigmoid,omitempty" yaml:"sigmoid,omitempty"`
}

// SigmoidParams shapes the sigmoid curve.
type SigmoidParams struct {
	GrowthRate float64 `json:"growth_rate" yaml:"growth_rate"`
	MidAge     float64 `json:"mid_age" yaml:"mid_age"`
	MaxScore   float64 `json:"max_score" yaml:"max_score"`
}

// Tier is one step of a piecewise curve. MaxAge may be +Inf, written as
// "inf" (JSON) or .inf (YAML), or omitted entirely.
type Tier struct {
	MaxAge float64
	Score  float64
}

// Bounds configures the final clamp and rounding.
type Bounds struct {
	Min      float64 `json:"min" yaml:"min"`
	Max      float64 `json:"max" yaml:"max"`
	Decimals int     `json:"decimals" yaml:"decimals"`
}

// EventRule is the rule for one event type.
type EventRule struct {
	Conditions []Condition         `json:"conditions" yaml:"conditions"`
	Operators  map[string]Operator `json:"operators" yaml:"operators"`
}

// Operator holds a boolean expression over `value` and `rule`.
type Operator struct {
	Logic string `json:"logic" yaml:"logic"`
}

// Action holds a numeric expression over totalScore, value, score, factor and rule.
type Action struct {
	Logic  string   `json:"logic" yaml:"logic"`
	Score  *float64 `json:"score,omitempty" yaml:"score,omitempty"`
	Factor *float64 `json:"factor,omitempty" yaml:"factor,omitempty"`
}

// ScoreOrDefault returns Score, or 0 when unset.
func (a Action) ScoreOrDefault() float64 {
	if a.Score == nil {
		return 0
	}
	return *a.Score
}

// FactorOrDefault returns Factor, or 1 when unset.
func (a Action) FactorOrDefault() float64 {
	if a.Factor == nil {
		return 1
	}
	return *a.Factor
}

// Condition references a metric of the event data and an operator name.
// Any additional fields (thresholds, labels) are kept in Extra and are
// reachable from expressions as rule.<field>.
type Condition struct {
	Metric string  `json:"metric" yaml:"metric"`
	Op     string  `json:"op" yaml:"op"`
	Action *Action `json:"action,omitempty" yaml:"action,omitempty"`

	Extra map[string]any `json:"-" yaml:"-"`
}

var conditionKeys = []string{"metric", "op", "action"}

// Binding returns the condition as the `rule` variable seen by expressions.
func (c Condition) Binding() map[string]any {
	out := make(map[string]any, len(c.Extra)+3)
	for k, v := range c.Extra {
		out[k] = v
	}
	out["metric"] = c.Metric
	out["op"] = c.Op
	if c.Action != nil {
		act := map[string]any{"logic": c.Action.Logic}
		if c.Action.Score != nil {
			act["score"] = *c.Action.Score
		}
		if c.Action.Factor != nil {
			act["factor"] = *c.Action.Factor
		}
		out["action"] = act
	}
	return out
}

func (c *Condition) UnmarshalJSON(data []byte) error {
	type plain Condition
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	p.Extra = extraFields(all)
	*c = Condition(p)
	return nil
}

func (c Condition) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+3)
	for k, v := range c.Extra {
		out[k] = v
	}
	out["metric"] = c.Metric
	out["op"] = c.Op
	if c.Action != nil {
		out["action"] = c.Action
	}
	return json.Marshal(out)
}

func (c *Condition) UnmarshalYAML(node *yaml.Node) error {
	type plain Condition
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	var all map[string]any
	if err := node.Decode(&all); err != nil {
		return err
	}
	p.Extra = extraFields(all)
	*c = Condition(p)
	return nil
}

func extraFields(all map[string]any) map[string]any {
	for _, k := range conditionKeys {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil
	}
	return all
}

type tierDoc struct {
	MaxAge any     `json:"max_age" yaml:"max_age"`
	Score  float64 `json:"score" yaml:"score"`
}

func (t *Tier) UnmarshalJSON(data []byte) error {
	var d tierDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	return t.fromDoc(d)
}

func (t Tier) MarshalJSON() ([]byte, error) {
	d := tierDoc{MaxAge: t.MaxAge, Score: t.Score}
	if math.IsInf(t.MaxAge, 1) {
		d.MaxAge = "inf"
	}
	return json.Marshal(d)
}

func (t *Tier) UnmarshalYAML(node *yaml.Node) error {
	var d tierDoc
	if err := node.Decode(&d); err != nil {
		return err
	}
	return t.fromDoc(d)
}

func (t *Tier) fromDoc(d tierDoc) error {
	maxAge, err := parseMaxAge(d.MaxAge)
	if err != nil {
		return err
	}
	t.MaxAge = maxAge
	t.Score = d.Score
	return nil
}

// parseMaxAge accepts a number, nil (open-ended) or an infinity spelling.
func parseMaxAge(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return math.Inf(1), nil
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		s := strings.TrimPrefix(strings.TrimSpace(x), ".")
		if s == "" {
			return math.Inf(1), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("tier max_age %q: not a number", x)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("tier max_age: unsupported value %v", v)
	}
}
