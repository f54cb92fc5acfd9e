package rules

import "github.com/assetscore/assetscore/pkg/types"

// ThresholdOperators are the comparison operators used by threshold rules.
// Each compares the metric value against the condition's `threshold` field.
func ThresholdOperators() map[string]types.Operator {
	return map[string]types.Operator{
		"lt":  {Logic: "value < rule.threshold"},
		"lte": {Logic: "value <= rule.threshold"},
		"gt":  {Logic: "value > rule.threshold"},
		"gte": {Logic: "value >= rule.threshold"},
		"eq":  {Logic: "value == rule.threshold"},
	}
}

// AddScore is the action logic that adds the condition's score to the total.
const AddScore = "totalScore + score * factor"

// Threshold builds a condition that adds delta when `metric op threshold` holds.
func Threshold(metric, op string, threshold, delta float64) types.Condition {
	return types.Condition{
		Metric: metric,
		Op:     op,
		Action: &types.Action{Logic: AddScore, Score: &delta},
		Extra:  map[string]any{"threshold": threshold},
	}
}

// LegacyRules returns the fixed metric-threshold deltas of the legacy
// calculator, plus the flat bonus for completed alerts, as a rule table.
func LegacyRules() map[string]types.EventRule {
	rule := func(conds ...types.Condition) types.EventRule {
		return types.EventRule{Conditions: conds, Operators: ThresholdOperators()}
	}
	return map[string]types.EventRule{
		"low_water_pressure_alert": rule(
			Threshold("water_pressure_bar", "lt", 2.0, -5),
			Threshold("alert_completed", "eq", 1, 3),
		),
		"inspect_valves": rule(
			Threshold("inspection_time_minutes", "gte", 5, 2),
		),
		"check_oil_level": rule(
			Threshold("oil_level_percent", "lt", 50, -3),
			Threshold("oil_level_percent", "lt", 20, -5),
		),
		"temperature_alert": rule(
			Threshold("temperature_celsius", "gt", 100, -10),
			Threshold("alert_completed", "eq", 1, 3),
		),
		"relay_check": rule(
			Threshold("contact_resistance_ohms", "gt", 2.0, -4),
		),
	}
}
