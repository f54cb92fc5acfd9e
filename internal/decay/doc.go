// Package decay turns a scoring policy into an age -> score function.
//
// Two construction paths exist:
//   - Formula: a policy expression over `age` and the ordered decay_params,
//     compiled once with package expr.
//   - Parametric: a built-in curve picked by name from a strategy table
//     (exponential, linear, piecewise, sigmoid), with rates rescaled to the
//     configured granularity and the result rounded to a whole score.
//
// Both floor their output at the policy baseline.
package decay
