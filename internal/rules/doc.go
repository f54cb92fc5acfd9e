// Package rules evaluates observed events against a policy's rule table.
//
// Compile turns the table into expression programs once, so syntax errors
// and unbound variables surface at load time. Table.Evaluate is a strict
// left-to-right fold: the running total threads through every matching
// condition of every event, in input order and configured order. Unknown
// events, missing metrics and missing operator/action logic are skipped
// without error.
//
// LegacyRules expresses the old fixed-threshold deltas as a rule table so
// there is one evaluation path.
package rules
