// Package compute derives asset condition scores from a scoring policy.
//
// score.go provides the pure building blocks: AgeScore clamps a decay model's
// output into [baseline, 100] and Combine clamps age + event contributions
// into the policy bounds and rounds them. Neither keeps state.
//
// engine.go provides the Engine, which compiles a policy once (decay model
// and rule table) and scores assets against it. Reload swaps the compiled
// policy; a policy that fails to compile leaves the previous one active.
// Engine.Score accepts an injectable time.Time so tests are deterministic.
//
// Health state thresholds: Healthy ≥85, Degraded 60–84, Critical <60.
package compute
