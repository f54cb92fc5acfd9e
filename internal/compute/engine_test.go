package compute

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/assetscore/assetscore/internal/expr"
	"github.com/assetscore/assetscore/internal/rules"
	"github.com/assetscore/assetscore/pkg/types"
)

// baseTime is a fixed reference point so all test timings are deterministic.
var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func years(v float64) *float64 { return &v }

// sigmoidPolicy is the sigmoid-like formula policy used across the tests.
func sigmoidPolicy() *types.ScoringConfig {
	return &types.ScoringConfig{
		BaselineScore: 35,
		DecayFormula:  "100/(1+Math.exp(k*(age-5)))",
		DecayParams:   types.Params{{Name: "k", Value: 1}},
		Events:        map[string]types.EventRule{},
	}
}

func mustEngine(t *testing.T, cfg *types.ScoringConfig) *Engine {
	t.Helper()
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

// --- End-to-end ---

func TestEngine_FormulaNoEvents(t *testing.T) {
	e := mustEngine(t, sigmoidPolicy())

	res, err := e.Score(types.Asset{ID: "pump-1", Age: years(2), Events: []types.Event{}}, baseTime)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}

	wantAge := math.Max(35, 100/(1+math.Exp(-3)))
	if !almostEqual(res.AgeScore, wantAge, 1e-9) {
		t.Errorf("AgeScore = %v, want %v", res.AgeScore, wantAge)
	}
	if res.EventScore != 0 {
		t.Errorf("EventScore = %v, want 0", res.EventScore)
	}
	if res.FinalScore != round(wantAge, 2) {
		t.Errorf("FinalScore = %v, want %v", res.FinalScore, round(wantAge, 2))
	}
	if res.State != StateHealthy {
		t.Errorf("State = %q, want %q", res.State, StateHealthy)
	}
}

func TestEngine_FormulaOldAssetFlooredAtBaseline(t *testing.T) {
	e := mustEngine(t, sigmoidPolicy())
	res, err := e.Score(types.Asset{Age: years(12)}, baseTime)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.AgeScore != 35 || res.FinalScore != 35 {
		t.Errorf("AgeScore = %v, FinalScore = %v, want 35/35", res.AgeScore, res.FinalScore)
	}
	if res.State != StateCritical {
		t.Errorf("State = %q, want %q", res.State, StateCritical)
	}
}

func TestEngine_WithLegacyRules(t *testing.T) {
	cfg := sigmoidPolicy()
	cfg.Events = rules.LegacyRules()
	e := mustEngine(t, cfg)

	res, err := e.Score(types.Asset{
		Age: years(2),
		Events: []types.Event{
			{Name: "temperature_alert", Data: map[string]float64{"temperature_celsius": 120}},
			{Name: "relay_check", Data: map[string]float64{"contact_resistance_ohms": 2.2}},
			{Name: "not_in_table", Data: map[string]float64{"x": 1}},
		},
	}, baseTime)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.EventScore != -14 {
		t.Errorf("EventScore = %v, want -14", res.EventScore)
	}
	want := round(100/(1+math.Exp(-3))-14, 2)
	if res.FinalScore != want {
		t.Errorf("FinalScore = %v, want %v", res.FinalScore, want)
	}
	if len(res.Applied) != 2 {
		t.Errorf("Applied = %d entries, want 2", len(res.Applied))
	}
}

func TestEngine_ParametricFromDates(t *testing.T) {
	installed := baseTime.Add(-730 * 24 * time.Hour)
	for _, unit := range []string{"days", "weeks", "months", "years"} {
		t.Run(unit, func(t *testing.T) {
			e := mustEngine(t, &types.ScoringConfig{
				BaselineScore: 35,
				Model:         &types.ModelConfig{Name: "exponential", Granularity: unit},
			})
			res, err := e.Score(types.Asset{InstalledAt: &installed}, baseTime)
			if err != nil {
				t.Fatalf("Score: %v", err)
			}
			if !almostEqual(res.AgeYears, 2, 1e-9) {
				t.Errorf("AgeYears = %v, want 2", res.AgeYears)
			}
			if res.AgeScore != 74 {
				t.Errorf("AgeScore = %v, want 74", res.AgeScore)
			}
		})
	}
}

func TestEngine_CurrentAtOverridesNow(t *testing.T) {
	e := mustEngine(t, &types.ScoringConfig{Model: &types.ModelConfig{Name: "linear"}})
	installed := baseTime
	current := baseTime.Add(365 * 24 * time.Hour)
	res, err := e.Score(types.Asset{InstalledAt: &installed, CurrentAt: &current}, baseTime.Add(100*365*24*time.Hour))
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if res.AgeScore != 95 {
		t.Errorf("AgeScore = %v, want 95", res.AgeScore)
	}
}

// --- Age errors ---

func TestEngine_AgeErrors(t *testing.T) {
	e := mustEngine(t, sigmoidPolicy())

	if _, err := e.Score(types.Asset{}, baseTime); !errors.Is(err, ErrNoAge) {
		t.Errorf("no age: error = %v, want ErrNoAge", err)
	}
	if _, err := e.Score(types.Asset{Age: years(-1)}, baseTime); !errors.Is(err, ErrNegativeAge) {
		t.Errorf("negative age: error = %v, want ErrNegativeAge", err)
	}
	future := baseTime.Add(24 * time.Hour)
	if _, err := e.Score(types.Asset{InstalledAt: &future}, baseTime); !errors.Is(err, ErrNegativeAge) {
		t.Errorf("installed in the future: error = %v, want ErrNegativeAge", err)
	}
}

func TestEngine_UndefinedFormulaAgeIsError(t *testing.T) {
	e := mustEngine(t, &types.ScoringConfig{
		BaselineScore: 35,
		DecayFormula:  "100 * Math.sqrt(1 - age / 10)",
		Events:        map[string]types.EventRule{},
	})

	res, err := e.Score(types.Asset{ID: "a", Age: years(12)}, baseTime)
	if !errors.Is(err, expr.ErrType) {
		t.Fatalf("Score(age 12) = %+v, %v; want ErrType", res, err)
	}

	res, err = e.Score(types.Asset{ID: "a", Age: years(10)}, baseTime)
	if err != nil {
		t.Fatalf("Score(age 10): %v", err)
	}
	if res.AgeScore != 35 || res.FinalScore != 35 {
		t.Errorf("age 10: AgeScore = %v, FinalScore = %v, want 35 (baseline)", res.AgeScore, res.FinalScore)
	}
}

// --- Compilation and reload ---

func TestNewEngine_FailsFast(t *testing.T) {
	bad := sigmoidPolicy()
	bad.DecayFormula = "100/(1+Math.exp(k*(age-5))"
	var se *expr.SyntaxError
	if _, err := NewEngine(bad); !errors.As(err, &se) {
		t.Errorf("bad formula: error = %v, want *SyntaxError", err)
	}

	badRule := sigmoidPolicy()
	badRule.Events = map[string]types.EventRule{"e": {
		Operators: map[string]types.Operator{"gt": {Logic: "value > limit"}},
	}}
	var ue *expr.UnboundVariableError
	if _, err := NewEngine(badRule); !errors.As(err, &ue) {
		t.Errorf("bad rule: error = %v, want *UnboundVariableError", err)
	}

	badBounds := sigmoidPolicy()
	badBounds.Bounds = &types.Bounds{Min: 50, Max: 10}
	if _, err := NewEngine(badBounds); err == nil {
		t.Error("inverted bounds: expected error")
	}

	if _, err := NewEngine(&types.ScoringConfig{}); err == nil {
		t.Error("no decay model: expected error")
	}
}

func TestEngine_ReloadKeepsPreviousOnError(t *testing.T) {
	e := mustEngine(t, sigmoidPolicy())
	before := e.Policy()

	bad := sigmoidPolicy()
	bad.DecayFormula = "age +"
	if err := e.Reload(bad); err == nil {
		t.Fatal("Reload with bad formula: expected error")
	}
	if got := e.Policy(); got.Version != before.Version || got.Model != before.Model {
		t.Errorf("policy changed after failed reload: %+v", got)
	}

	if err := e.Reload(&types.ScoringConfig{Model: &types.ModelConfig{Name: "piecewise"}}); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	got := e.Policy()
	if got.Version != before.Version+1 {
		t.Errorf("Version = %d, want %d", got.Version, before.Version+1)
	}
	if got.Model != "piecewise" {
		t.Errorf("Model = %q, want piecewise", got.Model)
	}
}

func TestEngine_PolicyInfo(t *testing.T) {
	cfg := sigmoidPolicy()
	cfg.Events = rules.LegacyRules()
	info := mustEngine(t, cfg).Policy()

	if info.Version != 1 {
		t.Errorf("Version = %d, want 1", info.Version)
	}
	if info.Bounds != DefaultBounds {
		t.Errorf("Bounds = %+v, want defaults", info.Bounds)
	}
	if len(info.EventTypes) != len(cfg.Events) {
		t.Errorf("EventTypes = %v", info.EventTypes)
	}
	for i := 1; i < len(info.EventTypes); i++ {
		if info.EventTypes[i-1] > info.EventTypes[i] {
			t.Errorf("EventTypes not sorted: %v", info.EventTypes)
		}
	}
}

// --- Batch ---

func TestEngine_ScoreBatch_PreservesOrder(t *testing.T) {
	cfg := &types.ScoringConfig{Model: &types.ModelConfig{Name: "linear"}}
	e := mustEngine(t, cfg)

	assets := make([]types.Asset, 40)
	for i := range assets {
		assets[i] = types.Asset{ID: fmt.Sprintf("a-%d", i), Age: years(float64(i % 10))}
	}
	out, err := e.ScoreBatch(context.Background(), assets, baseTime, 4)
	if err != nil {
		t.Fatalf("ScoreBatch: %v", err)
	}
	for i, res := range out {
		if res.AssetID != assets[i].ID {
			t.Errorf("out[%d].AssetID = %q, want %q", i, res.AssetID, assets[i].ID)
		}
		want := 100 - 5*float64(i%10)
		if res.FinalScore != want {
			t.Errorf("out[%d].FinalScore = %v, want %v", i, res.FinalScore, want)
		}
	}
}

func TestEngine_ScoreBatch_Error(t *testing.T) {
	e := mustEngine(t, sigmoidPolicy())
	assets := []types.Asset{{ID: "ok", Age: years(1)}, {ID: "broken"}}
	if _, err := e.ScoreBatch(context.Background(), assets, baseTime, 0); !errors.Is(err, ErrNoAge) {
		t.Errorf("error = %v, want ErrNoAge", err)
	}
}

func TestEngine_ConcurrentScoreAndReload(t *testing.T) {
	e := mustEngine(t, sigmoidPolicy())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			if err := e.Reload(sigmoidPolicy()); err != nil {
				t.Errorf("Reload: %v", err)
				return
			}
		}
	}()
	for i := 0; i < 200; i++ {
		if _, err := e.Score(types.Asset{Age: years(2)}, baseTime); err != nil {
			t.Fatalf("Score: %v", err)
		}
	}
	<-done
}
