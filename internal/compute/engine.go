package compute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/assetscore/assetscore/internal/decay"
	"github.com/assetscore/assetscore/internal/rules"
	"github.com/assetscore/assetscore/pkg/types"
)

// DefaultBatchLimit bounds the number of assets ScoreBatch scores at once.
const DefaultBatchLimit = 8

var (
	// ErrNoAge is returned when an asset has neither an age nor an install time.
	ErrNoAge = errors.New("compute: asset has no age or installed_at")

	// ErrNegativeAge is returned when the asset age resolves below zero.
	ErrNegativeAge = errors.New("compute: asset age is negative")
)

// Result is the fully-derived score for one asset.
type Result struct {
	AssetID    string
	Timestamp  time.Time
	AgeYears   float64 // elapsed time in years
	Age        float64 // age in the model's unit
	Unit       decay.Granularity
	AgeScore   float64
	EventScore float64
	FinalScore float64
	State      string
	Applied    []rules.Applied // actions that changed the event score, in order
	Policy     int             // version of the policy that produced this result
}

// PolicyInfo describes the active policy.
type PolicyInfo struct {
	Version    int
	LoadedAt   time.Time
	Model      string
	Unit       decay.Granularity
	Baseline   float64
	Bounds     Bounds
	EventTypes []string
}

// policy is one compiled, immutable scoring policy.
type policy struct {
	info  PolicyInfo
	model decay.Model
	rules *rules.Table
}

// Engine scores assets against a compiled policy.
//
// All exported methods are safe for concurrent use.
type Engine struct {
	mu      sync.RWMutex
	active  *policy
	version int
}

// NewEngine compiles cfg and returns an Engine ready to score.
// Compilation errors (bad formula, bad rule expression, invalid model) are
// returned here so no scoring ever runs against a broken policy.
func NewEngine(cfg *types.ScoringConfig) (*Engine, error) {
	e := &Engine{}
	if err := e.Reload(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload compiles cfg and makes it the active policy. On error the previous
// policy stays active.
func (e *Engine) Reload(cfg *types.ScoringConfig) error {
	p, err := compile(cfg)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.version++
	p.info.Version = e.version
	e.active = p
	e.mu.Unlock()

	slog.Info("compute: policy loaded",
		"version", p.info.Version,
		"model", p.info.Model,
		"event_types", len(p.info.EventTypes),
	)
	return nil
}

// Policy describes the active policy.
func (e *Engine) Policy() PolicyInfo {
	p := e.current()
	info := p.info
	info.EventTypes = append([]string(nil), p.info.EventTypes...)
	return info
}

// Score computes the score for one asset.
//
// now is passed explicitly so callers (and tests) control the clock. It is
// used as the current time when the asset carries installed_at without
// current_at. Use time.Now() in production.
func (e *Engine) Score(asset types.Asset, now time.Time) (*Result, error) {
	return e.current().score(asset, now)
}

// ScoreBatch scores assets concurrently, at most limit at a time, against a
// single policy snapshot. Results are returned in input order. The first
// error cancels the remaining work.
func (e *Engine) ScoreBatch(ctx context.Context, assets []types.Asset, now time.Time, limit int) ([]*Result, error) {
	if limit <= 0 {
		limit = DefaultBatchLimit
	}
	p := e.current()
	out := make([]*Result, len(assets))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range assets {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := p.score(assets[i], now)
			if err != nil {
				return fmt.Errorf("asset %d %q: %w", i, assets[i].ID, err)
			}
			out[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) current() *policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active
}

func compile(cfg *types.ScoringConfig) (*policy, error) {
	if cfg == nil {
		return nil, errors.New("compute: nil policy")
	}
	bounds := BoundsFrom(cfg.Bounds)
	if bounds.Min > bounds.Max {
		return nil, fmt.Errorf("compute: bounds min %v exceeds max %v", bounds.Min, bounds.Max)
	}
	if bounds.Decimals < 0 {
		return nil, fmt.Errorf("compute: bounds decimals %d must not be negative", bounds.Decimals)
	}

	model, err := decay.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("compute: %w", err)
	}
	table, err := rules.Compile(cfg.Events)
	if err != nil {
		return nil, fmt.Errorf("compute: %w", err)
	}

	eventTypes := make([]string, 0, len(cfg.Events))
	for name := range cfg.Events {
		eventTypes = append(eventTypes, name)
	}
	sort.Strings(eventTypes)

	return &policy{
		info: PolicyInfo{
			LoadedAt:   time.Now().UTC(),
			Model:      describe(model),
			Unit:       model.Unit(),
			Baseline:   cfg.BaselineScore,
			Bounds:     bounds,
			EventTypes: eventTypes,
		},
		model: model,
		rules: table,
	}, nil
}

func (p *policy) score(asset types.Asset, now time.Time) (*Result, error) {
	years, err := assetAge(asset, now)
	if err != nil {
		return nil, err
	}
	age := p.model.Unit().FromYears(years)

	ageScore, err := AgeScore(age, p.model, p.info.Baseline)
	if err != nil {
		return nil, fmt.Errorf("compute: age score: %w", err)
	}
	eventScore, applied, err := p.rules.Explain(asset.Events)
	if err != nil {
		return nil, fmt.Errorf("compute: event score: %w", err)
	}

	final := Combine(ageScore, eventScore, p.info.Bounds)
	return &Result{
		AssetID:    asset.ID,
		Timestamp:  now,
		AgeYears:   years,
		Age:        age,
		Unit:       p.model.Unit(),
		AgeScore:   ageScore,
		EventScore: eventScore,
		FinalScore: final,
		State:      stateFromScore(final),
		Applied:    applied,
		Policy:     p.info.Version,
	}, nil
}

// assetAge resolves the asset age in years.
func assetAge(asset types.Asset, now time.Time) (float64, error) {
	var years float64
	switch {
	case asset.Age != nil:
		years = *asset.Age
	case asset.InstalledAt != nil:
		current := now
		if asset.CurrentAt != nil {
			current = *asset.CurrentAt
		}
		years = decay.AgeYears(*asset.InstalledAt, current)
	default:
		return 0, ErrNoAge
	}
	if years < 0 {
		return 0, fmt.Errorf("%w: %v years", ErrNegativeAge, years)
	}
	return years, nil
}

func describe(m decay.Model) string {
	switch v := m.(type) {
	case *decay.Parametric:
		return v.Name()
	case *decay.Formula:
		return "formula: " + v.String()
	default:
		return fmt.Sprintf("%T", m)
	}
}
