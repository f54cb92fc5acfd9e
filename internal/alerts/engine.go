package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/assetscore/assetscore/internal/compute"
	"github.com/assetscore/assetscore/internal/config"
	"github.com/assetscore/assetscore/internal/expr"
)

const (
	defaultCooldown   = 15 * time.Minute
	defaultSeverity   = "warning"
	maxHistoryLen     = 200
	recentWindowHours = 1
	webhookTimeout    = 10 * time.Second
)

// ConditionVars are the variables an alert condition may reference.
var ConditionVars = []string{"final_score", "age_score", "event_score", "age_years", "state"}

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	AssetID    string     `json:"asset_id"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}

type rule struct {
	name      string
	severity  string
	cooldown  time.Duration
	condition *expr.Program
}

// Engine evaluates alert rules against score results and delivers webhook
// notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	rules    []rule
	webhooks []config.WebhookConfig
	client   *http.Client
	now      func() time.Time // injectable for deterministic tests

	mu       sync.Mutex
	active   map[string]*Alert    // key: "ruleName:assetID"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
	inflight sync.WaitGroup
}

// New compiles the configured rules. An Engine with no rules is valid and
// Evaluate becomes a no-op.
func New(cfg config.AlertsConfig) (*Engine, error) {
	e := &Engine{
		webhooks: cfg.Webhooks,
		client:   &http.Client{Timeout: webhookTimeout},
		now:      time.Now,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
	}
	for _, r := range cfg.Rules {
		prog, err := expr.Compile(r.Condition, ConditionVars)
		if err != nil {
			return nil, fmt.Errorf("alerts: rule %q: %w", r.Name, err)
		}
		compiled := rule{name: r.Name, severity: r.Severity, cooldown: r.Cooldown, condition: prog}
		if compiled.severity == "" {
			compiled.severity = defaultSeverity
		}
		if compiled.cooldown <= 0 {
			compiled.cooldown = defaultCooldown
		}
		e.rules = append(e.rules, compiled)
	}
	return e, nil
}

// Len returns the number of configured rules.
func (e *Engine) Len() int { return len(e.rules) }

// Evaluate tests every rule against res. Alerts that fire are stored and
// webhook delivery is triggered asynchronously. Alerts that were firing but
// whose condition is now false are resolved. A condition that fails to
// evaluate is logged and leaves the rule's alert state unchanged.
func (e *Engine) Evaluate(res *compute.Result) {
	if len(e.rules) == 0 {
		return
	}
	vars := map[string]any{
		"final_score": res.FinalScore,
		"age_score":   res.AgeScore,
		"event_score": res.EventScore,
		"age_years":   res.AgeYears,
		"state":       res.State,
	}

	now := e.now()
	for _, r := range e.rules {
		fires, err := r.condition.EvalBool(vars)
		if err != nil {
			slog.Warn("alerts: condition failed", "rule", r.name, "asset", res.AssetID, "err", err)
			continue
		}
		if fires {
			e.fire(r, res, now)
		} else {
			e.resolve(r, res, now)
		}
	}
}

func (e *Engine) fire(r rule, res *compute.Result, now time.Time) {
	key := alertKey(r.name, res.AssetID)

	e.mu.Lock()
	if last, ok := e.lastFire[key]; ok && now.Sub(last) <= r.cooldown {
		e.mu.Unlock()
		return
	}
	a := &Alert{
		ID:       uuid.NewString(),
		RuleName: r.name,
		AssetID:  res.AssetID,
		Severity: r.severity,
		Value:    res.FinalScore,
		Message: fmt.Sprintf("[%s] %s fired on %s: %s (final score %.2f, %s)",
			r.severity, r.name, res.AssetID, r.condition, res.FinalScore, res.State),
		FiredAt: now,
		State:   StateFiring,
	}
	e.active[key] = a
	e.lastFire[key] = now
	alertCopy := *a
	e.mu.Unlock()

	slog.Warn("alerts: alert fired",
		"rule", r.name,
		"asset", res.AssetID,
		"final_score", res.FinalScore,
		"severity", r.severity,
	)
	e.dispatch(&alertCopy)
}

func (e *Engine) resolve(r rule, res *compute.Result, now time.Time) {
	key := alertKey(r.name, res.AssetID)

	e.mu.Lock()
	a, ok := e.active[key]
	if !ok {
		e.mu.Unlock()
		return
	}
	resolved := now
	a.State = StateResolved
	a.ResolvedAt = &resolved
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	alertCopy := *a
	e.mu.Unlock()

	slog.Info("alerts: alert resolved", "rule", r.name, "asset", res.AssetID)
	e.dispatch(&alertCopy)
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// Wait blocks until all in-flight webhook deliveries have finished.
func (e *Engine) Wait() { e.inflight.Wait() }

func (e *Engine) dispatch(a *Alert) {
	if len(e.webhooks) == 0 {
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		e.deliver(a)
	}()
}

// alertKey identifies one rule firing for one asset.
func alertKey(ruleName, assetID string) string {
	return ruleName + ":" + assetID
}
