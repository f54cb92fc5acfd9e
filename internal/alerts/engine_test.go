package alerts

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/assetscore/assetscore/internal/compute"
	"github.com/assetscore/assetscore/internal/config"
	"github.com/assetscore/assetscore/internal/expr"
)

func result(id string, final float64) *compute.Result {
	state := compute.StateHealthy
	switch {
	case final < compute.ThresholdDegraded:
		state = compute.StateCritical
	case final < compute.ThresholdHealthy:
		state = compute.StateDegraded
	}
	return &compute.Result{AssetID: id, FinalScore: final, State: state}
}

func mustNew(t *testing.T, cfg config.AlertsConfig) *Engine {
	t.Helper()
	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

// clock is a manually advanced time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestEvaluate_FireAndResolve(t *testing.T) {
	e := mustNew(t, config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "low-score", Condition: "final_score < 60", Severity: "critical"},
	}})
	c := &clock{t: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	e.now = c.now

	e.Evaluate(result("pump-1", 45))
	active := e.Active()
	if len(active) != 1 {
		t.Fatalf("Active: got %d alerts, want 1", len(active))
	}
	a := active[0]
	if a.RuleName != "low-score" || a.AssetID != "pump-1" || a.State != StateFiring || a.Severity != "critical" {
		t.Errorf("alert: got %+v", a)
	}
	if a.Value != 45 || a.ID == "" {
		t.Errorf("alert value/id: got %v / %q", a.Value, a.ID)
	}

	c.advance(time.Minute)
	e.Evaluate(result("pump-1", 90))
	active = e.Active()
	if len(active) != 1 || active[0].State != StateResolved || active[0].ResolvedAt == nil {
		t.Fatalf("after recovery: got %+v", active)
	}

	c.advance(2 * time.Hour)
	if got := e.Active(); len(got) != 0 {
		t.Errorf("resolved alert older than an hour still listed: %+v", got)
	}
}

func TestEvaluate_Cooldown(t *testing.T) {
	e := mustNew(t, config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "critical", Condition: "state == 'critical'", Cooldown: 10 * time.Minute},
	}})
	c := &clock{t: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)}
	e.now = c.now

	e.Evaluate(result("valve", 30))
	first := e.Active()[0]

	c.advance(5 * time.Minute)
	e.Evaluate(result("valve", 25))
	if got := e.Active(); len(got) != 1 || got[0].ID != first.ID {
		t.Errorf("within cooldown: got %+v, want original alert", got)
	}

	c.advance(6 * time.Minute)
	e.Evaluate(result("valve", 20))
	if got := e.Active(); len(got) != 1 || got[0].ID == first.ID || got[0].Value != 20 {
		t.Errorf("after cooldown: got %+v, want re-fired alert", got)
	}
}

func TestEvaluate_PerAsset(t *testing.T) {
	e := mustNew(t, config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "low", Condition: "final_score < 60"},
	}})
	e.Evaluate(result("a", 10))
	e.Evaluate(result("b", 10))
	e.Evaluate(result("c", 99))

	active := e.Active()
	if len(active) != 2 {
		t.Fatalf("Active: got %d, want 2", len(active))
	}
	for _, a := range active {
		if a.Severity != defaultSeverity {
			t.Errorf("default severity: got %q", a.Severity)
		}
	}
}

func TestEvaluate_NoRules(t *testing.T) {
	e := mustNew(t, config.AlertsConfig{})
	e.Evaluate(result("x", 0))
	if len(e.Active()) != 0 || e.Len() != 0 {
		t.Error("engine without rules must never fire")
	}
}

func TestEvaluate_ConditionErrorDoesNotFire(t *testing.T) {
	e := mustNew(t, config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "broken", Condition: "state + 1 > 0"},
	}})
	e.Evaluate(result("x", 10))
	if len(e.Active()) != 0 {
		t.Error("condition with a type error fired")
	}
}

func TestNew_BadCondition(t *testing.T) {
	_, err := New(config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "typo", Condition: "finalscore < 60"},
	}})
	var ue *expr.UnboundVariableError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v, want *UnboundVariableError", err)
	}
	if !strings.Contains(err.Error(), "typo") {
		t.Errorf("error %q does not name the rule", err)
	}
}

func TestWebhookDelivery(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies = map[string][]string{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies[r.URL.Path] = append(bodies[r.URL.Path], string(b))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	t.Setenv("TEST_SLACK_URL", srv.URL+"/slack")
	t.Setenv("TEST_TEAMS_URL", srv.URL+"/teams")
	t.Setenv("TEST_HTTP_URL", srv.URL+"/http")
	t.Setenv("TEST_PD_URL", srv.URL+"/pd")
	t.Setenv("TEST_PD_KEY", "routing-123")

	e := mustNew(t, config.AlertsConfig{
		Rules: []config.AlertRule{{Name: "low", Condition: "final_score < 60", Severity: "critical"}},
		Webhooks: []config.WebhookConfig{
			{Type: "slack", URLEnv: "TEST_SLACK_URL"},
			{Type: "teams", URLEnv: "TEST_TEAMS_URL"},
			{Type: "http", URLEnv: "TEST_HTTP_URL"},
			{Type: "http", URLEnv: "TEST_UNSET_URL"},
			{Type: "pagerduty", URLEnv: "TEST_PD_URL", KeyEnv: "TEST_PD_KEY"},
		},
	})

	e.Evaluate(result("pump-9", 12))
	e.Wait()
	e.Evaluate(result("pump-9", 95))
	e.Wait()

	mu.Lock()
	defer mu.Unlock()
	if got := len(bodies["/slack"]); got != 2 {
		t.Fatalf("slack deliveries: got %d, want 2", got)
	}
	if !strings.Contains(bodies["/slack"][0], "[CRITICAL]") || !strings.Contains(bodies["/slack"][1], "[RESOLVED]") {
		t.Errorf("slack bodies: %v", bodies["/slack"])
	}
	if !strings.Contains(bodies["/teams"][0], "MessageCard") {
		t.Errorf("teams body: %s", bodies["/teams"][0])
	}

	var payload struct {
		Alert Alert `json:"alert"`
	}
	if err := json.Unmarshal([]byte(bodies["/http"][0]), &payload); err != nil {
		t.Fatalf("decode http payload: %v", err)
	}
	if payload.Alert.AssetID != "pump-9" || payload.Alert.State != StateFiring {
		t.Errorf("http payload: got %+v", payload.Alert)
	}

	if got := len(bodies["/pd"]); got != 2 {
		t.Fatalf("pagerduty deliveries: got %d, want 2", got)
	}
	type pdEvent struct {
		RoutingKey  string `json:"routing_key"`
		EventAction string `json:"event_action"`
		DedupKey    string `json:"dedup_key"`
	}
	var pd []pdEvent
	for _, b := range bodies["/pd"] {
		var ev pdEvent
		if err := json.Unmarshal([]byte(b), &ev); err != nil {
			t.Fatalf("decode pagerduty payload: %v", err)
		}
		pd = append(pd, ev)
	}
	if pd[0].RoutingKey != "routing-123" || pd[0].EventAction != "trigger" || pd[1].EventAction != "resolve" {
		t.Errorf("pagerduty events: got %+v", pd)
	}
	if pd[0].DedupKey != "low:pump-9" || pd[0].DedupKey != pd[1].DedupKey {
		t.Errorf("pagerduty dedup keys: got %q, %q", pd[0].DedupKey, pd[1].DedupKey)
	}
}
