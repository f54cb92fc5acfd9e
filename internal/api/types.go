package api

import (
	"encoding/json"
	"time"

	"github.com/assetscore/assetscore/internal/compute"
	"github.com/assetscore/assetscore/internal/rules"
	"github.com/assetscore/assetscore/internal/store"
)

// ScoreRequest is the body of POST /api/v1/score and one element of the
// POST /api/v1/score/batch array. Either Age (years) or InstalledAt is
// required; CurrentAt defaults to the request time.
type ScoreRequest struct {
	ID          string          `json:"id,omitempty"`
	Age         *float64        `json:"age,omitempty"`
	InstalledAt *time.Time      `json:"installed_at,omitempty"`
	CurrentAt   *time.Time      `json:"current_at,omitempty"`
	Events      json.RawMessage `json:"events,omitempty"`
}

// ScoreResponse is one scored asset.
type ScoreResponse struct {
	AssetID       string          `json:"asset_id"`
	ScoredAt      string          `json:"scored_at"` // RFC3339
	AgeYears      float64         `json:"age_years"`
	Age           float64         `json:"age"`
	Unit          string          `json:"unit"`
	AgeScore      float64         `json:"age_score"`
	EventScore    float64         `json:"event_score"`
	FinalScore    float64         `json:"final_score"`
	State         string          `json:"state"`
	PolicyVersion int             `json:"policy_version"`
	Applied       []rules.Applied `json:"applied"`
}

// AssetResponse is one entry of GET /api/v1/assets.
type AssetResponse struct {
	ScoreResponse
	LastSeen string `json:"last_seen"` // RFC3339
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	OverallScore  float64 `json:"overall_score"`
	State         string  `json:"state"`
	AssetCount    int     `json:"asset_count"`
	HealthyCount  int     `json:"healthy_count"`
	DegradedCount int     `json:"degraded_count"`
	CriticalCount int     `json:"critical_count"`
	AlertCount    int     `json:"alert_count"`
	PolicyVersion int     `json:"policy_version"`
}

// PolicyResponse is the payload for GET /api/v1/policy.
type PolicyResponse struct {
	Version    int      `json:"version"`
	LoadedAt   string   `json:"loaded_at"` // RFC3339
	Model      string   `json:"model"`
	Unit       string   `json:"unit"`
	Baseline   float64  `json:"baseline_score"`
	BoundsMin  float64  `json:"bounds_min"`
	BoundsMax  float64  `json:"bounds_max"`
	Decimals   int      `json:"decimals"`
	EventTypes []string `json:"event_types"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the data of
// every WebSocket broadcast.
type SnapshotResponse struct {
	Assets      []AssetResponse `json:"assets"`
	GeneratedAt string          `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}

// NewScoreResponse maps an engine result to its JSON representation. The CLI
// uses it for -o json so both surfaces print the same document.
func NewScoreResponse(res *compute.Result) ScoreResponse {
	applied := res.Applied
	if applied == nil {
		applied = []rules.Applied{}
	}
	return ScoreResponse{
		AssetID:       res.AssetID,
		ScoredAt:      res.Timestamp.UTC().Format(time.RFC3339),
		AgeYears:      res.AgeYears,
		Age:           res.Age,
		Unit:          string(res.Unit),
		AgeScore:      res.AgeScore,
		EventScore:    res.EventScore,
		FinalScore:    res.FinalScore,
		State:         res.State,
		PolicyVersion: res.Policy,
		Applied:       applied,
	}
}

// toAssetResponse maps a store.Entry to its JSON representation.
func toAssetResponse(e *store.Entry) AssetResponse {
	return AssetResponse{
		ScoreResponse: NewScoreResponse(e.Result),
		LastSeen:      e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// NewPolicyResponse maps the active policy summary to its JSON representation.
func NewPolicyResponse(p compute.PolicyInfo) PolicyResponse {
	return PolicyResponse{
		Version:    p.Version,
		LoadedAt:   p.LoadedAt.UTC().Format(time.RFC3339),
		Model:      p.Model,
		Unit:       string(p.Unit),
		Baseline:   p.Baseline,
		BoundsMin:  p.Bounds.Min,
		BoundsMax:  p.Bounds.Max,
		Decimals:   p.Bounds.Decimals,
		EventTypes: p.EventTypes,
	}
}

// BuildSnapshot returns every live asset in st, sorted by asset ID.
func BuildSnapshot(st *store.Store) SnapshotResponse {
	entries := st.List()
	assets := make([]AssetResponse, 0, len(entries))
	for _, e := range entries {
		assets = append(assets, toAssetResponse(e))
	}
	return SnapshotResponse{
		Assets:      assets,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}
