package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/assetscore/assetscore/internal/alerts"
	"github.com/assetscore/assetscore/internal/compute"
	"github.com/assetscore/assetscore/internal/config"
	"github.com/assetscore/assetscore/internal/events"
	"github.com/assetscore/assetscore/internal/export"
	"github.com/assetscore/assetscore/internal/store"
	"github.com/assetscore/assetscore/pkg/types"
)

const (
	// maxBodyBytes caps request bodies.
	maxBodyBytes = 4 << 20

	// MaxBatchSize caps the number of assets in one batch request.
	MaxBatchSize = 1000
)

// Options configures optional Handler collaborators.
type Options struct {
	// Alerts, when set, evaluates every new score.
	Alerts *alerts.Engine

	// BatchLimit caps concurrent scoring within one batch request.
	BatchLimit int

	// Auth configures API key enforcement.
	Auth config.AuthConfig
}

// Handler is the HTTP handler for all /api/v1/* endpoints and /metrics.
type Handler struct {
	engine *compute.Engine
	store  *store.Store
	opts   Options
	router *mux.Router
	now    func() time.Time // injectable for deterministic tests
}

// New creates a Handler wired to the engine and result store and registers all routes.
func New(eng *compute.Engine, st *store.Store, opts Options) *Handler {
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = compute.DefaultBatchLimit
	}
	h := &Handler{engine: eng, store: st, opts: opts, router: mux.NewRouter(), now: time.Now}

	h.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	h.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	h.router.Use(APIKey(opts.Auth.Mode, opts.Auth.EffectiveHeader(), opts.Auth.Key(), "/api/v1/health"))

	v1 := h.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/score", h.score).Methods(http.MethodPost)
	v1.HandleFunc("/score/batch", h.scoreBatch).Methods(http.MethodPost)
	v1.HandleFunc("/assets", h.listAssets).Methods(http.MethodGet)
	v1.HandleFunc("/assets/{id}", h.getAsset).Methods(http.MethodGet)
	v1.HandleFunc("/alerts", h.listAlerts).Methods(http.MethodGet)
	v1.HandleFunc("/policy", h.policy).Methods(http.MethodGet)
	v1.HandleFunc("/health", h.health).Methods(http.MethodGet)
	v1.HandleFunc("/snapshot", h.snapshot).Methods(http.MethodGet)
	h.router.HandleFunc("/metrics", h.metrics).Methods(http.MethodGet)

	return h
}

// Handle mounts an additional handler (the WebSocket stream) behind the
// same middleware.
func (h *Handler) Handle(path string, handler http.Handler) {
	h.router.Handle(path, handler)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// score handles POST /api/v1/score.
func (h *Handler) score(w http.ResponseWriter, r *http.Request) {
	var req ScoreRequest
	if err := decodeBody(w, r, &req); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	asset, err := toAsset(req)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.engine.Score(asset, h.now().UTC())
	if err != nil {
		h.scoreErr(w, err)
		return
	}
	h.record(res)
	jsonResp(w, http.StatusOK, NewScoreResponse(res))
}

// scoreBatch handles POST /api/v1/score/batch.
func (h *Handler) scoreBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []ScoreRequest
	if err := decodeBody(w, r, &reqs); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(reqs) > MaxBatchSize {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("batch of %d assets exceeds limit %d", len(reqs), MaxBatchSize))
		return
	}

	assets := make([]types.Asset, len(reqs))
	for i, req := range reqs {
		a, err := toAsset(req)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, fmt.Sprintf("assets[%d]: %v", i, err))
			return
		}
		assets[i] = a
	}

	results, err := h.engine.ScoreBatch(r.Context(), assets, h.now().UTC(), h.opts.BatchLimit)
	if err != nil {
		h.scoreErr(w, err)
		return
	}
	out := make([]ScoreResponse, 0, len(results))
	for _, res := range results {
		h.record(res)
		out = append(out, NewScoreResponse(res))
	}
	jsonResp(w, http.StatusOK, out)
}

// listAssets handles GET /api/v1/assets.
func (h *Handler) listAssets(w http.ResponseWriter, _ *http.Request) {
	entries := h.store.List()
	out := make([]AssetResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toAssetResponse(e))
	}
	jsonResp(w, http.StatusOK, out)
}

// getAsset handles GET /api/v1/assets/{id}.
func (h *Handler) getAsset(w http.ResponseWriter, r *http.Request) {
	e, ok := h.store.Get(mux.Vars(r)["id"])
	if !ok {
		jsonErr(w, http.StatusNotFound, "asset not found")
		return
	}
	jsonResp(w, http.StatusOK, toAssetResponse(e))
}

// listAlerts handles GET /api/v1/alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, _ *http.Request) {
	if h.opts.Alerts == nil {
		jsonResp(w, http.StatusOK, []*alerts.Alert{})
		return
	}
	jsonResp(w, http.StatusOK, h.opts.Alerts.Active())
}

// policy handles GET /api/v1/policy.
func (h *Handler) policy(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, NewPolicyResponse(h.engine.Policy()))
}

// health handles GET /api/v1/health: average score and state counts.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	entries := h.store.List()
	resp := HealthResponse{
		AssetCount:    len(entries),
		PolicyVersion: h.engine.Policy().Version,
	}
	if h.opts.Alerts != nil {
		for _, a := range h.opts.Alerts.Active() {
			if a.State == alerts.StateFiring {
				resp.AlertCount++
			}
		}
	}

	if len(entries) == 0 {
		resp.State = "unknown"
		jsonResp(w, http.StatusOK, resp)
		return
	}

	var total float64
	for _, e := range entries {
		total += e.Result.FinalScore
		switch e.Result.State {
		case compute.StateHealthy:
			resp.HealthyCount++
		case compute.StateDegraded:
			resp.DegradedCount++
		default:
			resp.CriticalCount++
		}
	}
	resp.OverallScore = total / float64(len(entries))
	resp.State = stateFromScore(resp.OverallScore)
	jsonResp(w, http.StatusOK, resp)
}

// snapshot handles GET /api/v1/snapshot.
func (h *Handler) snapshot(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store))
}

// metrics handles GET /metrics.
func (h *Handler) metrics(w http.ResponseWriter, _ *http.Request) {
	entries := h.store.List()
	results := make([]*compute.Result, 0, len(entries))
	for _, e := range entries {
		results = append(results, e.Result)
	}
	w.Header().Set("Content-Type", export.ContentType)
	if err := export.Write(w, results); err != nil {
		slog.Error("api: write metrics", "err", err)
	}
}

// --- helpers ----------------------------------------------------------------

// record stores res and feeds it to the alert engine.
func (h *Handler) record(res *compute.Result) {
	h.store.Put(res)
	if h.opts.Alerts != nil {
		h.opts.Alerts.Evaluate(res)
	}
}

// scoreErr maps an engine error to a status code. Input problems are the
// caller's; anything else means the active policy failed at evaluation time.
func (h *Handler) scoreErr(w http.ResponseWriter, err error) {
	if errors.Is(err, compute.ErrNoAge) || errors.Is(err, compute.ErrNegativeAge) {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	slog.Error("api: scoring failed", "err", err)
	jsonErr(w, http.StatusInternalServerError, err.Error())
}

// toAsset validates req and converts it to an engine asset. A missing ID
// gets a random UUID so the result can still be stored.
func toAsset(req ScoreRequest) (types.Asset, error) {
	asset := types.Asset{
		ID:          req.ID,
		Age:         req.Age,
		InstalledAt: req.InstalledAt,
		CurrentAt:   req.CurrentAt,
	}
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	// An omitted field means no events; an explicit null is not an array.
	if len(req.Events) > 0 {
		evs, err := events.DecodeBytes(req.Events)
		if err != nil {
			return types.Asset{}, err
		}
		asset.Events = evs
	}
	return asset, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// jsonResp encodes v before writing the status so an encoding failure can
// still be reported as a 500.
func jsonResp(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("api: encode response", "err", err)
		buf.Reset()
		code = http.StatusInternalServerError
		json.NewEncoder(&buf).Encode(errorResponse{Error: "encode response: " + err.Error()}) //nolint:errcheck
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(buf.Bytes()) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// stateFromScore converts a 0-100 score to a health state string using the
// engine's bands.
func stateFromScore(score float64) string {
	switch {
	case score >= compute.ThresholdHealthy:
		return compute.StateHealthy
	case score >= compute.ThresholdDegraded:
		return compute.StateDegraded
	default:
		return compute.StateCritical
	}
}
