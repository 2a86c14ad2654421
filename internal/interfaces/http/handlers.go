package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/volgate/volgate/internal/domain"
	"github.com/volgate/volgate/internal/engine"
	"github.com/volgate/volgate/internal/surface"
)

// SurfaceSpec is the wire form of one forward time layer. Exactly one of
// Grid or Frustum must be set.
type SurfaceSpec struct {
	Name    string       `json:"name"`
	Grid    *GridSpec    `json:"grid,omitempty"`
	Frustum *FrustumSpec `json:"frustum,omitempty"`
}

// GridSpec carries explicit row-major tiles.
type GridSpec struct {
	Origin domain.Coord     `json:"origin"`
	Rows   [][]surface.Tile `json:"rows"`
}

// FrustumSpec carries the parametric layer form.
type FrustumSpec struct {
	Center domain.Coord       `json:"center"`
	Base   float64            `json:"base"`
	Slope  float64            `json:"slope"`
	Extent int                `json:"extent"`
	Bulge  *surface.BulgeBand `json:"bulge,omitempty"`
}

// Build converts the wire form into a surface layer.
func (s SurfaceSpec) Build() (surface.Surface, error) {
	switch {
	case s.Grid != nil && s.Frustum != nil:
		return nil, domain.NewInputError("surface", "layer %q sets both grid and frustum", s.Name)
	case s.Grid != nil:
		return surface.NewGrid(s.Name, s.Grid.Origin, s.Grid.Rows)
	case s.Frustum != nil:
		return surface.NewFrustum(s.Name, s.Frustum.Center, s.Frustum.Base, s.Frustum.Slope, s.Frustum.Extent, s.Frustum.Bulge)
	default:
		return nil, domain.NewInputError("surface", "layer %q sets neither grid nor frustum", s.Name)
	}
}

// EvaluateRequest is the wire form of one candidate evaluation.
type EvaluateRequest struct {
	Candidate domain.Candidate          `json:"candidate"`
	Surfaces  []SurfaceSpec             `json:"surfaces"`
	Market    domain.MarketSnapshot     `json:"market"`
	Account   domain.AccountSnapshot    `json:"account"`
	Events    []domain.DisjunctionEvent `json:"events,omitempty"`
	Commit    bool                      `json:"commit"`
}

// SessionResetRequest starts a new session day.
type SessionResetRequest struct {
	Equity       float64 `json:"equity"`
	PriorDayLoss float64 `json:"prior_day_loss"`
	ClearBins    bool    `json:"clear_bins"`
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// Handlers bundles the endpoint implementations over one engine.
type Handlers struct {
	engine  *engine.Engine
	metrics *MetricsRegistry
	started time.Time
}

// NewHandlers creates the endpoint set.
func NewHandlers(eng *engine.Engine, metrics *MetricsRegistry) *Handlers {
	return &Handlers{engine: eng, metrics: metrics, started: time.Now()}
}

// Health reports process liveness and uptime.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

// Evaluate runs the full admission pipeline for one candidate.
func (h *Handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	layers := make([]surface.Surface, 0, len(req.Surfaces))
	for _, spec := range req.Surfaces {
		layer, err := spec.Build()
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		layers = append(layers, layer)
	}

	start := time.Now()
	decision, err := h.engine.EvaluateCandidate(engine.Request{
		Candidate: req.Candidate,
		Surfaces:  layers,
		Market:    req.Market,
		Account:   req.Account,
		Events:    req.Events,
		Commit:    req.Commit,
	})
	if err != nil {
		h.metrics.RecordEvaluationError(errorKind(err))
		switch {
		case domain.IsInputError(err):
			h.writeError(w, r, http.StatusBadRequest, err.Error())
		case domain.IsStaleState(err):
			h.writeError(w, r, http.StatusConflict, err.Error())
		default:
			h.writeError(w, r, http.StatusInternalServerError, err.Error())
		}
		return
	}

	h.metrics.RecordEvaluation(string(decision.Outcome), time.Since(start))
	h.metrics.SetBinExposure(h.engine.BinSnapshot())
	writeJSON(w, http.StatusOK, decision)
}

// BinSnapshot exposes the capital ledger.
func (h *Handlers) BinSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.BinSnapshot())
}

// SessionReset starts a new session day.
func (h *Handlers) SessionReset(w http.ResponseWriter, r *http.Request) {
	var req SessionResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}
	if err := h.engine.ResetSession(req.Equity, req.PriorDayLoss, req.ClearBins); err != nil {
		if domain.IsInputError(err) {
			h.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, r, http.StatusInternalServerError, err.Error())
		return
	}
	h.metrics.RecordSessionReset()
	h.metrics.SetBinExposure(h.engine.BinSnapshot())
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// NotFound is the JSON 404 handler.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found: " + r.URL.Path})
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: requestIDFrom(r.Context())})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorKind(err error) string {
	switch {
	case domain.IsInputError(err):
		return "input"
	case domain.IsStaleState(err):
		return "stale_state"
	default:
		return "internal"
	}
}
