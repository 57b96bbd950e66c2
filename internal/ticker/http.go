package ticker

import (
	"encoding/json"
	"net/http"
)

// Handler serves the Ticker's internal RPC surface: bootstrap, poke,
// status. There is no router-level auth here — this surface is only
// ever reachable from the externally-facing router process, per
// spec.md §6.
type Handler struct {
	registry *Registry
}

// NewHandler wraps registry for HTTP serving.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// Register wires the Ticker RPC routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /internal/bootstrap", h.bootstrap)
	mux.HandleFunc("POST /internal/poke", h.poke)
	mux.HandleFunc("GET /internal/status", h.status)
}

type bootstrapRequest struct {
	OrgID          string `json:"orgId"`
	TickIntervalMs int64  `json:"tickIntervalMs"`
	BatchSize      int    `json:"batchSize"`
}

func (h *Handler) bootstrap(w http.ResponseWriter, r *http.Request) {
	var req bootstrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrgID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	t := h.registry.Tenant(req.OrgID)
	if err := t.Bootstrap(r.Context(), req.TickIntervalMs, req.BatchSize); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeOK(w)
}

type pokeRequest struct {
	OrgID string `json:"orgId"`
}

func (h *Handler) poke(w http.ResponseWriter, r *http.Request) {
	var req pokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrgID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.registry.Tenant(req.OrgID).Poke(r.Context())
	writeOK(w)
}

// writeOK writes the 200 "ok" body the Ticker RPC surface's bootstrap
// and poke endpoints respond with on success.
func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("orgId")
	if orgID == "" {
		http.Error(w, "missing orgId", http.StatusBadRequest)
		return
	}
	report, err := h.registry.Tenant(orgID).Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}
