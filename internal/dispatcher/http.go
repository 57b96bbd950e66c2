package dispatcher

import (
	"encoding/json"
	"net/http"
)

// Handler serves the Dispatcher's internal RPC surface: one route, run,
// invoked by a Ticker's dispatch Client. There is no router-level auth
// here beyond the shared token check — this surface is only ever
// reachable from inside the cluster, per spec.md §6.
type Handler struct {
	svc   *Service
	token string
}

// NewHandler wraps svc for HTTP serving, authenticating callers against
// token.
func NewHandler(svc *Service, token string) *Handler {
	return &Handler{svc: svc, token: token}
}

// Register wires the Dispatcher RPC route onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /internal/dispatch/run", h.run)
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get("X-Dispatch-Token")
	if got == "" || got != h.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MonitorID == "" || req.DispatchID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.svc.Run(r.Context(), req); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
