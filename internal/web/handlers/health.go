package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyChecker reports extractor readiness.
type ReadyChecker interface {
	Ready() bool
}

// HealthHandler reports the state of the store and the extractor.
type HealthHandler struct {
	store     Pinger
	extractor ReadyChecker
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(store Pinger, extractor ReadyChecker) *HealthHandler {
	return &HealthHandler{store: store, extractor: extractor}
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status         string `json:"status"`
	Store          string `json:"store"`
	ExtractorReady bool   `json:"extractor_ready"`
}

// Check answers 200 while the store is reachable, 503 otherwise. An extractor that
// is not ready yet degrades the status without failing the check.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Store: "ok", ExtractorReady: h.extractor.Ready()}
	if !resp.ExtractorReady {
		resp.Status = "degraded"
	}
	if err := h.store.Ping(ctx); err != nil {
		resp.Status = "unavailable"
		resp.Store = "unavailable"
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
