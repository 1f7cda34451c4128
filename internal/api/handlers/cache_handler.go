package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/application/services"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
)

// MetricsSource exposes the process-lifetime cache counters.
type MetricsSource interface {
	Snapshot() entities.CacheMetricsSnapshot
}

// CacheInvalidator drops cached reference data.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, req services.InvalidationRequest) services.InvalidationResult
}

// CacheWarmer reloads the cache tier from the authoritative store.
type CacheWarmer interface {
	StartBackground(ctx context.Context, force bool)
}

// WarmupRequest is the body of POST /api/cache/warmup.
type WarmupRequest struct {
	Force bool `json:"force"`
}

// CacheHandler exposes cache tier operations
type CacheHandler struct {
	metrics     MetricsSource
	invalidator CacheInvalidator
	warmer      CacheWarmer
	baseCtx     context.Context
}

// NewCacheHandler creates a new cache handler. Background warm-ups run
// under baseCtx so they outlive the request that started them.
func NewCacheHandler(baseCtx context.Context, metrics MetricsSource, invalidator CacheInvalidator, warmer CacheWarmer) *CacheHandler {
	return &CacheHandler{
		metrics:     metrics,
		invalidator: invalidator,
		warmer:      warmer,
		baseCtx:     baseCtx,
	}
}

// GetMetrics handles GET /api/cache/metrics
func (h *CacheHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.metrics.Snapshot())
}

// Invalidate handles POST /api/cache/invalidate
func (h *CacheHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	var req services.InvalidationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.invalidator.Invalidate(r.Context(), req))
}

// Warmup handles POST /api/cache/warmup. The job runs in the background;
// an already running job makes this a no-op.
func (h *CacheHandler) Warmup(w http.ResponseWriter, r *http.Request) {
	var req WarmupRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			respondWithAppError(w, r, err)
			return
		}
	}
	h.warmer.StartBackground(h.baseCtx, req.Force)
	respondWithJSON(w, http.StatusAccepted, map[string]bool{"started": true, "force": req.Force})
}
