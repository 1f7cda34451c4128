package routes

import (
	"net/http"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/api/handlers"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/api/middleware"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	contextHandler       *handlers.ContextHandler
	rareConditionHandler *handlers.RareConditionHandler
	cacheHandler         *handlers.CacheHandler
	healthHandler        *handlers.HealthHandler

	allowedOrigins []string
	metrics        *observability.RequestMetrics
}

// NewRouter creates a new router
func NewRouter(
	contextHandler *handlers.ContextHandler,
	rareConditionHandler *handlers.RareConditionHandler,
	cacheHandler *handlers.CacheHandler,
	healthHandler *handlers.HealthHandler,
	allowedOrigins []string,
	metrics *observability.RequestMetrics,
) *Router {
	return &Router{
		mux:                  http.NewServeMux(),
		contextHandler:       contextHandler,
		rareConditionHandler: rareConditionHandler,
		cacheHandler:         cacheHandler,
		healthHandler:        healthHandler,
		allowedOrigins:       allowedOrigins,
		metrics:              metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", r.healthHandler.Live)
	r.mux.HandleFunc("GET /health/ready", r.healthHandler.Ready)

	r.mux.HandleFunc("POST /api/context", r.contextHandler.GenerateContext)

	// Rare-condition lookup is optional: it needs the registry tables.
	if r.rareConditionHandler != nil {
		r.mux.HandleFunc("POST /api/rare-conditions", r.rareConditionHandler.FindRareConditions)
	}

	if r.cacheHandler != nil {
		r.mux.HandleFunc("GET /api/cache/metrics", r.cacheHandler.GetMetrics)
		r.mux.HandleFunc("POST /api/cache/invalidate", r.cacheHandler.Invalidate)
		r.mux.HandleFunc("POST /api/cache/warmup", r.cacheHandler.Warmup)
	}

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.Compression(handler)
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
