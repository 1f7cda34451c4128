package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/providers"
)

const readinessTimeout = 2 * time.Second

// HealthHandler reports liveness and per-dependency readiness.
type HealthHandler struct {
	checks map[string]providers.HealthChecker
}

// NewHealthHandler creates a new health handler for the named dependencies.
func NewHealthHandler(checks map[string]providers.HealthChecker) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Live handles GET /health
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Ready handles GET /health/ready. The engine serves degraded context when
// the cache or search tier is down, so only the relational store is
// required for a 200.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var mu sync.Mutex
	var wg sync.WaitGroup
	status := make(map[string]string, len(names))
	for _, name := range names {
		wg.Add(1)
		go func(name string, check providers.HealthChecker) {
			defer wg.Done()
			result := "ok"
			if err := check.Healthy(ctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			status[name] = result
			mu.Unlock()
		}(name, h.checks[name])
	}
	wg.Wait()

	code := http.StatusOK
	if s, ok := status[RequiredDependency]; ok && s != "ok" {
		code = http.StatusServiceUnavailable
	}
	respondWithJSON(w, code, status)
}

// RequiredDependency is the check name whose failure makes the service unready.
const RequiredDependency = "postgres"
