package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/api/handlers"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/application/services"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/providers"
	apperrors "github.com/zatekoja/Clinicalordervalidation/backend/pkg/errors"
)

type stubGenerator struct {
	keywords []string
}

func (s *stubGenerator) Generate(ctx context.Context, keywords []string) services.ContextResult {
	s.keywords = keywords
	return services.ContextResult{Text: "=== DIAGNOSIS CODES ===", Path: services.PathPrimary, RequestID: "req-1"}
}

func TestContextHandler_GenerateContext(t *testing.T) {
	generator := &stubGenerator{}
	handler := handlers.NewContextHandler(generator)

	body := `{"keywords":["ultrasound","R10.13"],"notes":"right upper quadrant"}`
	req := httptest.NewRequest("POST", "/api/context", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.GenerateContext(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
	assert.Equal(t, []string{"ultrasound", "R10.13", "right", "upper", "quadrant"}, generator.keywords)

	var response map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "primary", response["path"])
	assert.Equal(t, "req-1", response["request_id"])
	assert.Contains(t, response["context"], "DIAGNOSIS CODES")
}

func TestContextHandler_InvalidBody(t *testing.T) {
	handler := handlers.NewContextHandler(&stubGenerator{})

	req := httptest.NewRequest("POST", "/api/context", strings.NewReader(`{"keywords":`))
	w := httptest.NewRecorder()
	handler.GenerateContext(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

type stubLookup struct {
	result *services.RareConditionResult
	err    error
	k      int
}

func (s *stubLookup) Lookup(ctx context.Context, notes string, k int) (*services.RareConditionResult, error) {
	s.k = k
	return s.result, s.err
}

func TestRareConditionHandler_FindRareConditions(t *testing.T) {
	lookup := &stubLookup{result: &services.RareConditionResult{
		Source: services.RareSourceVector,
		Matches: []entities.ScoredRow[entities.RareCondition]{
			{Row: entities.RareCondition{Code: "E75.22", Name: "Gaucher disease"}, Score: 0.87},
		},
	}}
	handler := handlers.NewRareConditionHandler(lookup)

	req := httptest.NewRequest("POST", "/api/rare-conditions", strings.NewReader(`{"notes":"splenomegaly, bone pain","limit":3}`))
	w := httptest.NewRecorder()
	handler.FindRareConditions(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, lookup.k)
	assert.Contains(t, w.Body.String(), `"source":"vector"`)
	assert.Contains(t, w.Body.String(), "E75.22")
}

func TestRareConditionHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		code int
	}{
		{"limit out of range", `{"notes":"x","limit":500}`, nil, http.StatusBadRequest},
		{"blank notes", `{"notes":" "}`, apperrors.NewValidationError("notes are required"), http.StatusBadRequest},
		{"store failure", `{"notes":"bone pain"}`, apperrors.NewInternalError("query failed", errors.New("connection refused")), http.StatusInternalServerError},
		{"index unavailable", `{"notes":"bone pain"}`, apperrors.NewUnavailableError("search index down", nil), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := handlers.NewRareConditionHandler(&stubLookup{err: tt.err})
			req := httptest.NewRequest("POST", "/api/rare-conditions", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.FindRareConditions(w, req)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

type stubMetrics struct{}

func (stubMetrics) Snapshot() entities.CacheMetricsSnapshot {
	return entities.CacheMetricsSnapshot{Hits: 8, Misses: 2, HitRate: 80, AvgLatencyMs: 1.25, Samples: 10}
}

type stubInvalidator struct {
	req services.InvalidationRequest
}

func (s *stubInvalidator) Invalidate(ctx context.Context, req services.InvalidationRequest) services.InvalidationResult {
	s.req = req
	return services.InvalidationResult{Keys: len(req.DiagnosisCodes) * 3}
}

type stubWarmer struct {
	mu     sync.Mutex
	forced []bool
}

func (s *stubWarmer) StartBackground(ctx context.Context, force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced = append(s.forced, force)
}

func TestCacheHandler(t *testing.T) {
	invalidator := &stubInvalidator{}
	warmer := &stubWarmer{}
	handler := handlers.NewCacheHandler(context.Background(), stubMetrics{}, invalidator, warmer)

	t.Run("metrics", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.GetMetrics(w, httptest.NewRequest("GET", "/api/cache/metrics", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		var snapshot entities.CacheMetricsSnapshot
		require.NoError(t, json.NewDecoder(w.Body).Decode(&snapshot))
		assert.Equal(t, int64(8), snapshot.Hits)
		assert.Equal(t, 80.0, snapshot.HitRate)
	})

	t.Run("invalidate", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/api/cache/invalidate", strings.NewReader(`{"diagnosis_codes":["R10.13"],"search_results":true}`))
		handler.Invalidate(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"R10.13"}, invalidator.req.DiagnosisCodes)
		assert.True(t, invalidator.req.SearchResults)
		assert.JSONEq(t, `{"keys":3}`, w.Body.String())
	})

	t.Run("warmup", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.Warmup(w, httptest.NewRequest("POST", "/api/cache/warmup", strings.NewReader(`{"force":true}`)))
		assert.Equal(t, http.StatusAccepted, w.Code)

		w = httptest.NewRecorder()
		handler.Warmup(w, httptest.NewRequest("POST", "/api/cache/warmup", nil))
		assert.Equal(t, http.StatusAccepted, w.Code)

		assert.Equal(t, []bool{true, false}, warmer.forced)
	})
}

func TestHealthHandler_Ready(t *testing.T) {
	down := providers.HealthCheckerFunc(func(ctx context.Context) error { return errors.New("dial tcp: connection refused") })
	up := providers.HealthCheckerFunc(func(ctx context.Context) error { return nil })

	t.Run("degraded search tier is still ready", func(t *testing.T) {
		handler := handlers.NewHealthHandler(map[string]providers.HealthChecker{"postgres": up, "typesense": down})
		w := httptest.NewRecorder()
		handler.Ready(w, httptest.NewRequest("GET", "/health/ready", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "connection refused")
	})

	t.Run("relational store down", func(t *testing.T) {
		handler := handlers.NewHealthHandler(map[string]providers.HealthChecker{"postgres": down, "redis": up})
		w := httptest.NewRecorder()
		handler.Ready(w, httptest.NewRequest("GET", "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}
