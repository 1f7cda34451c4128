package services

import (
	"context"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/adapters/cache"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/observability"
)

// InvalidationRequest names what to drop from the cache tier.
type InvalidationRequest struct {
	DiagnosisCodes []string `json:"diagnosis_codes"`
	ProcedureCodes []string `json:"procedure_codes"`
	SearchResults  bool     `json:"search_results"`
	Embeddings     bool     `json:"embeddings"`
}

// InvalidationResult reports how many keys were removed.
type InvalidationResult struct {
	Keys int `json:"keys"`
}

// CacheInvalidationService drops cached reference data after the
// authoritative tables change.
type CacheInvalidationService struct {
	store *cache.Store
}

// NewCacheInvalidationService creates a new cache invalidation service
func NewCacheInvalidationService(store *cache.Store) *CacheInvalidationService {
	return &CacheInvalidationService{store: store}
}

// Invalidate removes the per-code entries named in req. Search result sets
// are left to expire unless SearchResults is set: they have a short TTL and
// dropping all of them at once sends every request to the index.
func (s *CacheInvalidationService) Invalidate(ctx context.Context, req InvalidationRequest) InvalidationResult {
	var result InvalidationResult
	logger := observability.LoggerFromContext(ctx)

	for _, code := range req.DiagnosisCodes {
		for _, key := range []string{cache.DiagnosisKey(code), cache.MappingKey(code), cache.DocumentKey(code)} {
			if s.store.Exists(ctx, key) {
				s.store.Invalidate(ctx, key)
				result.Keys++
			}
		}
	}
	for _, code := range req.ProcedureCodes {
		key := cache.ProcedureKey(code)
		if s.store.Exists(ctx, key) {
			s.store.Invalidate(ctx, key)
			result.Keys++
		}
	}

	if req.SearchResults {
		result.Keys += s.store.InvalidatePattern(ctx, cache.SearchPrefix)
	}
	if req.Embeddings {
		result.Keys += s.store.InvalidatePattern(ctx, cache.EmbeddingPrefix)
	}

	logger.Info().
		Str("op", "invalidate").
		Int("diagnosis_codes", len(req.DiagnosisCodes)).
		Int("procedure_codes", len(req.ProcedureCodes)).
		Bool("search_results", req.SearchResults).
		Int("keys", result.Keys).
		Msg("cache invalidated")
	return result
}
