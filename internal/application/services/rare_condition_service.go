package services

import (
	"context"
	"strings"
	"time"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/adapters/cache"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/providers"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/repositories"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/Clinicalordervalidation/backend/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
)

// Sources of a rare-condition result.
const (
	RareSourceVector = "vector"
	RareSourceText   = "text"
)

const defaultRareConditionLimit = 5

// RareConditionResult holds the nearest registry entries for a set of notes.
type RareConditionResult struct {
	Matches []entities.ScoredRow[entities.RareCondition] `json:"matches"`
	Source  string                                       `json:"source"`
}

// RareConditionService ranks rare-condition registry entries by similarity
// to free-text clinical notes. It is only invoked on explicit request.
type RareConditionService struct {
	embedder providers.EmbeddingProvider
	vectors  repositories.RareConditionVectorSearcher
	text     repositories.RareConditionTextSearcher
	cache    *cache.Store
	ttl      time.Duration
	limit    int
}

// NewRareConditionService creates a new rare-condition service. embedder and
// vectors may be nil; lookups then use the text fallback only.
func NewRareConditionService(
	embedder providers.EmbeddingProvider,
	vectors repositories.RareConditionVectorSearcher,
	text repositories.RareConditionTextSearcher,
	store *cache.Store,
	ttl time.Duration,
	limit int,
) *RareConditionService {
	if store == nil {
		store = cache.Nop()
	}
	if limit <= 0 {
		limit = defaultRareConditionLimit
	}
	return &RareConditionService{
		embedder: embedder,
		vectors:  vectors,
		text:     text,
		cache:    store,
		ttl:      ttl,
		limit:    limit,
	}
}

// Lookup returns the top-k registry entries for notes. An empty or failed
// vector search falls back to a weighted substring match.
func (s *RareConditionService) Lookup(ctx context.Context, notes string, k int) (*RareConditionResult, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, apperrors.NewValidationError("notes are required")
	}
	if k <= 0 {
		k = s.limit
	}

	ctx, span := observability.StartSpan(ctx, "rare_condition.lookup")
	defer span.End()
	logger := observability.LoggerFromContext(ctx)
	start := time.Now()

	if matches, err := s.vectorSearch(ctx, notes, k); err != nil {
		logger.Warn().Err(err).Str("op", "rare_condition_vector").Msg("vector search failed, using text search")
	} else if len(matches) > 0 {
		observability.SetSpanAttributes(span, attribute.String("rare_condition.source", RareSourceVector))
		logger.Debug().Str("op", "rare_condition_lookup").Str("source", RareSourceVector).Dur("duration_ms", time.Since(start)).Msg("rare conditions ranked")
		return &RareConditionResult{Matches: matches, Source: RareSourceVector}, nil
	}

	terms := entities.CategorizeKeywords(strings.Fields(notes)).SearchTerms()
	matches, err := s.text.SearchRareConditions(ctx, terms, k)
	if err != nil {
		observability.RecordError(span, err)
		return nil, err
	}
	observability.SetSpanAttributes(span, attribute.String("rare_condition.source", RareSourceText))
	logger.Debug().Str("op", "rare_condition_lookup").Str("source", RareSourceText).Dur("duration_ms", time.Since(start)).Msg("rare conditions ranked")
	return &RareConditionResult{Matches: nonNilMatches(matches), Source: RareSourceText}, nil
}

func (s *RareConditionService) vectorSearch(ctx context.Context, notes string, k int) ([]entities.ScoredRow[entities.RareCondition], error) {
	if s.embedder == nil || s.vectors == nil {
		return nil, nil
	}
	vector, err := s.embedding(ctx, notes)
	if err != nil {
		return nil, err
	}
	return s.vectors.NearestRareConditions(ctx, vector, k)
}

// embedding returns the cached vector for notes, computing it on a miss.
func (s *RareConditionService) embedding(ctx context.Context, notes string) ([]float32, error) {
	key := cache.EmbeddingKey(notes)
	if vector, ok := cache.Lookup[[]float32](ctx, s.cache, cache.KindScalar, key); ok && len(vector) > 0 {
		return vector, nil
	}

	vector, err := s.embedder.Embed(ctx, notes)
	if err != nil {
		return nil, apperrors.NewExternalError("failed to embed notes", err)
	}
	s.cache.Set(ctx, cache.KindScalar, key, vector, s.ttl)
	return vector, nil
}

func nonNilMatches(m []entities.ScoredRow[entities.RareCondition]) []entities.ScoredRow[entities.RareCondition] {
	if m == nil {
		return []entities.ScoredRow[entities.RareCondition]{}
	}
	return m
}
