package repositories

import (
	"context"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
)

// RareConditionVectorSearcher finds registry entries nearest to an embedding.
type RareConditionVectorSearcher interface {
	NearestRareConditions(ctx context.Context, vector []float32, k int) ([]entities.ScoredRow[entities.RareCondition], error)
}

// RareConditionTextSearcher is the substring fallback over the same registry.
type RareConditionTextSearcher interface {
	SearchRareConditions(ctx context.Context, terms []string, limit int) ([]entities.ScoredRow[entities.RareCondition], error)
}
