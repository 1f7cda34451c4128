package search

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/typesense/typesense-go/v2/typesense/api"
	"github.com/typesense/typesense-go/v2/typesense/api/pointer"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/ranking"
	tsclient "github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/clients/typesense"
	apperrors "github.com/zatekoja/Clinicalordervalidation/backend/pkg/errors"
)

const embeddingField = "embedding"

// NearestRareConditions runs a k-nearest-neighbour query over the registry
// embeddings. Score is cosine similarity (1 - distance).
func (a *TypesenseAdapter) NearestRareConditions(ctx context.Context, vector []float32, k int) ([]entities.ScoredRow[entities.RareCondition], error) {
	if len(vector) == 0 || k <= 0 {
		return nil, nil
	}

	docs, err := a.index.SearchDocuments(ctx, tsclient.RareConditionCollection, &api.SearchCollectionParams{
		Q:             pointer.String("*"),
		VectorQuery:   pointer.String(vectorQuery(embeddingField, vector, k)),
		ExcludeFields: pointer.String(embeddingField),
		PerPage:       pointer.Int(k),
	})
	if err != nil {
		return nil, apperrors.NewUnavailableError("rare condition vector search failed", err)
	}

	rows := make([]entities.ScoredRow[entities.RareCondition], 0, len(docs))
	for _, doc := range docs {
		similarity := 1 - num(doc, "_vector_distance")
		rows = append(rows, entities.ScoredRow[entities.RareCondition]{
			Row:   rareConditionFromDocument(doc),
			Score: math.Round(similarity*1e4) / 1e4,
		})
	}
	return ranking.Top(rows, ranking.RareConditionKey, k), nil
}

func vectorQuery(field string, vector []float32, k int) string {
	var b strings.Builder
	b.WriteString(field)
	b.WriteString(":([")
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'f', -1, 32))
	}
	b.WriteString("], k:")
	b.WriteString(strconv.Itoa(k))
	b.WriteString(")")
	return b.String()
}
