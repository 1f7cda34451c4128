package repositories

import (
	"context"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
)

// CodeSearcher ranks reference rows for a keyword set. Implemented by the
// search-index client and by the relational fallback with identical scoring.
type CodeSearcher interface {
	SearchDiagnoses(ctx context.Context, keywords entities.CategorizedKeywords, limit int) ([]entities.ScoredRow[entities.DiagnosisCode], error)
	SearchProcedures(ctx context.Context, keywords entities.CategorizedKeywords, limit int) ([]entities.ScoredRow[entities.ProcedureCode], error)
	GetMappingsFor(ctx context.Context, diagnosisCodes []string, keywords entities.CategorizedKeywords) ([]entities.ScoredRow[entities.Mapping], error)
	GetDocumentsFor(ctx context.Context, diagnosisCodes []string, keywords entities.CategorizedKeywords) ([]entities.ScoredRow[entities.ReferenceDocument], error)
}

// SubstringResult is the unscored last-resort result set.
type SubstringResult struct {
	Diagnoses  []entities.DiagnosisCode
	Procedures []entities.ProcedureCode
	Mappings   []entities.Mapping
}

// SubstringSearcher performs the unweighted ILIKE match used when weighted
// ranking itself failed.
type SubstringSearcher interface {
	SubstringSearch(ctx context.Context, terms []string, limit int) (*SubstringResult, error)
}

// ReferenceDataReader streams whole reference tables in keyset-paginated
// batches. fn is called once per non-empty batch.
type ReferenceDataReader interface {
	StreamDiagnosisCodes(ctx context.Context, batchSize int, fn func([]entities.DiagnosisCode) error) error
	StreamProcedureCodes(ctx context.Context, batchSize int, fn func([]entities.ProcedureCode) error) error
	StreamMappings(ctx context.Context, batchSize int, fn func([]entities.Mapping) error) error
	StreamDocuments(ctx context.Context, batchSize int, fn func([]entities.ReferenceDocument) error) error
	StreamRareConditions(ctx context.Context, batchSize int, fn func([]entities.RareCondition) error) error
}
