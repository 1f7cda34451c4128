package repositories

import (
	"context"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
)

// SearchIndexWriter loads reference rows into the search tier. Upserts
// replace documents with the same id.
type SearchIndexWriter interface {
	InitSchema(ctx context.Context) error
	Reset(ctx context.Context) error
	UpsertDiagnoses(ctx context.Context, rows []entities.DiagnosisCode) error
	UpsertProcedures(ctx context.Context, rows []entities.ProcedureCode) error
	UpsertMappings(ctx context.Context, rows []entities.Mapping) error
	UpsertDocuments(ctx context.Context, rows []entities.ReferenceDocument) error
	UpsertRareConditions(ctx context.Context, rows []entities.RareCondition) error
}
