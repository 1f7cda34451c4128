package database

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
)

const defaultStreamBatch = 1000

// streamKeyset pages through a table in key order. page receives the last
// row of the previous batch (nil on the first call) and returns the query
// for the next one.
func streamKeyset[R any, E any](
	ctx context.Context,
	a *MedicalCodeAdapter,
	op string,
	batchSize int,
	page func(after *R) *goqu.SelectDataset,
	convert func(R) E,
	fn func([]E) error,
) error {
	if batchSize <= 0 {
		batchSize = defaultStreamBatch
	}

	var after *R
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var rows []R
		if err := a.selectRows(ctx, op, page(after).Limit(uint(batchSize)), &rows); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		batch := make([]E, len(rows))
		for i, r := range rows {
			batch[i] = convert(r)
		}
		if err := fn(batch); err != nil {
			return err
		}

		if len(rows) < batchSize {
			return nil
		}
		after = &rows[len(rows)-1]
	}
}

// StreamDiagnosisCodes streams every diagnosis code ordered by code.
func (a *MedicalCodeAdapter) StreamDiagnosisCodes(ctx context.Context, batchSize int, fn func([]entities.DiagnosisCode) error) error {
	return streamKeyset(ctx, a, "diagnosis_stream", batchSize,
		func(after *diagnosisRow) *goqu.SelectDataset {
			ds := a.db.From(diagnosisTable).Select(diagnosisColumns...).Order(goqu.C("code").Asc())
			if after != nil {
				ds = ds.Where(goqu.C("code").Gt(after.Code))
			}
			return ds
		},
		diagnosisRow.entity, fn)
}

// StreamProcedureCodes streams every procedure code ordered by code.
func (a *MedicalCodeAdapter) StreamProcedureCodes(ctx context.Context, batchSize int, fn func([]entities.ProcedureCode) error) error {
	return streamKeyset(ctx, a, "procedure_stream", batchSize,
		func(after *procedureRow) *goqu.SelectDataset {
			ds := a.db.From(procedureTable).Select(procedureColumns...).Order(goqu.C("code").Asc())
			if after != nil {
				ds = ds.Where(goqu.C("code").Gt(after.Code))
			}
			return ds
		},
		procedureRow.entity, fn)
}

// StreamMappings streams every mapping ordered by (diagnosis, procedure).
func (a *MedicalCodeAdapter) StreamMappings(ctx context.Context, batchSize int, fn func([]entities.Mapping) error) error {
	return streamKeyset(ctx, a, "mapping_stream", batchSize,
		func(after *mappingRow) *goqu.SelectDataset {
			ds := a.mappingSelect().Select(mappingColumns...).
				Order(goqu.I("m.diagnosis_code").Asc(), goqu.I("m.procedure_code").Asc())
			if after != nil {
				ds = ds.Where(goqu.L("(m.diagnosis_code, m.procedure_code) > (?, ?)", after.DiagnosisCode, after.ProcedureCode))
			}
			return ds
		},
		mappingRow.entity, fn)
}

// StreamDocuments streams every reference document ordered by
// (diagnosis code, id), so one diagnosis's documents are contiguous.
func (a *MedicalCodeAdapter) StreamDocuments(ctx context.Context, batchSize int, fn func([]entities.ReferenceDocument) error) error {
	return streamKeyset(ctx, a, "document_stream", batchSize,
		func(after *documentRow) *goqu.SelectDataset {
			ds := a.documentSelect().Select(documentColumns...).
				Order(goqu.I("r.diagnosis_code").Asc(), goqu.I("r.id").Asc())
			if after != nil {
				ds = ds.Where(goqu.L("(r.diagnosis_code, r.id) > (?, ?)", after.DiagnosisCode, after.ID))
			}
			return ds
		},
		documentRow.entity, fn)
}

// StreamRareConditions streams the rare-condition registry ordered by code.
func (a *MedicalCodeAdapter) StreamRareConditions(ctx context.Context, batchSize int, fn func([]entities.RareCondition) error) error {
	return streamKeyset(ctx, a, "rare_condition_stream", batchSize,
		func(after *rareConditionRow) *goqu.SelectDataset {
			ds := a.db.From(rareConditionTable).Select("code", "name", "description", "symptoms").Order(goqu.C("code").Asc())
			if after != nil {
				ds = ds.Where(goqu.C("code").Gt(after.Code))
			}
			return ds
		},
		rareConditionRow.entity, fn)
}
