package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/ranking"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/repositories"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/Clinicalordervalidation/backend/pkg/errors"
)

// Reference tables.
const (
	diagnosisTable     = "diagnosis_codes"
	procedureTable     = "procedure_codes"
	mappingTable       = "code_mappings"
	documentTable      = "reference_documents"
	rareConditionTable = "rare_conditions"
)

// substringMappingCodes bounds how many diagnoses the terminal search expands into mappings.
const substringMappingCodes = 5

// MedicalCodeAdapter is the authoritative relational store. Its weighted
// queries compute the same score as the search index path:
// a sum of CASE WHEN field ILIKE '%term%' THEN weight ELSE 0 END.
type MedicalCodeAdapter struct {
	client *postgres.Client
	db     *goqu.Database
	dbx    *sqlx.DB
}

// Ensure MedicalCodeAdapter implements the relational contracts
var (
	_ repositories.CodeSearcher              = (*MedicalCodeAdapter)(nil)
	_ repositories.SubstringSearcher         = (*MedicalCodeAdapter)(nil)
	_ repositories.ReferenceDataReader       = (*MedicalCodeAdapter)(nil)
	_ repositories.RareConditionTextSearcher = (*MedicalCodeAdapter)(nil)
)

// NewMedicalCodeAdapter creates a new medical code adapter
func NewMedicalCodeAdapter(client *postgres.Client) *MedicalCodeAdapter {
	return &MedicalCodeAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
		dbx:    sqlx.NewDb(client.DB(), "postgres"),
	}
}

// scoredColumns maps weight-table fields to SQL expressions per entity.
var scoredColumns = map[ranking.Entity]map[string]exp.Expression{
	ranking.EntityDiagnosis: {
		ranking.FieldDescription:   goqu.I("description"),
		ranking.FieldClinicalNotes: goqu.I("clinical_notes"),
		ranking.FieldKeywords:      goqu.L("array_to_string(keywords, ' ')"),
	},
	ranking.EntityProcedure: {
		ranking.FieldDescription: goqu.I("description"),
		ranking.FieldBodyPart:    goqu.I("body_part"),
		ranking.FieldModality:    goqu.I("modality"),
	},
	ranking.EntityMapping: {
		ranking.FieldJustification:        goqu.I("m.justification"),
		ranking.FieldEvidence:             goqu.I("m.evidence"),
		ranking.FieldDiagnosisDescription: goqu.I("d.description"),
		ranking.FieldProcedureDescription: goqu.I("p.description"),
	},
	ranking.EntityDocument: {
		ranking.FieldContent:              goqu.I("r.content"),
		ranking.FieldDiagnosisDescription: goqu.I("d.description"),
	},
	ranking.EntityRareCondition: {
		ranking.FieldDescription: goqu.I("description"),
		ranking.FieldSymptoms:    goqu.I("symptoms"),
	},
}

// scoreExpression renders the weighted CASE sum for entity over terms.
func scoreExpression(entity ranking.Entity, terms []string) exp.LiteralExpression {
	columns := scoredColumns[entity]
	var (
		parts []string
		args  []interface{}
	)
	for _, fw := range ranking.Weights(entity) {
		col, ok := columns[fw.Field]
		if !ok {
			continue
		}
		for _, term := range terms {
			if term == "" {
				continue
			}
			parts = append(parts, fmt.Sprintf("CASE WHEN ? ILIKE ? THEN %.1f ELSE 0 END", fw.Weight))
			args = append(args, col, likePattern(term))
		}
	}
	if len(parts) == 0 {
		return goqu.L("0")
	}
	return goqu.L("("+strings.Join(parts, " + ")+")", args...)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern wraps term for a substring ILIKE with metacharacters escaped.
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

func (a *MedicalCodeAdapter) selectRows(ctx context.Context, op string, ds *goqu.SelectDataset, dest interface{}) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build "+op+" query", err)
	}

	start := time.Now()
	err = a.dbx.SelectContext(ctx, dest, query, args...)
	logger := observability.LoggerFromContext(ctx)
	logger.Debug().Str("op", op).Dur("duration_ms", time.Since(start)).Err(err).Msg("relational query")
	if err != nil {
		return apperrors.NewInternalError("failed to run "+op+" query", err)
	}
	return nil
}

var diagnosisColumns = []interface{}{"code", "description", "clinical_notes", "imaging_modalities", "primary_imaging", "keywords"}

var procedureColumns = []interface{}{"code", "description", "modality", "body_part"}

// rankedQuery wraps a scored select so rows with zero score are dropped and
// ties break on the key column.
func (a *MedicalCodeAdapter) rankedQuery(inner *goqu.SelectDataset, key string, limit int) *goqu.SelectDataset {
	ds := a.db.From(inner.As("ranked")).
		Where(goqu.C("score").Gt(0)).
		Order(goqu.C("score").Desc(), goqu.C(key).Asc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	return ds
}

// SearchDiagnoses ranks diagnosis codes with the weighted SQL score.
func (a *MedicalCodeAdapter) SearchDiagnoses(ctx context.Context, keywords entities.CategorizedKeywords, limit int) ([]entities.ScoredRow[entities.DiagnosisCode], error) {
	var literal []entities.ScoredRow[entities.DiagnosisCode]
	if codes := keywords.DiagnosisCodes(); len(codes) > 0 {
		var rows []diagnosisRow
		ds := a.db.From(diagnosisTable).Select(diagnosisColumns...).
			Where(goqu.C("code").In(codes)).
			Order(goqu.C("code").Asc())
		if err := a.selectRows(ctx, "diagnosis_literal", ds, &rows); err != nil {
			return nil, err
		}
		for _, r := range rows {
			literal = append(literal, entities.ScoredRow[entities.DiagnosisCode]{Row: r.entity(), Score: ranking.LiteralMatchScore})
		}
	}

	terms := keywords.SearchTerms()
	if len(terms) == 0 || len(literal) >= limit {
		return ranking.Top(literal, ranking.DiagnosisKey, limit), nil
	}

	inner := a.db.From(diagnosisTable).Select(append(append([]interface{}{}, diagnosisColumns...),
		scoreExpression(ranking.EntityDiagnosis, terms).As("score"))...)
	var rows []diagnosisRow
	if err := a.selectRows(ctx, "diagnosis_search", a.rankedQuery(inner, "code", limit+len(literal)), &rows); err != nil {
		return nil, err
	}

	fuzzy := make([]entities.ScoredRow[entities.DiagnosisCode], 0, len(rows))
	for _, r := range rows {
		fuzzy = append(fuzzy, entities.ScoredRow[entities.DiagnosisCode]{Row: r.entity(), Score: r.Score})
	}
	return ranking.MergeLiteral(literal, fuzzy, ranking.DiagnosisKey, limit), nil
}

// SearchProcedures ranks procedure codes with the weighted SQL score.
func (a *MedicalCodeAdapter) SearchProcedures(ctx context.Context, keywords entities.CategorizedKeywords, limit int) ([]entities.ScoredRow[entities.ProcedureCode], error) {
	var literal []entities.ScoredRow[entities.ProcedureCode]
	if codes := keywords.ProcedureCodes(); len(codes) > 0 {
		var rows []procedureRow
		ds := a.db.From(procedureTable).Select(procedureColumns...).
			Where(goqu.C("code").In(codes)).
			Order(goqu.C("code").Asc())
		if err := a.selectRows(ctx, "procedure_literal", ds, &rows); err != nil {
			return nil, err
		}
		for _, r := range rows {
			literal = append(literal, entities.ScoredRow[entities.ProcedureCode]{Row: r.entity(), Score: ranking.LiteralMatchScore})
		}
	}

	terms := keywords.SearchTerms()
	if len(terms) == 0 || len(literal) >= limit {
		return ranking.Top(literal, ranking.ProcedureKey, limit), nil
	}

	inner := a.db.From(procedureTable).Select(append(append([]interface{}{}, procedureColumns...),
		scoreExpression(ranking.EntityProcedure, terms).As("score"))...)
	var rows []procedureRow
	if err := a.selectRows(ctx, "procedure_search", a.rankedQuery(inner, "code", limit+len(literal)), &rows); err != nil {
		return nil, err
	}

	fuzzy := make([]entities.ScoredRow[entities.ProcedureCode], 0, len(rows))
	for _, r := range rows {
		fuzzy = append(fuzzy, entities.ScoredRow[entities.ProcedureCode]{Row: r.entity(), Score: r.Score})
	}
	return ranking.MergeLiteral(literal, fuzzy, ranking.ProcedureKey, limit), nil
}

func (a *MedicalCodeAdapter) mappingSelect() *goqu.SelectDataset {
	return a.db.From(goqu.T(mappingTable).As("m")).
		LeftJoin(goqu.T(diagnosisTable).As("d"), goqu.On(goqu.I("d.code").Eq(goqu.I("m.diagnosis_code")))).
		LeftJoin(goqu.T(procedureTable).As("p"), goqu.On(goqu.I("p.code").Eq(goqu.I("m.procedure_code"))))
}

var mappingColumns = []interface{}{
	goqu.I("m.diagnosis_code"),
	goqu.I("m.procedure_code"),
	goqu.I("m.appropriateness"),
	goqu.I("m.evidence_strength"),
	goqu.I("m.specialty_relevance"),
	goqu.I("m.patient_factor"),
	goqu.I("m.justification"),
	goqu.I("m.evidence"),
	goqu.I("d.description").As("diagnosis_description"),
	goqu.I("p.description").As("procedure_description"),
}

// GetMappingsFor returns every mapping for the diagnosis codes. Text
// relevance is computed in SQL; the composite score is added here so it is
// always derived from the stored factors.
func (a *MedicalCodeAdapter) GetMappingsFor(ctx context.Context, diagnosisCodes []string, keywords entities.CategorizedKeywords) ([]entities.ScoredRow[entities.Mapping], error) {
	if len(diagnosisCodes) == 0 {
		return nil, nil
	}

	cols := append(append([]interface{}{}, mappingColumns...),
		scoreExpression(ranking.EntityMapping, keywords.SearchTerms()).As("score"))
	ds := a.mappingSelect().Select(cols...).
		Where(goqu.I("m.diagnosis_code").In(upper(diagnosisCodes)))

	var rows []mappingRow
	if err := a.selectRows(ctx, "mapping_search", ds, &rows); err != nil {
		return nil, err
	}

	out := make([]entities.ScoredRow[entities.Mapping], 0, len(rows))
	for _, r := range rows {
		m := r.entity()
		out = append(out, entities.ScoredRow[entities.Mapping]{Row: m, Score: r.Score + m.CompositeScore()})
	}
	ranking.Sort(out, ranking.MappingKey)
	return out, nil
}

func (a *MedicalCodeAdapter) documentSelect() *goqu.SelectDataset {
	return a.db.From(goqu.T(documentTable).As("r")).
		LeftJoin(goqu.T(diagnosisTable).As("d"), goqu.On(goqu.I("d.code").Eq(goqu.I("r.diagnosis_code"))))
}

var documentColumns = []interface{}{
	goqu.I("r.id"),
	goqu.I("r.diagnosis_code"),
	goqu.I("r.title"),
	goqu.I("r.content"),
	goqu.I("d.description").As("diagnosis_description"),
}

// GetDocumentsFor returns reference documents for the diagnosis codes.
func (a *MedicalCodeAdapter) GetDocumentsFor(ctx context.Context, diagnosisCodes []string, keywords entities.CategorizedKeywords) ([]entities.ScoredRow[entities.ReferenceDocument], error) {
	if len(diagnosisCodes) == 0 {
		return nil, nil
	}

	cols := append(append([]interface{}{}, documentColumns...),
		scoreExpression(ranking.EntityDocument, keywords.SearchTerms()).As("score"))
	ds := a.documentSelect().Select(cols...).
		Where(goqu.I("r.diagnosis_code").In(upper(diagnosisCodes)))

	var rows []documentRow
	if err := a.selectRows(ctx, "document_search", ds, &rows); err != nil {
		return nil, err
	}

	out := make([]entities.ScoredRow[entities.ReferenceDocument], 0, len(rows))
	for _, r := range rows {
		out = append(out, entities.ScoredRow[entities.ReferenceDocument]{Row: r.entity(), Score: r.Score})
	}
	ranking.Sort(out, ranking.DocumentKey)
	return out, nil
}

// SearchRareConditions is the weighted substring fallback for the rare-condition registry.
func (a *MedicalCodeAdapter) SearchRareConditions(ctx context.Context, terms []string, limit int) ([]entities.ScoredRow[entities.RareCondition], error) {
	if len(terms) == 0 {
		return nil, nil
	}

	inner := a.db.From(rareConditionTable).Select("code", "name", "description", "symptoms",
		scoreExpression(ranking.EntityRareCondition, terms).As("score"))
	var rows []rareConditionRow
	if err := a.selectRows(ctx, "rare_condition_search", a.rankedQuery(inner, "code", limit), &rows); err != nil {
		return nil, err
	}

	out := make([]entities.ScoredRow[entities.RareCondition], 0, len(rows))
	for _, r := range rows {
		out = append(out, entities.ScoredRow[entities.RareCondition]{Row: r.entity(), Score: r.Score})
	}
	return out, nil
}

// SubstringSearch is the unweighted last resort: any code or description
// containing any term, ordered by code. Terms may include literal codes.
func (a *MedicalCodeAdapter) SubstringSearch(ctx context.Context, terms []string, limit int) (*repositories.SubstringResult, error) {
	result := &repositories.SubstringResult{}
	if len(terms) == 0 {
		return result, nil
	}

	anyTerm := func(cols ...string) exp.ExpressionList {
		ors := make([]exp.Expression, 0, len(terms)*len(cols))
		for _, term := range terms {
			for _, col := range cols {
				ors = append(ors, goqu.I(col).ILike(likePattern(term)))
			}
		}
		return goqu.Or(ors...)
	}

	var dx []diagnosisRow
	ds := a.db.From(diagnosisTable).Select(diagnosisColumns...).
		Where(anyTerm("code", "description")).Order(goqu.C("code").Asc()).Limit(uint(limit))
	if err := a.selectRows(ctx, "diagnosis_substring", ds, &dx); err != nil {
		return nil, err
	}
	for _, r := range dx {
		result.Diagnoses = append(result.Diagnoses, r.entity())
	}

	var px []procedureRow
	ds = a.db.From(procedureTable).Select(procedureColumns...).
		Where(anyTerm("code", "description")).Order(goqu.C("code").Asc()).Limit(uint(limit))
	if err := a.selectRows(ctx, "procedure_substring", ds, &px); err != nil {
		return nil, err
	}
	for _, r := range px {
		result.Procedures = append(result.Procedures, r.entity())
	}

	if len(result.Diagnoses) == 0 {
		return result, nil
	}
	codes := make([]string, 0, substringMappingCodes)
	for _, d := range result.Diagnoses {
		if len(codes) == substringMappingCodes {
			break
		}
		codes = append(codes, d.Code)
	}

	var maps []mappingRow
	ds = a.mappingSelect().Select(mappingColumns...).
		Where(goqu.I("m.diagnosis_code").In(codes)).
		Order(goqu.I("m.appropriateness").Desc(), goqu.I("m.diagnosis_code").Asc(), goqu.I("m.procedure_code").Asc()).
		Limit(uint(limit))
	if err := a.selectRows(ctx, "mapping_substring", ds, &maps); err != nil {
		return nil, err
	}
	for _, r := range maps {
		result.Mappings = append(result.Mappings, r.entity())
	}
	return result, nil
}

func upper(codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = entities.NormalizeDiagnosisCode(c)
	}
	return out
}
