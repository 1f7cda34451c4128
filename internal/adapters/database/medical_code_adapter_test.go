package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/doug-martin/goqu/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/ranking"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/zatekoja/Clinicalordervalidation/backend/pkg/errors"
)

func setupMockAdapter(t *testing.T) (*MedicalCodeAdapter, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewMedicalCodeAdapter(postgres.NewFromDB(mockDB)), mock
}

var diagnosisRowColumns = []string{"code", "description", "clinical_notes", "imaging_modalities", "primary_imaging", "keywords", "score"}

func TestScoreExpression(t *testing.T) {
	query, args, err := goqu.Dialect("postgres").From(diagnosisTable).
		Select(scoreExpression(ranking.EntityDiagnosis, []string{"pain"}).As("score")).
		Prepared(true).ToSQL()
	require.NoError(t, err)

	assert.Contains(t, query, `CASE WHEN "description" ILIKE $1 THEN 5.0 ELSE 0 END`)
	assert.Contains(t, query, `CASE WHEN "clinical_notes" ILIKE $2 THEN 2.0 ELSE 0 END`)
	assert.Contains(t, query, `CASE WHEN array_to_string(keywords, ' ') ILIKE $3 THEN 3.0 ELSE 0 END`)
	assert.Equal(t, []interface{}{"%pain%", "%pain%", "%pain%"}, args)
}

func TestScoreExpression_NoTerms(t *testing.T) {
	query, _, err := goqu.Dialect("postgres").From(diagnosisTable).
		Select(scoreExpression(ranking.EntityDiagnosis, nil).As("score")).ToSQL()
	require.NoError(t, err)
	assert.Contains(t, query, `0 AS "score"`)
}

func TestLikePatternEscapesMetacharacters(t *testing.T) {
	assert.Equal(t, `%50\%%`, likePattern("50%"))
	assert.Equal(t, `%t\_1%`, likePattern("t_1"))
	assert.Equal(t, `%a\\b%`, likePattern(`a\b`))
}

func TestSearchDiagnoses_Weighted(t *testing.T) {
	adapter, mock := setupMockAdapter(t)

	mock.ExpectQuery(`(?s)FROM \(SELECT .*ILIKE.*FROM "diagnosis_codes"\) AS "ranked" WHERE \("score" > .*ORDER BY "score" DESC, "code" ASC`).
		WillReturnRows(sqlmock.NewRows(diagnosisRowColumns).
			AddRow("R10.9", "Unspecified abdominal pain", nil, "{}", false, `{"abdominal pain"}`, 16.0).
			AddRow("R10.13", "Epigastric pain", "Abdominal ultrasound is first line", "{ultrasound}", true, `{"abdominal pain"}`, 13.0))

	rows, err := adapter.SearchDiagnoses(context.Background(), entities.CategorizeKeywords([]string{"abdominal", "pain"}), 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "R10.9", rows[0].Row.Code)
	assert.Equal(t, 16.0, rows[0].Score)
	assert.Equal(t, []string{"abdominal pain"}, rows[0].Row.Keywords)
	assert.Nil(t, rows[0].Row.ImagingModalities)
	assert.Equal(t, []string{"ultrasound"}, rows[1].Row.ImagingModalities)
	assert.True(t, rows[1].Row.PrimaryImaging)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchDiagnoses_LiteralThenFuzzy(t *testing.T) {
	adapter, mock := setupMockAdapter(t)

	mock.ExpectQuery(`FROM "diagnosis_codes" WHERE \("code" IN \(\$1\)\)`).
		WithArgs("K80.20").
		WillReturnRows(sqlmock.NewRows(diagnosisRowColumns[:6]).
			AddRow("K80.20", "Calculus of gallbladder", nil, nil, nil, nil))
	mock.ExpectQuery(`AS "ranked"`).
		WillReturnRows(sqlmock.NewRows(diagnosisRowColumns).
			AddRow("K80.20", "Calculus of gallbladder", nil, nil, nil, nil, 5.0).
			AddRow("R10.13", "Epigastric pain", nil, nil, nil, nil, 5.0))

	rows, err := adapter.SearchDiagnoses(context.Background(), entities.CategorizeKeywords([]string{"K80.20", "gallbladder"}), 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "K80.20", rows[0].Row.Code)
	assert.Equal(t, ranking.LiteralMatchScore, rows[0].Score)
	assert.Equal(t, "R10.13", rows[1].Row.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchProcedures_FailureIsInternal(t *testing.T) {
	adapter, mock := setupMockAdapter(t)
	mock.ExpectQuery(`FROM "procedure_codes"`).WillReturnError(errors.New("connection refused"))

	_, err := adapter.SearchProcedures(context.Background(), entities.CategorizeKeywords([]string{"ultrasound"}), 10)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInternal))
	assert.NotErrorIs(t, err, apperrors.ErrSearchUnavailable)
}

func TestGetMappingsFor_AddsCompositeScore(t *testing.T) {
	adapter, mock := setupMockAdapter(t)

	cols := []string{"diagnosis_code", "procedure_code", "appropriateness", "evidence_strength", "specialty_relevance",
		"patient_factor", "justification", "evidence", "diagnosis_description", "procedure_description", "score"}
	mock.ExpectQuery(`(?s)FROM "code_mappings" AS "m" LEFT JOIN "diagnosis_codes" AS "d".*WHERE \("m"\."diagnosis_code" IN \(`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("R10.13", "74177", 6.0, 6.0, 5.0, 5.0, "CT when ultrasound is nondiagnostic", nil, "Epigastric pain", "CT abdomen", 5.0).
			AddRow("R10.13", "76700", 9.0, 8.0, 8.0, 5.0, "Ultrasound first line", nil, "Epigastric pain", "US abdomen", 5.0))

	rows, err := adapter.GetMappingsFor(context.Background(), []string{"r10.13"}, entities.CategorizeKeywords([]string{"ultrasound"}))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "76700", rows[0].Row.ProcedureCode)
	assert.InDelta(t, 13.1, rows[0].Score, 1e-9)
	assert.InDelta(t, 10.7, rows[1].Score, 1e-9)
	assert.Equal(t, "US abdomen", rows[0].Row.ProcedureDescription)
}

func TestSubstringSearch(t *testing.T) {
	adapter, mock := setupMockAdapter(t)

	mock.ExpectQuery(`FROM "diagnosis_codes" WHERE \(\("code" ILIKE \$1\) OR \("description" ILIKE \$2\) OR \("code" ILIKE \$3\) OR \("description" ILIKE \$4\)\)`).
		WillReturnRows(sqlmock.NewRows(diagnosisRowColumns[:6]).AddRow("M25.561", "Pain in right knee", nil, nil, nil, nil))
	mock.ExpectQuery(`FROM "procedure_codes"`).
		WillReturnRows(sqlmock.NewRows([]string{"code", "description", "modality", "body_part"}).AddRow("73721", "MRI knee", "mri", "knee"))
	mock.ExpectQuery(`FROM "code_mappings"`).
		WillReturnRows(sqlmock.NewRows([]string{"diagnosis_code", "procedure_code", "appropriateness"}).AddRow("M25.561", "73721", 8.0))

	res, err := adapter.SubstringSearch(context.Background(), []string{"knee", "swelling"}, 5)
	require.NoError(t, err)
	require.Len(t, res.Diagnoses, 1)
	require.Len(t, res.Procedures, 1)
	require.Len(t, res.Mappings, 1)
	assert.Equal(t, "73721", res.Mappings[0].ProcedureCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubstringSearch_MatchesLiteralCodes(t *testing.T) {
	adapter, mock := setupMockAdapter(t)

	mock.ExpectQuery(`FROM "diagnosis_codes" WHERE \(\("code" ILIKE \$1\) OR \("description" ILIKE \$2\)\)`).
		WithArgs("%R10.13%", "%R10.13%", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(diagnosisRowColumns[:6]).AddRow("R10.13", "Epigastric pain", nil, nil, nil, nil))
	mock.ExpectQuery(`FROM "procedure_codes" WHERE \(\("code" ILIKE \$1\) OR \("description" ILIKE \$2\)\)`).
		WillReturnRows(sqlmock.NewRows([]string{"code", "description", "modality", "body_part"}))
	mock.ExpectQuery(`FROM "code_mappings"`).
		WillReturnRows(sqlmock.NewRows([]string{"diagnosis_code", "procedure_code", "appropriateness"}).AddRow("R10.13", "76700", 9.0))

	res, err := adapter.SubstringSearch(context.Background(), []string{"R10.13"}, 5)
	require.NoError(t, err)
	require.Len(t, res.Diagnoses, 1)
	assert.Equal(t, "R10.13", res.Diagnoses[0].Code)
	assert.Empty(t, res.Procedures)
	require.Len(t, res.Mappings, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchRareConditions(t *testing.T) {
	adapter, mock := setupMockAdapter(t)
	mock.ExpectQuery(`FROM "rare_conditions"`).
		WillReturnRows(sqlmock.NewRows([]string{"code", "name", "description", "symptoms", "score"}).
			AddRow("Q79.6", "Ehlers-Danlos syndrome", "Connective tissue disorder", "joint hypermobility", 3.0))

	rows, err := adapter.SearchRareConditions(context.Background(), []string{"hypermobility"}, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Q79.6", rows[0].Row.Code)
	assert.Equal(t, 3.0, rows[0].Score)
}

func TestStreamDiagnosisCodes_KeysetPagination(t *testing.T) {
	adapter, mock := setupMockAdapter(t)
	cols := diagnosisRowColumns[:6]

	mock.ExpectQuery(`FROM "diagnosis_codes" ORDER BY "code" ASC LIMIT`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("A00.0", "Cholera", nil, nil, nil, nil).
			AddRow("K80.20", "Calculus of gallbladder", nil, nil, nil, nil))
	mock.ExpectQuery(`WHERE \("code" > \$1\) ORDER BY "code" ASC`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("R10.13", "Epigastric pain", nil, nil, nil, nil))

	var batches [][]string
	err := adapter.StreamDiagnosisCodes(context.Background(), 2, func(batch []entities.DiagnosisCode) error {
		codes := []string{}
		for _, d := range batch {
			codes = append(codes, d.Code)
		}
		batches = append(batches, codes)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A00.0", "K80.20"}, {"R10.13"}}, batches)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStreamMappings_StopsOnCallbackError(t *testing.T) {
	adapter, mock := setupMockAdapter(t)
	mock.ExpectQuery(`FROM "code_mappings"`).
		WillReturnRows(sqlmock.NewRows([]string{"diagnosis_code", "procedure_code", "appropriateness"}).
			AddRow("R10.13", "76700", 9.0))

	boom := errors.New("pipeline down")
	err := adapter.StreamMappings(context.Background(), 1, func([]entities.Mapping) error { return boom })
	assert.ErrorIs(t, err, boom)
}
