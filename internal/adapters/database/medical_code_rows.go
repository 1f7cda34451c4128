package database

import (
	"database/sql"

	"github.com/lib/pq"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
)

// Row shapes scanned by sqlx. Score is absent from streaming queries.

type diagnosisRow struct {
	Code              string         `db:"code"`
	Description       string         `db:"description"`
	ClinicalNotes     sql.NullString `db:"clinical_notes"`
	ImagingModalities pq.StringArray `db:"imaging_modalities"`
	PrimaryImaging    sql.NullBool   `db:"primary_imaging"`
	Keywords          pq.StringArray `db:"keywords"`
	Score             float64        `db:"score"`
}

func (r diagnosisRow) entity() entities.DiagnosisCode {
	return entities.DiagnosisCode{
		Code:              r.Code,
		Description:       r.Description,
		ClinicalNotes:     r.ClinicalNotes.String,
		ImagingModalities: emptyToNil(r.ImagingModalities),
		PrimaryImaging:    r.PrimaryImaging.Bool,
		Keywords:          emptyToNil(r.Keywords),
	}
}

type procedureRow struct {
	Code        string         `db:"code"`
	Description string         `db:"description"`
	Modality    sql.NullString `db:"modality"`
	BodyPart    sql.NullString `db:"body_part"`
	Score       float64        `db:"score"`
}

func (r procedureRow) entity() entities.ProcedureCode {
	return entities.ProcedureCode{
		Code:        r.Code,
		Description: r.Description,
		Modality:    r.Modality.String,
		BodyPart:    r.BodyPart.String,
	}
}

type mappingRow struct {
	DiagnosisCode        string          `db:"diagnosis_code"`
	ProcedureCode        string          `db:"procedure_code"`
	Appropriateness      float64         `db:"appropriateness"`
	EvidenceStrength     sql.NullFloat64 `db:"evidence_strength"`
	SpecialtyRelevance   sql.NullFloat64 `db:"specialty_relevance"`
	PatientFactor        sql.NullFloat64 `db:"patient_factor"`
	Justification        sql.NullString  `db:"justification"`
	Evidence             sql.NullString  `db:"evidence"`
	DiagnosisDescription sql.NullString  `db:"diagnosis_description"`
	ProcedureDescription sql.NullString  `db:"procedure_description"`
	Score                float64         `db:"score"`
}

func (r mappingRow) entity() entities.Mapping {
	return entities.Mapping{
		DiagnosisCode:        r.DiagnosisCode,
		ProcedureCode:        r.ProcedureCode,
		Appropriateness:      r.Appropriateness,
		EvidenceStrength:     r.EvidenceStrength.Float64,
		SpecialtyRelevance:   r.SpecialtyRelevance.Float64,
		PatientFactor:        r.PatientFactor.Float64,
		Justification:        r.Justification.String,
		Evidence:             r.Evidence.String,
		DiagnosisDescription: r.DiagnosisDescription.String,
		ProcedureDescription: r.ProcedureDescription.String,
	}
}

type documentRow struct {
	ID                   int64          `db:"id"`
	DiagnosisCode        string         `db:"diagnosis_code"`
	Title                sql.NullString `db:"title"`
	Content              string         `db:"content"`
	DiagnosisDescription sql.NullString `db:"diagnosis_description"`
	Score                float64        `db:"score"`
}

func (r documentRow) entity() entities.ReferenceDocument {
	return entities.ReferenceDocument{
		ID:                   r.ID,
		DiagnosisCode:        r.DiagnosisCode,
		Title:                r.Title.String,
		Content:              r.Content,
		DiagnosisDescription: r.DiagnosisDescription.String,
	}
}

type rareConditionRow struct {
	Code        string         `db:"code"`
	Name        string         `db:"name"`
	Description string         `db:"description"`
	Symptoms    sql.NullString `db:"symptoms"`
	Score       float64        `db:"score"`
}

func (r rareConditionRow) entity() entities.RareCondition {
	return entities.RareCondition{
		Code:        r.Code,
		Name:        r.Name,
		Description: r.Description,
		Symptoms:    r.Symptoms.String,
	}
}

func emptyToNil(a pq.StringArray) []string {
	if len(a) == 0 {
		return nil
	}
	return []string(a)
}
