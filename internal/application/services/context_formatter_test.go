package services_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/application/services"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
)

func TestFormatContext_EmptySectionsKeepHeadings(t *testing.T) {
	text := services.FormatContext(services.ContextSections{}, 0)

	expected := strings.Join([]string{
		"=== DIAGNOSIS CODES ===",
		"No diagnosis codes found.",
		"",
		"=== PROCEDURE CODES ===",
		"No procedure codes found.",
		"",
		"=== APPROPRIATENESS MAPPINGS ===",
		"No appropriateness mappings found.",
		"",
		"=== REFERENCE EXCERPTS ===",
		"No reference excerpts found.",
	}, "\n")
	assert.Equal(t, expected, text)
}

func TestFormatContext_Rows(t *testing.T) {
	sections := services.ContextSections{
		Scored: true,
		Diagnoses: []entities.ScoredRow[entities.DiagnosisCode]{{
			Row:   entities.DiagnosisCode{Code: "R10.13", Description: "Right upper quadrant pain", ImagingModalities: []string{"ultrasound"}, PrimaryImaging: true},
			Score: 13,
		}},
		Procedures: []entities.ScoredRow[entities.ProcedureCode]{{
			Row:   entities.ProcedureCode{Code: "76700", Description: "Ultrasound, abdominal, complete", Modality: "ultrasound", BodyPart: "abdomen"},
			Score: 8,
		}},
		Mappings: []entities.ScoredRow[entities.Mapping]{{
			Row: entities.Mapping{DiagnosisCode: "R10.13", ProcedureCode: "76700", Appropriateness: 9, EvidenceStrength: 7, SpecialtyRelevance: 8, PatientFactor: 5, Justification: "First line"},
		}},
		Documents: []entities.ScoredRow[entities.ReferenceDocument]{{
			Row: entities.ReferenceDocument{DiagnosisCode: "R10.13", Title: "RUQ imaging", Content: strings.Repeat("x", 40)},
		}},
	}

	text := services.FormatContext(sections, 10)
	assert.Contains(t, text, "- R10.13: Right upper quadrant pain [score 13.0]\n  Imaging: ultrasound (primary)")
	assert.Contains(t, text, "- 76700: Ultrasound, abdominal, complete (ultrasound, abdomen) [score 8.0]")
	assert.Contains(t, text, "- R10.13 -> 76700: appropriateness 9/9, composite 7.80\n  Justification: First line")
	assert.Contains(t, text, "- [R10.13] RUQ imaging\n  xxxxxxxxxx...")
	assert.NotContains(t, text, "found.")
}
