package entities

import (
	"fmt"
	"math"
)

// Appropriateness bounds follow the 1-9 rating scale.
const (
	MinAppropriateness = 1
	MaxAppropriateness = 9
)

// Composite score factor weights. Changing these changes ranking on every path.
const (
	AppropriatenessWeight    = 0.40
	EvidenceStrengthWeight   = 0.30
	SpecialtyRelevanceWeight = 0.20
	PatientFactorWeight      = 0.10
)

// Mapping links a diagnosis to a procedure with an appropriateness rating.
type Mapping struct {
	DiagnosisCode        string  `json:"diagnosis_code"`
	ProcedureCode        string  `json:"procedure_code"`
	Appropriateness      float64 `json:"appropriateness"`
	EvidenceStrength     float64 `json:"evidence_strength"`
	SpecialtyRelevance   float64 `json:"specialty_relevance"`
	PatientFactor        float64 `json:"patient_factor"`
	Justification        string  `json:"justification,omitempty"`
	Evidence             string  `json:"evidence,omitempty"`
	DiagnosisDescription string  `json:"diagnosis_description,omitempty"`
	ProcedureDescription string  `json:"procedure_description,omitempty"`
}

// CompositeScore is recomputed from the four factors every time so that
// cached and relational rows always agree. Rounded to 4 decimals.
func (m Mapping) CompositeScore() float64 {
	raw := AppropriatenessWeight*m.Appropriateness +
		EvidenceStrengthWeight*m.EvidenceStrength +
		SpecialtyRelevanceWeight*m.SpecialtyRelevance +
		PatientFactorWeight*m.PatientFactor
	return math.Round(raw*1e4) / 1e4
}

// Key returns the composite identity "dx|px".
func (m Mapping) Key() string {
	return m.DiagnosisCode + "|" + m.ProcedureCode
}

// Validate checks the appropriateness bound.
func (m Mapping) Validate() error {
	if m.DiagnosisCode == "" || m.ProcedureCode == "" {
		return fmt.Errorf("mapping requires both diagnosis and procedure codes")
	}
	if m.Appropriateness < MinAppropriateness || m.Appropriateness > MaxAppropriateness {
		return fmt.Errorf("appropriateness %.1f outside %d-%d", m.Appropriateness, MinAppropriateness, MaxAppropriateness)
	}
	return nil
}
