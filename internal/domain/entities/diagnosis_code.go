package entities

import (
	"regexp"
	"strings"
)

// icd10Pattern matches ICD-10-CM codes such as R10.13, M54.5 or S72.001A.
var icd10Pattern = regexp.MustCompile(`^[A-TV-Z][0-9][0-9A-Z](\.[0-9A-Z]{1,4})?$`)

// DiagnosisCode is an ICD-10 reference row. Loaded offline, read-only at runtime.
type DiagnosisCode struct {
	Code              string   `json:"code"`
	Description       string   `json:"description"`
	ClinicalNotes     string   `json:"clinical_notes,omitempty"`
	ImagingModalities []string `json:"imaging_modalities,omitempty"`
	PrimaryImaging    bool     `json:"primary_imaging"`
	Keywords          []string `json:"keywords,omitempty"`
}

// IsDiagnosisCode reports whether s is a well-formed ICD-10 code.
func IsDiagnosisCode(s string) bool {
	return icd10Pattern.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}

// NormalizeDiagnosisCode upper-cases and trims a code for key lookups.
func NormalizeDiagnosisCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
