package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
)

// Conversions between entities and Typesense documents. Field names match
// the ranking package so query_by and the scorer read the same text.

func DiagnosisDocument(d entities.DiagnosisCode) map[string]interface{} {
	return map[string]interface{}{
		"id":                 d.Code,
		"code":               d.Code,
		"description":        d.Description,
		"clinical_notes":     d.ClinicalNotes,
		"keywords":           nonNil(d.Keywords),
		"imaging_modalities": nonNil(d.ImagingModalities),
		"primary_imaging":    d.PrimaryImaging,
	}
}

func ProcedureDocument(p entities.ProcedureCode) map[string]interface{} {
	return map[string]interface{}{
		"id":          p.Code,
		"code":        p.Code,
		"description": p.Description,
		"modality":    p.Modality,
		"body_part":   p.BodyPart,
	}
}

func MappingDocument(m entities.Mapping) map[string]interface{} {
	return map[string]interface{}{
		"id":                    m.DiagnosisCode + "_" + m.ProcedureCode,
		"diagnosis_code":        m.DiagnosisCode,
		"procedure_code":        m.ProcedureCode,
		"justification":         m.Justification,
		"evidence":              m.Evidence,
		"diagnosis_description": m.DiagnosisDescription,
		"procedure_description": m.ProcedureDescription,
		"appropriateness":       m.Appropriateness,
		"evidence_strength":     m.EvidenceStrength,
		"specialty_relevance":   m.SpecialtyRelevance,
		"patient_factor":        m.PatientFactor,
	}
}

func ReferenceDocumentDocument(d entities.ReferenceDocument) map[string]interface{} {
	return map[string]interface{}{
		"id":                    fmt.Sprintf("%s_%d", d.DiagnosisCode, d.ID),
		"diagnosis_code":        d.DiagnosisCode,
		"title":                 d.Title,
		"content":               d.Content,
		"diagnosis_description": d.DiagnosisDescription,
	}
}

func RareConditionDocument(r entities.RareCondition) map[string]interface{} {
	doc := map[string]interface{}{
		"id":          r.Code,
		"code":        r.Code,
		"name":        r.Name,
		"description": r.Description,
		"symptoms":    r.Symptoms,
	}
	if len(r.Embedding) > 0 {
		doc["embedding"] = r.Embedding
	}
	return doc
}

func diagnosisFromDocument(doc map[string]interface{}) entities.DiagnosisCode {
	return entities.DiagnosisCode{
		Code:              str(doc, "code"),
		Description:       str(doc, "description"),
		ClinicalNotes:     str(doc, "clinical_notes"),
		ImagingModalities: strs(doc, "imaging_modalities"),
		PrimaryImaging:    boolean(doc, "primary_imaging"),
		Keywords:          strs(doc, "keywords"),
	}
}

func procedureFromDocument(doc map[string]interface{}) entities.ProcedureCode {
	return entities.ProcedureCode{
		Code:        str(doc, "code"),
		Description: str(doc, "description"),
		Modality:    str(doc, "modality"),
		BodyPart:    str(doc, "body_part"),
	}
}

func mappingFromDocument(doc map[string]interface{}) entities.Mapping {
	return entities.Mapping{
		DiagnosisCode:        str(doc, "diagnosis_code"),
		ProcedureCode:        str(doc, "procedure_code"),
		Appropriateness:      num(doc, "appropriateness"),
		EvidenceStrength:     num(doc, "evidence_strength"),
		SpecialtyRelevance:   num(doc, "specialty_relevance"),
		PatientFactor:        num(doc, "patient_factor"),
		Justification:        str(doc, "justification"),
		Evidence:             str(doc, "evidence"),
		DiagnosisDescription: str(doc, "diagnosis_description"),
		ProcedureDescription: str(doc, "procedure_description"),
	}
}

func referenceDocumentFromDocument(doc map[string]interface{}) entities.ReferenceDocument {
	d := entities.ReferenceDocument{
		DiagnosisCode:        str(doc, "diagnosis_code"),
		Title:                str(doc, "title"),
		Content:              str(doc, "content"),
		DiagnosisDescription: str(doc, "diagnosis_description"),
	}
	id := str(doc, "id")
	if i := strings.LastIndexByte(id, '_'); i >= 0 {
		d.ID, _ = strconv.ParseInt(id[i+1:], 10, 64)
	}
	return d
}

func rareConditionFromDocument(doc map[string]interface{}) entities.RareCondition {
	return entities.RareCondition{
		Code:        str(doc, "code"),
		Name:        str(doc, "name"),
		Description: str(doc, "description"),
		Symptoms:    str(doc, "symptoms"),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func str(doc map[string]interface{}, field string) string {
	if v, ok := doc[field].(string); ok {
		return v
	}
	return ""
}

func strs(doc map[string]interface{}, field string) []string {
	var out []string
	switch v := doc[field].(type) {
	case []string:
		out = append(out, v...)
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

func num(doc map[string]interface{}, field string) float64 {
	switch v := doc[field].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

func boolean(doc map[string]interface{}, field string) bool {
	v, _ := doc[field].(bool)
	return v
}
