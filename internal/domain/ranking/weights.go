// Package ranking owns the field-weight table shared by the search-index
// client and the relational fallback. Both paths score a row as
//
//	sum over (field, term) of weight(field) if lower(field) contains lower(term)
//
// which is what the SQL form CASE WHEN field ILIKE '%term%' THEN weight ELSE 0 END
// computes, so the two paths order rows identically for the same data.
package ranking

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
)

// Entity names a scored row type.
type Entity string

const (
	EntityDiagnosis     Entity = "diagnosis"
	EntityProcedure     Entity = "procedure"
	EntityMapping       Entity = "mapping"
	EntityDocument      Entity = "document"
	EntityRareCondition Entity = "rare_condition"
)

// Field names double as Postgres column names and Typesense document fields.
const (
	FieldDescription          = "description"
	FieldClinicalNotes        = "clinical_notes"
	FieldKeywords             = "keywords"
	FieldBodyPart             = "body_part"
	FieldModality             = "modality"
	FieldJustification        = "justification"
	FieldEvidence             = "evidence"
	FieldDiagnosisDescription = "diagnosis_description"
	FieldProcedureDescription = "procedure_description"
	FieldContent              = "content"
	FieldSymptoms             = "symptoms"
)

// LiteralMatchScore ranks a direct code hit above any fuzzy score.
const LiteralMatchScore = 1000.0

// FieldWeight is one row of the weight table.
type FieldWeight struct {
	Field  string
	Weight float64
}

var weightTable = map[Entity][]FieldWeight{
	EntityDiagnosis: {
		{FieldDescription, 5.0},
		{FieldClinicalNotes, 2.0},
		{FieldKeywords, 3.0},
	},
	EntityProcedure: {
		{FieldDescription, 5.0},
		{FieldBodyPart, 3.0},
		{FieldModality, 3.0},
	},
	EntityMapping: {
		{FieldJustification, 5.0},
		{FieldEvidence, 2.0},
		{FieldDiagnosisDescription, 3.0},
		{FieldProcedureDescription, 3.0},
	},
	EntityDocument: {
		{FieldContent, 5.0},
		{FieldDiagnosisDescription, 3.0},
	},
	EntityRareCondition: {
		{FieldDescription, 5.0},
		{FieldSymptoms, 3.0},
	},
}

// Weights returns a copy of the table rows for entity, in table order.
func Weights(entity Entity) []FieldWeight {
	rows := weightTable[entity]
	out := make([]FieldWeight, len(rows))
	copy(out, rows)
	return out
}

// Score applies the weight table to already-extracted field text.
func Score(entity Entity, fields map[string]string, terms []string) float64 {
	var total float64
	for _, fw := range weightTable[entity] {
		text := strings.ToLower(fields[fw.Field])
		if text == "" {
			continue
		}
		for _, term := range terms {
			if term == "" {
				continue
			}
			if strings.Contains(text, strings.ToLower(term)) {
				total += fw.Weight
			}
		}
	}
	return total
}

// QueryBy returns Typesense query_by and query_by_weights parameters for
// entity. Typesense wants integer weights, so the table is scaled by ten.
func QueryBy(entity Entity) (string, string) {
	rows := weightTable[entity]
	fields := make([]string, len(rows))
	weights := make([]string, len(rows))
	for i, fw := range rows {
		fields[i] = fw.Field
		weights[i] = strconv.Itoa(int(fw.Weight * 10))
	}
	return strings.Join(fields, ","), strings.Join(weights, ",")
}

// DiagnosisFields extracts the scored text of a diagnosis row.
func DiagnosisFields(d entities.DiagnosisCode) map[string]string {
	return map[string]string{
		FieldDescription:   d.Description,
		FieldClinicalNotes: d.ClinicalNotes,
		FieldKeywords:      strings.Join(d.Keywords, " "),
	}
}

// ProcedureFields extracts the scored text of a procedure row.
func ProcedureFields(p entities.ProcedureCode) map[string]string {
	return map[string]string{
		FieldDescription: p.Description,
		FieldBodyPart:    p.BodyPart,
		FieldModality:    p.Modality,
	}
}

// MappingFields extracts the scored text of a mapping row.
func MappingFields(m entities.Mapping) map[string]string {
	return map[string]string{
		FieldJustification:        m.Justification,
		FieldEvidence:             m.Evidence,
		FieldDiagnosisDescription: m.DiagnosisDescription,
		FieldProcedureDescription: m.ProcedureDescription,
	}
}

// DocumentFields extracts the scored text of a reference document.
func DocumentFields(d entities.ReferenceDocument) map[string]string {
	return map[string]string{
		FieldContent:              d.Content,
		FieldDiagnosisDescription: d.DiagnosisDescription,
	}
}

// RareConditionFields extracts the scored text of a registry entry.
func RareConditionFields(r entities.RareCondition) map[string]string {
	return map[string]string{
		FieldDescription: r.Description,
		FieldSymptoms:    r.Symptoms,
	}
}

// ScoreDiagnosis scores a diagnosis row against terms.
func ScoreDiagnosis(d entities.DiagnosisCode, terms []string) float64 {
	return Score(EntityDiagnosis, DiagnosisFields(d), terms)
}

// ScoreProcedure scores a procedure row against terms.
func ScoreProcedure(p entities.ProcedureCode, terms []string) float64 {
	return Score(EntityProcedure, ProcedureFields(p), terms)
}

// ScoreMapping is text relevance plus the composite appropriateness score.
func ScoreMapping(m entities.Mapping, terms []string) float64 {
	return Score(EntityMapping, MappingFields(m), terms) + m.CompositeScore()
}

// ScoreDocument scores a reference document against terms.
func ScoreDocument(d entities.ReferenceDocument, terms []string) float64 {
	return Score(EntityDocument, DocumentFields(d), terms)
}

// Sort orders rows by descending score, breaking ties by ascending key.
func Sort[T any](rows []entities.ScoredRow[T], key func(T) string) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return key(rows[i].Row) < key(rows[j].Row)
	})
}

// Top sorts rows and truncates to limit (limit <= 0 keeps everything).
func Top[T any](rows []entities.ScoredRow[T], key func(T) string, limit int) []entities.ScoredRow[T] {
	Sort(rows, key)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// MergeLiteral puts literal code hits first and fills the remaining slots
// with fuzzy rows not already present.
func MergeLiteral[T any](literal, fuzzy []entities.ScoredRow[T], key func(T) string, limit int) []entities.ScoredRow[T] {
	out := Top(literal, key, 0)
	seen := make(map[string]struct{}, len(out))
	for _, r := range out {
		seen[key(r.Row)] = struct{}{}
	}
	for _, r := range fuzzy {
		if limit > 0 && len(out) >= limit {
			break
		}
		if _, dup := seen[key(r.Row)]; dup {
			continue
		}
		out = append(out, r)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CacheKey renders a deterministic key fragment for a term set and limit.
func CacheKey(terms []string, limit int) string {
	sorted := append([]string(nil), terms...)
	sort.Strings(sorted)
	return fmt.Sprintf("%s:%d", strings.Join(sorted, "+"), limit)
}

// DiagnosisKey, ProcedureKey, MappingKey and DocumentKey are tie-break keys.
func DiagnosisKey(d entities.DiagnosisCode) string { return d.Code }

func ProcedureKey(p entities.ProcedureCode) string { return p.Code }

func MappingKey(m entities.Mapping) string { return m.Key() }

func DocumentKey(d entities.ReferenceDocument) string { return d.DiagnosisCode + "|" + d.Title }

func RareConditionKey(r entities.RareCondition) string { return r.Code }
