package services

import (
	"fmt"
	"strings"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
)

// Sentinels returned instead of an empty context block.
const (
	NoContextSentinel = "No clinical reference context available: no usable keywords were provided."
	ErrorSentinel     = "Clinical reference context could not be retrieved. Proceed without reference data and flag the order for manual review."
)

// Section headings, in output order.
const (
	SectionDiagnoses  = "DIAGNOSIS CODES"
	SectionProcedures = "PROCEDURE CODES"
	SectionMappings   = "APPROPRIATENESS MAPPINGS"
	SectionDocuments  = "REFERENCE EXCERPTS"
)

// ContextSections is the retrieved material before formatting. Scored is
// false for the unweighted substring path, whose rows carry no score.
type ContextSections struct {
	Diagnoses  []entities.ScoredRow[entities.DiagnosisCode]
	Procedures []entities.ScoredRow[entities.ProcedureCode]
	Mappings   []entities.ScoredRow[entities.Mapping]
	Documents  []entities.ScoredRow[entities.ReferenceDocument]
	Scored     bool
}

// HasCodes reports whether any diagnosis or procedure was found.
func (s ContextSections) HasCodes() bool {
	return len(s.Diagnoses) > 0 || len(s.Procedures) > 0
}

// sectionsFromSubstring wraps unscored substring matches.
func sectionsFromSubstring(diagnoses []entities.DiagnosisCode, procedures []entities.ProcedureCode, mappings []entities.Mapping) ContextSections {
	var s ContextSections
	for _, d := range diagnoses {
		s.Diagnoses = append(s.Diagnoses, entities.ScoredRow[entities.DiagnosisCode]{Row: d})
	}
	for _, p := range procedures {
		s.Procedures = append(s.Procedures, entities.ScoredRow[entities.ProcedureCode]{Row: p})
	}
	for _, m := range mappings {
		s.Mappings = append(s.Mappings, entities.ScoredRow[entities.Mapping]{Row: m})
	}
	return s
}

// FormatContext renders the four sections in fixed order. An empty section
// is replaced by a "No ... found." line, never omitted.
func FormatContext(s ContextSections, previewLength int) string {
	var b strings.Builder

	writeSection(&b, SectionDiagnoses, len(s.Diagnoses), func() {
		for _, r := range s.Diagnoses {
			d := r.Row
			fmt.Fprintf(&b, "- %s: %s", d.Code, d.Description)
			writeScore(&b, s.Scored, r.Score)
			b.WriteString("\n")
			if len(d.ImagingModalities) > 0 {
				fmt.Fprintf(&b, "  Imaging: %s", strings.Join(d.ImagingModalities, ", "))
				if d.PrimaryImaging {
					b.WriteString(" (primary)")
				}
				b.WriteString("\n")
			}
			if d.ClinicalNotes != "" {
				fmt.Fprintf(&b, "  Notes: %s\n", d.ClinicalNotes)
			}
		}
	})

	writeSection(&b, SectionProcedures, len(s.Procedures), func() {
		for _, r := range s.Procedures {
			p := r.Row
			fmt.Fprintf(&b, "- %s: %s", p.Code, p.Description)
			if attrs := joinNonEmpty(p.Modality, p.BodyPart); attrs != "" {
				fmt.Fprintf(&b, " (%s)", attrs)
			}
			writeScore(&b, s.Scored, r.Score)
			b.WriteString("\n")
		}
	})

	writeSection(&b, SectionMappings, len(s.Mappings), func() {
		for _, r := range s.Mappings {
			m := r.Row
			fmt.Fprintf(&b, "- %s -> %s: appropriateness %.0f/%d, composite %.2f\n",
				m.DiagnosisCode, m.ProcedureCode, m.Appropriateness, entities.MaxAppropriateness, m.CompositeScore())
			if m.Justification != "" {
				fmt.Fprintf(&b, "  Justification: %s\n", m.Justification)
			}
			if m.Evidence != "" {
				fmt.Fprintf(&b, "  Evidence: %s\n", m.Evidence)
			}
		}
	})

	writeSection(&b, SectionDocuments, len(s.Documents), func() {
		for _, r := range s.Documents {
			d := r.Row
			title := d.Title
			if title == "" {
				title = d.DiagnosisDescription
			}
			fmt.Fprintf(&b, "- [%s] %s\n  %s\n", d.DiagnosisCode, title, d.Preview(previewLength))
		}
	})

	return strings.TrimRight(b.String(), "\n")
}

func writeSection(b *strings.Builder, heading string, n int, body func()) {
	fmt.Fprintf(b, "=== %s ===\n", heading)
	if n == 0 {
		fmt.Fprintf(b, "No %s found.\n", strings.ToLower(heading))
	} else {
		body()
	}
	b.WriteString("\n")
}

func writeScore(b *strings.Builder, scored bool, score float64) {
	if scored {
		fmt.Fprintf(b, " [score %.1f]", score)
	}
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}
