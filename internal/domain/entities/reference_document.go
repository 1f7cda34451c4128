package entities

import "strings"

// DefaultPreviewLength bounds reference excerpts in the assembled context.
const DefaultPreviewLength = 500

// ReferenceDocument holds long-form guidance keyed by diagnosis code.
type ReferenceDocument struct {
	ID                   int64  `json:"id,omitempty"`
	DiagnosisCode        string `json:"diagnosis_code"`
	Title                string `json:"title,omitempty"`
	Content              string `json:"content"`
	DiagnosisDescription string `json:"diagnosis_description,omitempty"`
}

// Preview returns at most n runes of the content, ellipsised when cut.
func (d ReferenceDocument) Preview(n int) string {
	if n <= 0 {
		n = DefaultPreviewLength
	}
	content := strings.TrimSpace(d.Content)
	runes := []rune(content)
	if len(runes) <= n {
		return content
	}
	return strings.TrimSpace(string(runes[:n])) + "..."
}
