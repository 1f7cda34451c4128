package entities

import (
	"regexp"
	"strings"
)

// cptPattern matches five-digit CPT codes and category II/III codes (e.g. 0042T).
var cptPattern = regexp.MustCompile(`^([0-9]{5}|[0-9]{4}[FT])$`)

// ProcedureCode is a CPT reference row.
type ProcedureCode struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Modality    string `json:"modality,omitempty"`
	BodyPart    string `json:"body_part,omitempty"`
}

// IsProcedureCode reports whether s is a well-formed CPT code.
func IsProcedureCode(s string) bool {
	return cptPattern.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}
