package entities

import (
	"strings"
	"unicode/utf8"
)

// MinTermLength drops noise terms such as "of" or "a".
const MinTermLength = 3

// CategorizedKeywords groups extracted keywords by the role they play when
// shaping queries. Ephemeral, carries no identity.
type CategorizedKeywords struct {
	AnatomyTerms []string `json:"anatomy_terms,omitempty"`
	Modalities   []string `json:"modalities,omitempty"`
	Symptoms     []string `json:"symptoms,omitempty"`
	LiteralCodes []string `json:"literal_codes,omitempty"`
}

// modalityAliases expands short modality abbreviations that would otherwise
// be discarded as noise.
var modalityAliases = map[string]string{
	"ct":    "computed tomography",
	"mr":    "mri",
	"us":    "ultrasound",
	"xr":    "x-ray",
	"xray":  "x-ray",
	"echo":  "echocardiography",
	"sono":  "ultrasound",
	"mammo": "mammography",
}

var modalityTerms = map[string]struct{}{
	"computed tomography": {}, "tomography": {}, "mri": {}, "magnetic resonance": {},
	"ultrasound": {}, "sonography": {}, "x-ray": {}, "radiograph": {}, "radiography": {},
	"pet": {}, "mammography": {}, "fluoroscopy": {}, "echocardiography": {},
	"angiography": {}, "doppler": {}, "nuclear": {}, "scintigraphy": {}, "dexa": {},
	"imaging": {},
}

var anatomyTerms = map[string]struct{}{
	"abdomen": {}, "abdominal": {}, "pelvis": {}, "pelvic": {}, "chest": {}, "thorax": {},
	"thoracic": {}, "head": {}, "brain": {}, "cranial": {}, "neck": {}, "cervical": {},
	"spine": {}, "spinal": {}, "lumbar": {}, "knee": {}, "shoulder": {}, "hip": {},
	"ankle": {}, "wrist": {}, "elbow": {}, "hand": {}, "foot": {}, "liver": {},
	"kidney": {}, "renal": {}, "gallbladder": {}, "pancreas": {}, "heart": {},
	"cardiac": {}, "lung": {}, "pulmonary": {}, "breast": {}, "thyroid": {},
	"bladder": {}, "prostate": {}, "uterus": {}, "ovary": {}, "bowel": {}, "colon": {},
	"sinus": {}, "orbit": {}, "extremity": {}, "quadrant": {},
}

// CategorizeKeywords normalises and groups an ordered keyword list.
// Input order is preserved within each group; duplicates are dropped.
func CategorizeKeywords(keywords []string) CategorizedKeywords {
	var out CategorizedKeywords
	seen := make(map[string]struct{}, len(keywords))

	for _, raw := range keywords {
		term := strings.ToLower(strings.Join(strings.Fields(raw), " "))
		if term == "" {
			continue
		}

		if IsDiagnosisCode(term) || IsProcedureCode(term) {
			code := strings.ToUpper(term)
			if _, dup := seen[code]; !dup {
				seen[code] = struct{}{}
				out.LiteralCodes = append(out.LiteralCodes, code)
			}
			continue
		}

		if alias, ok := modalityAliases[term]; ok {
			term = alias
		}
		if utf8.RuneCountInString(term) < MinTermLength {
			continue
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		switch {
		case isModality(term):
			out.Modalities = append(out.Modalities, term)
		case isAnatomy(term):
			out.AnatomyTerms = append(out.AnatomyTerms, term)
		default:
			out.Symptoms = append(out.Symptoms, term)
		}
	}

	return out
}

func isModality(term string) bool {
	_, ok := modalityTerms[term]
	return ok
}

func isAnatomy(term string) bool {
	_, ok := anatomyTerms[term]
	return ok
}

// SearchTerms returns the fuzzy search terms: anatomy, then symptoms, then modalities.
func (k CategorizedKeywords) SearchTerms() []string {
	terms := make([]string, 0, len(k.AnatomyTerms)+len(k.Symptoms)+len(k.Modalities))
	terms = append(terms, k.AnatomyTerms...)
	terms = append(terms, k.Symptoms...)
	terms = append(terms, k.Modalities...)
	return terms
}

// DiagnosisCodes returns the literal ICD-10 codes.
func (k CategorizedKeywords) DiagnosisCodes() []string {
	var codes []string
	for _, c := range k.LiteralCodes {
		if IsDiagnosisCode(c) {
			codes = append(codes, c)
		}
	}
	return codes
}

// ProcedureCodes returns the literal CPT codes.
func (k CategorizedKeywords) ProcedureCodes() []string {
	var codes []string
	for _, c := range k.LiteralCodes {
		if IsProcedureCode(c) {
			codes = append(codes, c)
		}
	}
	return codes
}

// IsEmpty reports whether nothing usable survived categorisation.
func (k CategorizedKeywords) IsEmpty() bool {
	return len(k.AnatomyTerms) == 0 && len(k.Modalities) == 0 &&
		len(k.Symptoms) == 0 && len(k.LiteralCodes) == 0
}
