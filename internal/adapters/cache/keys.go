package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/ranking"
)

// Key prefixes in the cache tier.
const (
	DiagnosisPrefix       = "dx:"
	ProcedurePrefix       = "px:"
	MappingPrefix         = "map:"
	DocumentPrefix        = "doc:"
	SearchPrefix          = "search:"
	EmbeddingPrefix       = "emb:"
	WarmupSentinelKey     = "warmup:complete"
	diagnosisSearchPrefix = SearchPrefix + "dx:"
	procedureSearchPrefix = SearchPrefix + "px:"
)

// WarmPrefixes are the key families written by the warm-up job.
var WarmPrefixes = []string{DiagnosisPrefix, ProcedurePrefix, MappingPrefix, DocumentPrefix}

func DiagnosisKey(code string) string { return DiagnosisPrefix + strings.ToUpper(code) }

func ProcedureKey(code string) string { return ProcedurePrefix + strings.ToUpper(code) }

// MappingKey names the hash of mappings for one diagnosis, one field per procedure code.
func MappingKey(diagnosisCode string) string { return MappingPrefix + strings.ToUpper(diagnosisCode) }

// DocumentKey names the reference documents cached for one diagnosis.
func DocumentKey(diagnosisCode string) string { return DocumentPrefix + strings.ToUpper(diagnosisCode) }

// DiagnosisSearchKey names a cached fuzzy diagnosis result set.
func DiagnosisSearchKey(terms []string, limit int) string {
	return diagnosisSearchPrefix + ranking.CacheKey(terms, limit)
}

// ProcedureSearchKey names a cached fuzzy procedure result set.
func ProcedureSearchKey(terms []string, limit int) string {
	return procedureSearchPrefix + ranking.CacheKey(terms, limit)
}

// EmbeddingKey names a cached embedding by a digest of its input text.
func EmbeddingKey(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return EmbeddingPrefix + hex.EncodeToString(sum[:])
}
