package cache

import (
	"time"

	"github.com/zatekoja/Clinicalordervalidation/backend/pkg/config"
)

// NoExpiration marks warm-up writes that live until explicitly invalidated.
const NoExpiration time.Duration = 0

// TTLPolicy is the expiration tier per cached entity type. Immutable code
// lookups live longest; derived result sets are cheap to recompute.
type TTLPolicy struct {
	CodeLookup   time.Duration
	SearchResult time.Duration
	MappingSet   time.Duration
	Document     time.Duration
	Embedding    time.Duration
	Warmup       time.Duration
}

// DefaultTTLPolicy returns the standard tiers.
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		CodeLookup:   24 * time.Hour,
		SearchResult: 5 * time.Minute,
		MappingSet:   time.Hour,
		Document:     6 * time.Hour,
		Embedding:    24 * time.Hour,
		Warmup:       NoExpiration,
	}
}

// TTLPolicyFromConfig overlays configured tiers on the defaults.
func TTLPolicyFromConfig(cfg config.EngineConfig) TTLPolicy {
	p := DefaultTTLPolicy()
	if cfg.CodeLookupTTL > 0 {
		p.CodeLookup = cfg.CodeLookupTTL
	}
	if cfg.SearchResultTTL > 0 {
		p.SearchResult = cfg.SearchResultTTL
	}
	if cfg.MappingSetTTL > 0 {
		p.MappingSet = cfg.MappingSetTTL
	}
	if cfg.DocumentTTL > 0 {
		p.Document = cfg.DocumentTTL
	}
	return p
}

func ttlSeconds(ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}
	secs := int(ttl / time.Second)
	if secs == 0 {
		secs = 1
	}
	return secs
}
