package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/providers"
)

// StorageKind selects how a value is represented in the cache tier.
type StorageKind int

const (
	// KindScalar stores the JSON encoding as a plain string value.
	KindScalar StorageKind = iota
	// KindDocument stores the value as a RedisJSON document.
	KindDocument
	// KindHash stores a JSON object as a hash, one field per top-level member.
	KindHash
)

func (k StorageKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindDocument:
		return "document"
	case KindHash:
		return "hash"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// errNotObject is returned when a hash-kind value does not encode to a JSON object.
var errNotObject = errors.New("hash values must encode to a JSON object")

// strategy reads and writes JSON payloads for one storage kind. Every
// strategy speaks encoded JSON so the store decodes uniformly.
type strategy interface {
	get(ctx context.Context, p providers.CacheProvider, key string) ([]byte, error)
	bulkGet(ctx context.Context, p providers.CacheProvider, keys []string) (map[string][]byte, error)
	set(ctx context.Context, p providers.CacheProvider, key string, payload []byte, ttlSeconds int) error
	queue(b providers.WriteBatch, key string, payload []byte, ttlSeconds int) error
}

var strategies = map[StorageKind]strategy{
	KindScalar:   scalarStrategy{},
	KindDocument: documentStrategy{},
	KindHash:     hashStrategy{},
}

func strategyFor(kind StorageKind) strategy {
	if s, ok := strategies[kind]; ok {
		return s
	}
	return scalarStrategy{}
}

type scalarStrategy struct{}

func (scalarStrategy) get(ctx context.Context, p providers.CacheProvider, key string) ([]byte, error) {
	return p.Get(ctx, key)
}

func (scalarStrategy) bulkGet(ctx context.Context, p providers.CacheProvider, keys []string) (map[string][]byte, error) {
	return p.GetMulti(ctx, keys)
}

func (scalarStrategy) set(ctx context.Context, p providers.CacheProvider, key string, payload []byte, ttlSeconds int) error {
	return p.Set(ctx, key, payload, ttlSeconds)
}

func (scalarStrategy) queue(b providers.WriteBatch, key string, payload []byte, ttlSeconds int) error {
	b.Set(key, payload, ttlSeconds)
	return nil
}

type documentStrategy struct{}

func (documentStrategy) get(ctx context.Context, p providers.CacheProvider, key string) ([]byte, error) {
	return p.GetDocument(ctx, key)
}

func (documentStrategy) bulkGet(ctx context.Context, p providers.CacheProvider, keys []string) (map[string][]byte, error) {
	return p.GetDocuments(ctx, keys)
}

func (documentStrategy) set(ctx context.Context, p providers.CacheProvider, key string, payload []byte, ttlSeconds int) error {
	return p.SetDocument(ctx, key, payload, ttlSeconds)
}

func (documentStrategy) queue(b providers.WriteBatch, key string, payload []byte, ttlSeconds int) error {
	b.SetDocument(key, payload, ttlSeconds)
	return nil
}

type hashStrategy struct{}

func (hashStrategy) get(ctx context.Context, p providers.CacheProvider, key string) ([]byte, error) {
	fields, err := p.GetHash(ctx, key)
	if err != nil {
		return nil, err
	}
	payload, err := joinFields(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", providers.ErrCacheCorrupted, key, err)
	}
	return payload, nil
}

func (hashStrategy) bulkGet(ctx context.Context, p providers.CacheProvider, keys []string) (map[string][]byte, error) {
	hashes, err := p.GetHashes(ctx, keys)
	var corrupt *providers.CorruptedKeysError
	if err != nil && !errors.As(err, &corrupt) {
		return nil, err
	}
	var bad []string
	if corrupt != nil {
		bad = append(bad, corrupt.Keys...)
	}
	out := make(map[string][]byte, len(hashes))
	for key, fields := range hashes {
		payload, err := joinFields(fields)
		if err != nil {
			bad = append(bad, key)
			continue
		}
		out[key] = payload
	}
	if len(bad) > 0 {
		return out, &providers.CorruptedKeysError{Keys: bad}
	}
	return out, nil
}

func (hashStrategy) set(ctx context.Context, p providers.CacheProvider, key string, payload []byte, ttlSeconds int) error {
	fields, err := splitFields(payload)
	if err != nil {
		return err
	}
	return p.SetHash(ctx, key, fields, ttlSeconds)
}

func (hashStrategy) queue(b providers.WriteBatch, key string, payload []byte, ttlSeconds int) error {
	fields, err := splitFields(payload)
	if err != nil {
		return err
	}
	b.SetHash(key, fields, ttlSeconds)
	return nil
}

func splitFields(payload []byte) (map[string]string, error) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(payload, &members); err != nil || members == nil {
		return nil, errNotObject
	}
	fields := make(map[string]string, len(members))
	for name, raw := range members {
		fields[name] = string(raw)
	}
	return fields, nil
}

func joinFields(fields map[string]string) ([]byte, error) {
	members := make(map[string]json.RawMessage, len(fields))
	for name, raw := range fields {
		if !json.Valid([]byte(raw)) {
			return nil, fmt.Errorf("hash field %q is not valid JSON", name)
		}
		members[name] = json.RawMessage(raw)
	}
	return json.Marshal(members)
}
