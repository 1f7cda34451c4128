package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrCacheMiss is returned by CacheProvider reads when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// ErrCacheCorrupted is returned by CacheProvider reads when the key holds a
// value that cannot be read in the requested representation, such as a
// plain string where a hash is expected.
var ErrCacheCorrupted = errors.New("cache entry corrupted")

// CorruptedKeysError is returned by the bulk reads alongside the values
// that could be read. It names the keys that hold unreadable values and
// matches ErrCacheCorrupted.
type CorruptedKeysError struct {
	Keys []string
}

func (e *CorruptedKeysError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCacheCorrupted, strings.Join(e.Keys, ", "))
}

// Is reports whether target is ErrCacheCorrupted.
func (e *CorruptedKeysError) Is(target error) bool {
	return target == ErrCacheCorrupted
}

// CacheProvider defines the interface for caching operations. Values are
// opaque bytes; representation (plain string, JSON document, hash) is
// chosen by the method family.
type CacheProvider interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration (0 = no expiration)
	Set(ctx context.Context, key string, value []byte, expirationSeconds int) error

	// GetMulti retrieves many plain values in one round trip. Missing or
	// failed keys are absent from the result; keys holding another type
	// are reported through a *CorruptedKeysError.
	GetMulti(ctx context.Context, keys []string) (map[string][]byte, error)

	// GetDocument reads a JSON document stored at key
	GetDocument(ctx context.Context, key string) ([]byte, error)

	// SetDocument stores a JSON document at key
	SetDocument(ctx context.Context, key string, value []byte, expirationSeconds int) error

	// GetDocuments reads many JSON documents in one round trip
	GetDocuments(ctx context.Context, keys []string) (map[string][]byte, error)

	// GetHash reads every field of a hash
	GetHash(ctx context.Context, key string) (map[string]string, error)

	// SetHash writes hash fields at key
	SetHash(ctx context.Context, key string, fields map[string]string, expirationSeconds int) error

	// GetHashes reads many hashes in one round trip
	GetHashes(ctx context.Context, keys []string) (map[string]map[string]string, error)

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// DeletePattern removes every key matching a glob pattern and returns the count
	DeletePattern(ctx context.Context, pattern string) (int, error)

	// Exists checks if a key exists in cache
	Exists(ctx context.Context, key string) (bool, error)

	// TTL returns the remaining time to live of key
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Pipelined queues writes and sends them in a single round trip
	Pipelined(ctx context.Context, fn func(WriteBatch) error) error

	// Ping verifies connectivity
	Ping(ctx context.Context) error
}

// WriteBatch collects writes issued inside CacheProvider.Pipelined.
type WriteBatch interface {
	Set(key string, value []byte, expirationSeconds int)
	SetDocument(key string, value []byte, expirationSeconds int)
	SetHash(key string, fields map[string]string, expirationSeconds int)
}
