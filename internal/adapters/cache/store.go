package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/providers"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/observability"
	"github.com/zatekoja/Clinicalordervalidation/backend/pkg/retry"
)

// Store is the best-effort cache-aside layer over a CacheProvider. Reads
// never fail: any provider error is logged, counted and reported as a miss.
// Writes never fail callers either; they are logged and dropped.
type Store struct {
	provider providers.CacheProvider
	metrics  *observability.CacheMetrics
	retry    retry.Config
}

// Option customises a Store.
type Option func(*Store)

// WithRetry replaces the retry configuration used around provider calls.
func WithRetry(cfg retry.Config) Option {
	return func(s *Store) { s.retry = cfg }
}

// NewStore wraps provider. metrics may be nil.
func NewStore(provider providers.CacheProvider, metrics *observability.CacheMetrics, opts ...Option) *Store {
	if metrics == nil {
		metrics = observability.NewCacheMetrics()
	}
	s := &Store{provider: provider, metrics: metrics, retry: retry.CacheConfig()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metrics exposes the recorder backing the store.
func (s *Store) Metrics() *observability.CacheMetrics {
	return s.metrics
}

func (s *Store) do(ctx context.Context, fn func() error) error {
	return retry.Do(ctx, s.retry, fn)
}

// Get returns the raw JSON payload stored at key.
func (s *Store) Get(ctx context.Context, kind StorageKind, key string) ([]byte, bool) {
	return s.get(ctx, kind, key, nil)
}

// get reads key and, when check is set, validates the payload before the
// read is counted. A corrupted entry is invalidated and counted as a miss.
func (s *Store) get(ctx context.Context, kind StorageKind, key string, check func([]byte) error) ([]byte, bool) {
	start := time.Now()
	var payload []byte
	err := s.do(ctx, func() error {
		var err error
		payload, err = strategyFor(kind).get(ctx, s.provider, key)
		return err
	})
	if err == nil && check != nil {
		if cerr := check(payload); cerr != nil {
			err = fmt.Errorf("%w: %s: %v", providers.ErrCacheCorrupted, key, cerr)
		}
	}
	elapsed := time.Since(start)

	switch {
	case err == nil:
		s.metrics.Hit(ctx, "get", elapsed)
		return payload, true
	case errors.Is(err, providers.ErrCacheMiss):
		s.metrics.Miss(ctx, "get", elapsed)
	case errors.Is(err, providers.ErrCacheCorrupted):
		s.metrics.Miss(ctx, "get", elapsed)
		s.heal(ctx, key, err)
	default:
		s.metrics.Error(ctx, "get", elapsed)
		s.logFailure(ctx, "get", key, elapsed, err)
	}
	return nil, false
}

// Set encodes value and writes it with ttl. Zero ttl means no expiration.
func (s *Store) Set(ctx context.Context, kind StorageKind, key string, value interface{}, ttl time.Duration) {
	start := time.Now()
	payload, err := json.Marshal(value)
	if err == nil {
		err = s.do(ctx, func() error {
			return strategyFor(kind).set(ctx, s.provider, key, payload, ttlSeconds(ttl))
		})
	}
	elapsed := time.Since(start)

	if err != nil {
		s.metrics.Error(ctx, "set", elapsed)
		s.logFailure(ctx, "set", key, elapsed, err)
		return
	}
	s.metrics.Write(ctx, "set", elapsed)
}

// Invalidate removes key.
func (s *Store) Invalidate(ctx context.Context, key string) {
	start := time.Now()
	err := s.do(ctx, func() error { return s.provider.Delete(ctx, key) })
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.Error(ctx, "invalidate", elapsed)
		s.logFailure(ctx, "invalidate", key, elapsed, err)
		return
	}
	s.metrics.Write(ctx, "invalidate", elapsed)
}

// InvalidatePattern removes every key starting with prefix and returns how many went.
func (s *Store) InvalidatePattern(ctx context.Context, prefix string) int {
	start := time.Now()
	var deleted int
	err := s.do(ctx, func() error {
		n, err := s.provider.DeletePattern(ctx, prefix+"*")
		deleted += n
		return err
	})
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.Error(ctx, "invalidate_pattern", elapsed)
		s.logFailure(ctx, "invalidate_pattern", prefix, elapsed, err)
		return deleted
	}
	s.metrics.Write(ctx, "invalidate_pattern", elapsed)
	return deleted
}

// Exists reports whether key is present; failures read as absent.
func (s *Store) Exists(ctx context.Context, key string) bool {
	start := time.Now()
	var ok bool
	err := s.do(ctx, func() error {
		var err error
		ok, err = s.provider.Exists(ctx, key)
		return err
	})
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.Error(ctx, "exists", elapsed)
		s.logFailure(ctx, "exists", key, elapsed, err)
		return false
	}
	return ok
}

// BulkGet fetches keys in one round trip. The result is aligned with keys;
// nil entries are misses. One failing key never hides the others.
func (s *Store) BulkGet(ctx context.Context, kind StorageKind, keys []string) [][]byte {
	return s.bulkGet(ctx, kind, keys, nil)
}

func (s *Store) bulkGet(ctx context.Context, kind StorageKind, keys []string, check func(int, []byte) error) [][]byte {
	out := make([][]byte, len(keys))
	if len(keys) == 0 {
		return out
	}

	start := time.Now()
	var found map[string][]byte
	err := s.do(ctx, func() error {
		var err error
		found, err = strategyFor(kind).bulkGet(ctx, s.provider, keys)
		return err
	})
	elapsed := time.Since(start)

	var corrupt *providers.CorruptedKeysError
	if errors.As(err, &corrupt) {
		err = nil
	}
	if err != nil {
		s.metrics.Error(ctx, "bulk_get", elapsed)
		s.logFailure(ctx, "bulk_get", keys[0], elapsed, err)
		return out
	}

	bad := make(map[string]bool)
	if corrupt != nil {
		for _, key := range corrupt.Keys {
			bad[key] = true
		}
	}

	per := elapsed / time.Duration(len(keys))
	for i, key := range keys {
		payload, ok := found[key]
		var cause error
		switch {
		case ok && check != nil:
			if cerr := check(i, payload); cerr != nil {
				ok, cause = false, cerr
			}
		case !ok && bad[key]:
			cause = corrupt
		}
		if ok {
			out[i] = payload
			s.metrics.Hit(ctx, "bulk_get", per)
			continue
		}
		s.metrics.Miss(ctx, "bulk_get", per)
		if cause != nil {
			s.heal(ctx, key, cause)
		}
	}
	return out
}

// Batch queues writes for a single pipelined round trip.
type Batch struct {
	wb     providers.WriteBatch
	queued int
	err    error
}

// Put encodes value and queues it. Encoding failures are kept and
// reported when the pipeline completes.
func (b *Batch) Put(kind StorageKind, key string, value interface{}, ttl time.Duration) {
	payload, err := json.Marshal(value)
	if err == nil {
		err = strategyFor(kind).queue(b.wb, key, payload, ttlSeconds(ttl))
	}
	if err != nil {
		b.err = errors.Join(b.err, err)
		return
	}
	b.queued++
}

// Pipeline runs fn against a batch and sends everything it queued at once.
// Unlike the single-key operations it reports failure, so bulk loaders can
// count what landed.
func (s *Store) Pipeline(ctx context.Context, fn func(*Batch) error) (int, error) {
	start := time.Now()
	var queued int
	var encodeErr error
	err := s.do(ctx, func() error {
		return s.provider.Pipelined(ctx, func(wb providers.WriteBatch) error {
			b := &Batch{wb: wb}
			if err := fn(b); err != nil {
				return err
			}
			queued, encodeErr = b.queued, b.err
			return nil
		})
	})
	elapsed := time.Since(start)

	if err != nil {
		s.metrics.Error(ctx, "pipeline", elapsed)
		s.logFailure(ctx, "pipeline", "", elapsed, err)
		return 0, err
	}
	s.metrics.Write(ctx, "pipeline", elapsed)
	if encodeErr != nil {
		s.logFailure(ctx, "pipeline_encode", "", elapsed, encodeErr)
	}
	return queued, nil
}

func (s *Store) logFailure(ctx context.Context, op, key string, elapsed time.Duration, err error) {
	logger := observability.LoggerFromContext(ctx)
	logger.Warn().
		Err(err).
		Str("op", op).
		Str("key", key).
		Dur("duration_ms", elapsed).
		Msg("cache operation failed; continuing without cache")
}

// Lookup reads and decodes key. An undecodable payload, or a key holding
// the wrong type, is invalidated immediately and reported as a miss, so a
// corrupted entry is never served.
func Lookup[T any](ctx context.Context, s *Store, kind StorageKind, key string) (T, bool) {
	var value T
	_, ok := s.get(ctx, kind, key, func(payload []byte) error {
		return json.Unmarshal(payload, &value)
	})
	if !ok {
		var zero T
		return zero, false
	}
	return value, true
}

// Entry is one element of a BulkLookup result.
type Entry[T any] struct {
	Value T
	Found bool
}

// BulkLookup is Lookup over many keys in one round trip. Each key is
// decoded and healed independently.
func BulkLookup[T any](ctx context.Context, s *Store, kind StorageKind, keys []string) []Entry[T] {
	out := make([]Entry[T], len(keys))
	s.bulkGet(ctx, kind, keys, func(i int, payload []byte) error {
		var value T
		if err := json.Unmarshal(payload, &value); err != nil {
			return err
		}
		out[i] = Entry[T]{Value: value, Found: true}
		return nil
	})
	return out
}

func (s *Store) heal(ctx context.Context, key string, cause error) {
	logger := observability.LoggerFromContext(ctx)
	logger.Warn().
		Err(cause).
		Str("op", "heal").
		Str("key", key).
		Msg("corrupted cache entry; invalidating")
	s.Invalidate(ctx, key)
}

// Nop returns a store whose provider always misses. Used when no cache tier is configured.
func Nop() *Store {
	return NewStore(nopProvider{}, nil, WithRetry(retry.Config{MaxAttempts: 1}))
}

var errNoCache = errors.New("cache tier not configured")

type nopProvider struct{}

func (nopProvider) Get(context.Context, string) ([]byte, error) {
	return nil, providers.ErrCacheMiss
}

func (nopProvider) Set(context.Context, string, []byte, int) error { return nil }

func (nopProvider) GetMulti(context.Context, []string) (map[string][]byte, error) {
	return nil, nil
}

func (nopProvider) GetDocument(context.Context, string) ([]byte, error) {
	return nil, providers.ErrCacheMiss
}

func (nopProvider) SetDocument(context.Context, string, []byte, int) error { return nil }

func (nopProvider) GetDocuments(context.Context, []string) (map[string][]byte, error) {
	return nil, nil
}

func (nopProvider) GetHash(context.Context, string) (map[string]string, error) {
	return nil, providers.ErrCacheMiss
}

func (nopProvider) SetHash(context.Context, string, map[string]string, int) error { return nil }

func (nopProvider) GetHashes(context.Context, []string) (map[string]map[string]string, error) {
	return nil, nil
}

func (nopProvider) Delete(context.Context, string) error { return nil }

func (nopProvider) DeletePattern(context.Context, string) (int, error) { return 0, nil }

func (nopProvider) Exists(context.Context, string) (bool, error) { return false, nil }

func (nopProvider) TTL(context.Context, string) (time.Duration, error) {
	return 0, providers.ErrCacheMiss
}

func (nopProvider) Pipelined(context.Context, func(providers.WriteBatch) error) error {
	return errNoCache
}

func (nopProvider) Ping(context.Context) error { return errNoCache }
