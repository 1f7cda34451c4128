package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/providers"
	redisclient "github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/clients/redis"
)

const scanCount = 500

// RedisAdapter implements the CacheProvider interface using Redis
type RedisAdapter struct {
	client *redisclient.Client
}

// NewRedisAdapter creates a new Redis cache adapter
func NewRedisAdapter(client *redisclient.Client) providers.CacheProvider {
	return &RedisAdapter{
		client: client,
	}
}

func expiration(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// Get retrieves a value from cache
func (a *RedisAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := a.client.Client().Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, providers.ErrCacheMiss
	}
	if isWrongType(err) {
		return nil, corrupted(key, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}
	return result, nil
}

// Set stores a value in cache with expiration
func (a *RedisAdapter) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	if err := a.client.Client().Set(ctx, key, value, expiration(expirationSeconds)).Err(); err != nil {
		return fmt.Errorf("failed to set in cache: %w", err)
	}
	return nil
}

// GetMulti retrieves plain values in one pipelined round trip
func (a *RedisAdapter) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	cmds := make([]*redis.StringCmd, len(keys))
	_, execErr := a.client.Client().Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.Get(ctx, key)
		}
		return nil
	})

	var (
		failed  int
		corrupt []string
	)
	for i, cmd := range cmds {
		val, err := cmd.Bytes()
		switch {
		case err == nil:
			out[keys[i]] = val
		case errors.Is(err, redis.Nil):
		case isWrongType(err):
			corrupt = append(corrupt, keys[i])
		default:
			failed++
		}
	}
	return out, batchError(execErr, failed, len(keys), corrupt)
}

// GetDocument reads a JSON document stored at key
func (a *RedisAdapter) GetDocument(ctx context.Context, key string) ([]byte, error) {
	val, err := a.client.Client().JSONGet(ctx, key).Result()
	if errors.Is(err, redis.Nil) || (err == nil && val == "") {
		return nil, providers.ErrCacheMiss
	}
	if isWrongType(err) {
		return nil, corrupted(key, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document from cache: %w", err)
	}
	return []byte(val), nil
}

// SetDocument stores a JSON document at key
func (a *RedisAdapter) SetDocument(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	_, err := a.client.Client().Pipelined(ctx, func(pipe redis.Pipeliner) error {
		queueDocument(ctx, pipe, key, value, expirationSeconds)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set document in cache: %w", err)
	}
	return nil
}

// GetDocuments reads many JSON documents in one pipelined round trip
func (a *RedisAdapter) GetDocuments(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	cmds := make([]*redis.JSONCmd, len(keys))
	_, execErr := a.client.Client().Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.JSONGet(ctx, key)
		}
		return nil
	})

	var (
		failed  int
		corrupt []string
	)
	for i, cmd := range cmds {
		val, err := cmd.Result()
		switch {
		case err == nil && val != "":
			out[keys[i]] = []byte(val)
		case err == nil, errors.Is(err, redis.Nil):
		case isWrongType(err):
			corrupt = append(corrupt, keys[i])
		default:
			failed++
		}
	}
	return out, batchError(execErr, failed, len(keys), corrupt)
}

// GetHash reads every field of a hash
func (a *RedisAdapter) GetHash(ctx context.Context, key string) (map[string]string, error) {
	fields, err := a.client.Client().HGetAll(ctx, key).Result()
	if isWrongType(err) {
		return nil, corrupted(key, err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hash from cache: %w", err)
	}
	if len(fields) == 0 {
		return nil, providers.ErrCacheMiss
	}
	return fields, nil
}

// SetHash writes hash fields at key
func (a *RedisAdapter) SetHash(ctx context.Context, key string, fields map[string]string, expirationSeconds int) error {
	if len(fields) == 0 {
		return nil
	}
	_, err := a.client.Client().Pipelined(ctx, func(pipe redis.Pipeliner) error {
		queueHash(ctx, pipe, key, fields, expirationSeconds)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set hash in cache: %w", err)
	}
	return nil
}

// GetHashes reads many hashes in one pipelined round trip
func (a *RedisAdapter) GetHashes(ctx context.Context, keys []string) (map[string]map[string]string, error) {
	out := make(map[string]map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, execErr := a.client.Client().Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGetAll(ctx, key)
		}
		return nil
	})

	var (
		failed  int
		corrupt []string
	)
	for i, cmd := range cmds {
		fields, err := cmd.Result()
		switch {
		case err == nil && len(fields) > 0:
			out[keys[i]] = fields
		case err == nil:
		case isWrongType(err):
			corrupt = append(corrupt, keys[i])
		default:
			failed++
		}
	}
	return out, batchError(execErr, failed, len(keys), corrupt)
}

// Delete removes a value from cache
func (a *RedisAdapter) Delete(ctx context.Context, key string) error {
	if err := a.client.Client().Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete from cache: %w", err)
	}
	return nil
}

// DeletePattern scans for keys matching pattern and deletes them batch by batch
func (a *RedisAdapter) DeletePattern(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := a.client.Client().Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan cache: %w", err)
		}
		if len(keys) > 0 {
			n, err := a.client.Client().Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to delete from cache: %w", err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// Exists checks if a key exists in cache
func (a *RedisAdapter) Exists(ctx context.Context, key string) (bool, error) {
	result, err := a.client.Client().Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check existence in cache: %w", err)
	}
	return result > 0, nil
}

// TTL returns the remaining lifetime of key; zero means no expiration
func (a *RedisAdapter) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := a.client.Client().TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read ttl: %w", err)
	}
	switch {
	case ttl == -2 || ttl == -2*time.Second:
		return 0, providers.ErrCacheMiss
	case ttl < 0:
		return 0, nil
	}
	return ttl, nil
}

// Pipelined queues writes issued by fn and sends them in one round trip
func (a *RedisAdapter) Pipelined(ctx context.Context, fn func(providers.WriteBatch) error) error {
	_, err := a.client.Client().Pipelined(ctx, func(pipe redis.Pipeliner) error {
		return fn(&pipelineBatch{ctx: ctx, pipe: pipe})
	})
	if err != nil {
		return fmt.Errorf("cache pipeline failed: %w", err)
	}
	return nil
}

// Ping verifies connectivity
func (a *RedisAdapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

type pipelineBatch struct {
	ctx  context.Context
	pipe redis.Pipeliner
}

func (b *pipelineBatch) Set(key string, value []byte, expirationSeconds int) {
	b.pipe.Set(b.ctx, key, value, expiration(expirationSeconds))
}

func (b *pipelineBatch) SetDocument(key string, value []byte, expirationSeconds int) {
	queueDocument(b.ctx, b.pipe, key, value, expirationSeconds)
}

func (b *pipelineBatch) SetHash(key string, fields map[string]string, expirationSeconds int) {
	if len(fields) == 0 {
		return
	}
	queueHash(b.ctx, b.pipe, key, fields, expirationSeconds)
}

func queueDocument(ctx context.Context, pipe redis.Pipeliner, key string, value []byte, expirationSeconds int) {
	pipe.JSONSet(ctx, key, "$", string(value))
	if ttl := expiration(expirationSeconds); ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
}

func queueHash(ctx context.Context, pipe redis.Pipeliner, key string, fields map[string]string, expirationSeconds int) {
	values := make([]interface{}, 0, len(fields)*2)
	for field, value := range fields {
		values = append(values, field, value)
	}
	pipe.HSet(ctx, key, values...)
	if ttl := expiration(expirationSeconds); ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
}

// isWrongType reports whether Redis refused a read because the key holds
// another type.
func isWrongType(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "WRONGTYPE")
}

func corrupted(key string, err error) error {
	return fmt.Errorf("%w: %s: %v", providers.ErrCacheCorrupted, key, err)
}

// batchError reports a pipeline failure only when no key in the batch could
// be read. Otherwise it names the keys holding another type, if any.
func batchError(execErr error, failed, total int, corrupt []string) error {
	if failed == 0 || failed < total {
		if len(corrupt) > 0 {
			return &providers.CorruptedKeysError{Keys: corrupt}
		}
		return nil
	}
	if execErr != nil && !errors.Is(execErr, redis.Nil) {
		return fmt.Errorf("cache batch read failed: %w", execErr)
	}
	return errors.New("cache batch read failed")
}
