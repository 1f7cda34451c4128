package services_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/adapters/cache"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/application/services"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/providers"
)

// MockCacheProvider for testing. Hashes merge fields on write like HSET.
type MockCacheProvider struct {
	mu        sync.RWMutex
	data      map[string][]byte
	docs      map[string][]byte
	hashes    map[string]map[string]string
	ttls      map[string]int
	deleted   []string
	writes    int
	pipelines int
	failWith  error
}

func NewMockCacheProvider() *MockCacheProvider {
	return &MockCacheProvider{
		data:   make(map[string][]byte),
		docs:   make(map[string][]byte),
		hashes: make(map[string]map[string]string),
		ttls:   make(map[string]int),
	}
}

func (m *MockCacheProvider) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	if val, ok := m.data[key]; ok {
		return val, nil
	}
	return nil, providers.ErrCacheMiss
}

func (m *MockCacheProvider) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.data[key] = value
	m.ttls[key] = expirationSeconds
	m.writes++
	return nil
}

func (m *MockCacheProvider) GetMulti(ctx context.Context, keys []string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string][]byte)
	for _, key := range keys {
		if val, ok := m.data[key]; ok {
			result[key] = val
		}
	}
	return result, nil
}

func (m *MockCacheProvider) GetDocument(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if val, ok := m.docs[key]; ok {
		return val, nil
	}
	return nil, providers.ErrCacheMiss
}

func (m *MockCacheProvider) SetDocument(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = value
	m.ttls[key] = expirationSeconds
	m.writes++
	return nil
}

func (m *MockCacheProvider) GetDocuments(ctx context.Context, keys []string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string][]byte)
	for _, key := range keys {
		if val, ok := m.docs[key]; ok {
			result[key] = val
		}
	}
	return result, nil
}

func (m *MockCacheProvider) GetHash(ctx context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if val, ok := m.hashes[key]; ok {
		return val, nil
	}
	return nil, providers.ErrCacheMiss
}

func (m *MockCacheProvider) SetHash(ctx context.Context, key string, fields map[string]string, expirationSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hashes[key] == nil {
		m.hashes[key] = make(map[string]string)
	}
	for f, v := range fields {
		m.hashes[key][f] = v
	}
	m.ttls[key] = expirationSeconds
	m.writes++
	return nil
}

func (m *MockCacheProvider) GetHashes(ctx context.Context, keys []string) (map[string]map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]map[string]string)
	for _, key := range keys {
		if val, ok := m.hashes[key]; ok {
			result[key] = val
		}
	}
	return result, nil
}

func (m *MockCacheProvider) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.docs, key)
	delete(m.hashes, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *MockCacheProvider) DeletePattern(ctx context.Context, pattern string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	n := 0
	for _, store := range []map[string][]byte{m.data, m.docs} {
		for key := range store {
			if strings.HasPrefix(key, prefix) {
				delete(store, key)
				n++
			}
		}
	}
	for key := range m.hashes {
		if strings.HasPrefix(key, prefix) {
			delete(m.hashes, key)
			n++
		}
	}
	return n, nil
}

func (m *MockCacheProvider) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, a := m.data[key]
	_, b := m.docs[key]
	_, c := m.hashes[key]
	return a || b || c, nil
}

func (m *MockCacheProvider) TTL(ctx context.Context, key string) (time.Duration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.ttls[key]) * time.Second, nil
}

func (m *MockCacheProvider) Pipelined(ctx context.Context, fn func(providers.WriteBatch) error) error {
	m.mu.Lock()
	if m.failWith != nil {
		m.mu.Unlock()
		return m.failWith
	}
	m.pipelines++
	m.mu.Unlock()
	return fn(mockBatch{ctx: ctx, m: m})
}

func (m *MockCacheProvider) Ping(ctx context.Context) error { return nil }

func (m *MockCacheProvider) size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data) + len(m.docs) + len(m.hashes)
}

type mockBatch struct {
	ctx context.Context
	m   *MockCacheProvider
}

func (b mockBatch) Set(key string, value []byte, ttl int) { _ = b.m.Set(b.ctx, key, value, ttl) }

func (b mockBatch) SetDocument(key string, value []byte, ttl int) {
	_ = b.m.SetDocument(b.ctx, key, value, ttl)
}

func (b mockBatch) SetHash(key string, fields map[string]string, ttl int) {
	_ = b.m.SetHash(b.ctx, key, fields, ttl)
}

var errRedisDown = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

func TestCacheInvalidationService_PerCodeKeys(t *testing.T) {
	ctx := context.Background()
	mockCache := NewMockCacheProvider()
	store := cache.NewStore(mockCache, nil)

	store.Set(ctx, cache.KindDocument, cache.DiagnosisKey("R10.13"), entities.DiagnosisCode{Code: "R10.13"}, cache.NoExpiration)
	store.Set(ctx, cache.KindHash, cache.MappingKey("R10.13"), map[string]entities.Mapping{"76700": {DiagnosisCode: "R10.13", ProcedureCode: "76700"}}, cache.NoExpiration)
	store.Set(ctx, cache.KindDocument, cache.ProcedureKey("76700"), entities.ProcedureCode{Code: "76700"}, cache.NoExpiration)
	store.Set(ctx, cache.KindScalar, cache.DiagnosisSearchKey([]string{"pain"}, 10), []string{"R10.13"}, 5*time.Minute)

	service := services.NewCacheInvalidationService(store)
	result := service.Invalidate(ctx, services.InvalidationRequest{DiagnosisCodes: []string{"r10.13"}, ProcedureCodes: []string{"76700"}})

	assert.Equal(t, 3, result.Keys)
	assert.ElementsMatch(t, []string{"dx:R10.13", "map:R10.13", "px:76700"}, mockCache.deleted)
	assert.Equal(t, 1, mockCache.size(), "search results expire on their own")
}

func TestCacheInvalidationService_SearchResults(t *testing.T) {
	ctx := context.Background()
	mockCache := NewMockCacheProvider()
	store := cache.NewStore(mockCache, nil)

	store.Set(ctx, cache.KindScalar, cache.DiagnosisSearchKey([]string{"pain"}, 10), []string{"R10.13"}, 5*time.Minute)
	store.Set(ctx, cache.KindScalar, cache.ProcedureSearchKey([]string{"ultrasound"}, 10), []string{"76700"}, 5*time.Minute)
	store.Set(ctx, cache.KindScalar, cache.EmbeddingKey("joint hypermobility"), []float32{0.1}, 24*time.Hour)

	service := services.NewCacheInvalidationService(store)
	result := service.Invalidate(ctx, services.InvalidationRequest{SearchResults: true})

	assert.Equal(t, 2, result.Keys)
	assert.Equal(t, 1, mockCache.size())
}
