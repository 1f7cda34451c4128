package services_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/adapters/cache"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/application/services"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
)

// memoryReader streams referenceData in fixed-size batches.
type memoryReader struct {
	data    referenceData
	streams int
}

func chunk[T any](rows []T, size int, fn func([]T) error) error {
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		if err := fn(rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (r *memoryReader) StreamDiagnosisCodes(ctx context.Context, batchSize int, fn func([]entities.DiagnosisCode) error) error {
	r.streams++
	return chunk(r.data.diagnoses, batchSize, fn)
}

func (r *memoryReader) StreamProcedureCodes(ctx context.Context, batchSize int, fn func([]entities.ProcedureCode) error) error {
	r.streams++
	return chunk(r.data.procedures, batchSize, fn)
}

func (r *memoryReader) StreamMappings(ctx context.Context, batchSize int, fn func([]entities.Mapping) error) error {
	r.streams++
	return chunk(r.data.mappings, batchSize, fn)
}

func (r *memoryReader) StreamDocuments(ctx context.Context, batchSize int, fn func([]entities.ReferenceDocument) error) error {
	r.streams++
	return chunk(r.data.documents, batchSize, fn)
}

func (r *memoryReader) StreamRareConditions(ctx context.Context, batchSize int, fn func([]entities.RareCondition) error) error {
	r.streams++
	return chunk(r.data.rare, batchSize, fn)
}

func warmupData() referenceData {
	data := sampleData()
	data.documents = append(data.documents,
		entities.ReferenceDocument{ID: 2, DiagnosisCode: "R10.13", Title: "Follow-up", Content: "CT if ultrasound is nondiagnostic."},
		entities.ReferenceDocument{ID: 3, DiagnosisCode: "K80.20", Title: "Gallstones", Content: "Ultrasound."},
	)
	return data
}

func TestCacheWarmingService_LoadsEverythingWithoutTTL(t *testing.T) {
	ctx := context.Background()
	mockCache := NewMockCacheProvider()
	reader := &memoryReader{data: warmupData()}
	service := services.NewCacheWarmingService(reader, cache.NewStore(mockCache, nil), 1)

	stats, err := service.WarmCache(ctx, false)
	require.NoError(t, err)
	assert.False(t, stats.Skipped)
	assert.Equal(t, 3, stats.Diagnoses)
	assert.Equal(t, 2, stats.Procedures)
	assert.Equal(t, 2, stats.Mappings)
	assert.Equal(t, 3, stats.Documents)
	assert.Zero(t, stats.FailedWrites)

	for key, ttl := range mockCache.ttls {
		assert.Zero(t, ttl, "warm key %s must not expire", key)
	}

	assert.Contains(t, mockCache.docs, "dx:R10.13")
	assert.Contains(t, mockCache.docs, "px:76700")
	assert.Contains(t, mockCache.data, cache.WarmupSentinelKey)

	// mappings for R10.13 arrived in two batches of one and must both be present
	assert.Len(t, mockCache.hashes["map:R10.13"], 2)

	// documents for R10.13 spanned two batches and must be stored together
	var docs []entities.ReferenceDocument
	require.NoError(t, json.Unmarshal(mockCache.docs["doc:R10.13"], &docs))
	assert.Len(t, docs, 2)
	require.NoError(t, json.Unmarshal(mockCache.docs["doc:K80.20"], &docs))
	assert.Len(t, docs, 1)
}

func TestCacheWarmingService_SecondRunIsNoop(t *testing.T) {
	ctx := context.Background()
	mockCache := NewMockCacheProvider()
	reader := &memoryReader{data: warmupData()}
	service := services.NewCacheWarmingService(reader, cache.NewStore(mockCache, nil), 1000)

	_, err := service.WarmCache(ctx, false)
	require.NoError(t, err)
	writes, streams, size := mockCache.writes, reader.streams, mockCache.size()

	stats, err := service.WarmCache(ctx, false)
	require.NoError(t, err)
	assert.True(t, stats.Skipped)
	assert.Equal(t, writes, mockCache.writes)
	assert.Equal(t, streams, reader.streams)
	assert.Equal(t, size, mockCache.size())
}

func TestCacheWarmingService_ForceReloads(t *testing.T) {
	ctx := context.Background()
	mockCache := NewMockCacheProvider()
	reader := &memoryReader{data: warmupData()}
	store := cache.NewStore(mockCache, nil)
	service := services.NewCacheWarmingService(reader, store, 1000)

	_, err := service.WarmCache(ctx, false)
	require.NoError(t, err)
	store.Set(ctx, cache.KindDocument, cache.DiagnosisKey("Z00.00"), entities.DiagnosisCode{Code: "Z00.00"}, cache.NoExpiration)

	stats, err := service.WarmCache(ctx, true)
	require.NoError(t, err)
	assert.False(t, stats.Skipped)
	assert.Positive(t, stats.Invalidated)
	assert.NotContains(t, mockCache.docs, "dx:Z00.00")
	assert.Contains(t, mockCache.docs, "dx:R10.13")
	assert.Contains(t, mockCache.data, cache.WarmupSentinelKey)
}

func TestCacheWarmingService_FailedWritesLeaveNoSentinel(t *testing.T) {
	ctx := context.Background()
	mockCache := NewMockCacheProvider()
	reader := &memoryReader{data: warmupData()}
	service := services.NewCacheWarmingService(reader, cache.NewStore(mockCache, nil), 1000)
	mockCache.failWith = errRedisDown

	stats, err := service.WarmCache(ctx, false)
	require.NoError(t, err)
	assert.Positive(t, stats.FailedWrites)

	mockCache.failWith = nil
	assert.NotContains(t, mockCache.data, cache.WarmupSentinelKey)
}
