package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/adapters/cache"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/repositories"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/observability"
)

const defaultWarmupBatchSize = 1000

// WarmupStats summarises one warm-up run.
type WarmupStats struct {
	Skipped      bool          `json:"skipped"`
	Invalidated  int           `json:"invalidated"`
	Diagnoses    int           `json:"diagnoses"`
	Procedures   int           `json:"procedures"`
	Mappings     int           `json:"mappings"`
	Documents    int           `json:"documents"`
	Batches      int           `json:"batches"`
	FailedWrites int           `json:"failed_writes"`
	Duration     time.Duration `json:"duration"`
}

// CacheWarmingService preloads the cache tier with the reference dataset.
// Warm entries never expire; they are replaced only by a forced re-run.
type CacheWarmingService struct {
	reader    repositories.ReferenceDataReader
	store     *cache.Store
	batchSize int
	running   sync.Mutex
}

// NewCacheWarmingService creates a new cache warming service
func NewCacheWarmingService(reader repositories.ReferenceDataReader, store *cache.Store, batchSize int) *CacheWarmingService {
	if batchSize <= 0 {
		batchSize = defaultWarmupBatchSize
	}
	return &CacheWarmingService{reader: reader, store: store, batchSize: batchSize}
}

// WarmCache loads every reference table into the cache. When the completion
// sentinel is present the run is skipped unless force is set, in which case
// the warm key families are dropped and reloaded.
func (s *CacheWarmingService) WarmCache(ctx context.Context, force bool) (*WarmupStats, error) {
	if !s.running.TryLock() {
		return &WarmupStats{Skipped: true}, nil
	}
	defer s.running.Unlock()

	start := time.Now()
	stats := &WarmupStats{}
	logger := observability.LoggerFromContext(ctx)

	if s.store.Exists(ctx, cache.WarmupSentinelKey) {
		if !force {
			logger.Info().Str("op", "warmup").Msg("cache already warm, skipping")
			stats.Skipped = true
			return stats, nil
		}
		stats.Invalidated = s.InvalidateCache(ctx)
	}

	logger.Info().Str("op", "warmup").Int("batch_size", s.batchSize).Msg("starting cache warm-up")

	steps := []struct {
		name string
		run  func(context.Context, *WarmupStats) error
	}{
		{"diagnoses", s.warmDiagnoses},
		{"procedures", s.warmProcedures},
		{"mappings", s.warmMappings},
		{"documents", s.warmDocuments},
	}
	for _, step := range steps {
		if err := step.run(ctx, stats); err != nil {
			stats.Duration = time.Since(start)
			return stats, fmt.Errorf("failed to warm %s: %w", step.name, err)
		}
	}

	if stats.FailedWrites == 0 {
		s.store.Set(ctx, cache.KindScalar, cache.WarmupSentinelKey, time.Now().UTC(), cache.NoExpiration)
	}

	stats.Duration = time.Since(start)
	logger.Info().
		Str("op", "warmup").
		Int("diagnoses", stats.Diagnoses).
		Int("procedures", stats.Procedures).
		Int("mappings", stats.Mappings).
		Int("documents", stats.Documents).
		Int("batches", stats.Batches).
		Int("failed_writes", stats.FailedWrites).
		Dur("duration_ms", stats.Duration).
		Msg("cache warm-up completed")
	return stats, nil
}

// StartBackground runs WarmCache in its own goroutine.
func (s *CacheWarmingService) StartBackground(ctx context.Context, force bool) {
	go func() {
		if _, err := s.WarmCache(ctx, force); err != nil {
			logger := observability.LoggerFromContext(ctx)
			logger.Error().Err(err).Str("op", "warmup").Msg("cache warm-up failed; reads fall through to the stores")
		}
	}()
}

// InvalidateCache drops every warm key family and the completion sentinel.
func (s *CacheWarmingService) InvalidateCache(ctx context.Context) int {
	total := 0
	for _, prefix := range cache.WarmPrefixes {
		total += s.store.InvalidatePattern(ctx, prefix)
	}
	s.store.Invalidate(ctx, cache.WarmupSentinelKey)
	return total
}

// flush sends one pipelined batch and counts it.
func (s *CacheWarmingService) flush(ctx context.Context, stats *WarmupStats, size int, fn func(*cache.Batch)) {
	stats.Batches++
	if _, err := s.store.Pipeline(ctx, func(b *cache.Batch) error {
		fn(b)
		return nil
	}); err != nil {
		stats.FailedWrites += size
	}
}

func (s *CacheWarmingService) warmDiagnoses(ctx context.Context, stats *WarmupStats) error {
	return s.reader.StreamDiagnosisCodes(ctx, s.batchSize, func(batch []entities.DiagnosisCode) error {
		s.flush(ctx, stats, len(batch), func(b *cache.Batch) {
			for _, d := range batch {
				b.Put(cache.KindDocument, cache.DiagnosisKey(d.Code), d, cache.NoExpiration)
			}
		})
		stats.Diagnoses += len(batch)
		return nil
	})
}

func (s *CacheWarmingService) warmProcedures(ctx context.Context, stats *WarmupStats) error {
	return s.reader.StreamProcedureCodes(ctx, s.batchSize, func(batch []entities.ProcedureCode) error {
		s.flush(ctx, stats, len(batch), func(b *cache.Batch) {
			for _, p := range batch {
				b.Put(cache.KindDocument, cache.ProcedureKey(p.Code), p, cache.NoExpiration)
			}
		})
		stats.Procedures += len(batch)
		return nil
	})
}

// warmMappings writes one hash field per mapping. HSET adds fields, so a
// diagnosis whose mappings straddle two batches ends up complete.
func (s *CacheWarmingService) warmMappings(ctx context.Context, stats *WarmupStats) error {
	return s.reader.StreamMappings(ctx, s.batchSize, func(batch []entities.Mapping) error {
		grouped := make(map[string]map[string]entities.Mapping)
		var order []string
		for _, m := range batch {
			code := entities.NormalizeDiagnosisCode(m.DiagnosisCode)
			if grouped[code] == nil {
				grouped[code] = make(map[string]entities.Mapping)
				order = append(order, code)
			}
			grouped[code][m.ProcedureCode] = m
		}
		s.flush(ctx, stats, len(batch), func(b *cache.Batch) {
			for _, code := range order {
				b.Put(cache.KindHash, cache.MappingKey(code), grouped[code], cache.NoExpiration)
			}
		})
		stats.Mappings += len(batch)
		return nil
	})
}

// warmDocuments stores each diagnosis's documents as one JSON document.
// Rows arrive grouped by diagnosis; the trailing group of a batch is held
// back until the next batch shows whether it continues.
func (s *CacheWarmingService) warmDocuments(ctx context.Context, stats *WarmupStats) error {
	var pending []entities.ReferenceDocument

	write := func(groups [][]entities.ReferenceDocument) {
		n := 0
		for _, g := range groups {
			n += len(g)
		}
		s.flush(ctx, stats, n, func(b *cache.Batch) {
			for _, g := range groups {
				b.Put(cache.KindDocument, cache.DocumentKey(g[0].DiagnosisCode), g, cache.NoExpiration)
			}
		})
		stats.Documents += n
	}

	err := s.reader.StreamDocuments(ctx, s.batchSize, func(batch []entities.ReferenceDocument) error {
		groups := groupDocuments(append(pending, batch...))
		pending = groups[len(groups)-1]
		if complete := groups[:len(groups)-1]; len(complete) > 0 {
			write(complete)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		write([][]entities.ReferenceDocument{pending})
	}
	return nil
}

// groupDocuments splits rows ordered by diagnosis code into runs.
func groupDocuments(rows []entities.ReferenceDocument) [][]entities.ReferenceDocument {
	var groups [][]entities.ReferenceDocument
	for i, d := range rows {
		if i == 0 || entities.NormalizeDiagnosisCode(d.DiagnosisCode) != entities.NormalizeDiagnosisCode(rows[i-1].DiagnosisCode) {
			groups = append(groups, nil)
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], d)
	}
	return groups
}
