package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/providers"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/repositories"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/observability"
	"github.com/zatekoja/Clinicalordervalidation/backend/pkg/retry"
)

const defaultIndexBatchSize = 500

// IndexSummary reports one search-tier sync.
type IndexSummary struct {
	Diagnoses      int
	Procedures     int
	Mappings       int
	Documents      int
	RareConditions int
	Embedded       int64
	EmbedFailures  int64
	Duration       time.Duration
}

// IndexSyncService copies the relational reference tables into the search
// tier. Rare conditions are embedded on the way when an embedder is set.
type IndexSyncService struct {
	reader     repositories.ReferenceDataReader
	writer     repositories.SearchIndexWriter
	embedder   providers.EmbeddingProvider
	batchSize  int
	workers    int
	maxRetries int
}

// NewIndexSyncService creates a new index sync service. embedder may be nil.
func NewIndexSyncService(
	reader repositories.ReferenceDataReader,
	writer repositories.SearchIndexWriter,
	embedder providers.EmbeddingProvider,
	batchSize int,
	workers int,
	maxRetries int,
) *IndexSyncService {
	if batchSize <= 0 {
		batchSize = defaultIndexBatchSize
	}
	if workers <= 0 {
		workers = 1
	}
	return &IndexSyncService{
		reader:     reader,
		writer:     writer,
		embedder:   embedder,
		batchSize:  batchSize,
		workers:    workers,
		maxRetries: maxRetries,
	}
}

// Sync upserts every reference row. With reset the collections are
// dropped first, which removes rows deleted from the tables.
func (s *IndexSyncService) Sync(ctx context.Context, reset bool) (*IndexSummary, error) {
	start := time.Now()
	logger := observability.LoggerFromContext(ctx)
	summary := &IndexSummary{}

	if reset {
		if err := s.writer.Reset(ctx); err != nil {
			return nil, fmt.Errorf("failed to reset search index: %w", err)
		}
	} else if err := s.writer.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to init search schema: %w", err)
	}

	if err := s.reader.StreamDiagnosisCodes(ctx, s.batchSize, func(rows []entities.DiagnosisCode) error {
		summary.Diagnoses += len(rows)
		return s.writer.UpsertDiagnoses(ctx, rows)
	}); err != nil {
		return nil, fmt.Errorf("diagnosis codes: %w", err)
	}
	if err := s.reader.StreamProcedureCodes(ctx, s.batchSize, func(rows []entities.ProcedureCode) error {
		summary.Procedures += len(rows)
		return s.writer.UpsertProcedures(ctx, rows)
	}); err != nil {
		return nil, fmt.Errorf("procedure codes: %w", err)
	}
	if err := s.reader.StreamMappings(ctx, s.batchSize, func(rows []entities.Mapping) error {
		summary.Mappings += len(rows)
		return s.writer.UpsertMappings(ctx, rows)
	}); err != nil {
		return nil, fmt.Errorf("mappings: %w", err)
	}
	if err := s.reader.StreamDocuments(ctx, s.batchSize, func(rows []entities.ReferenceDocument) error {
		summary.Documents += len(rows)
		return s.writer.UpsertDocuments(ctx, rows)
	}); err != nil {
		return nil, fmt.Errorf("reference documents: %w", err)
	}
	if err := s.reader.StreamRareConditions(ctx, s.batchSize, func(rows []entities.RareCondition) error {
		summary.RareConditions += len(rows)
		s.embedAll(ctx, rows, summary)
		return s.writer.UpsertRareConditions(ctx, rows)
	}); err != nil {
		return nil, fmt.Errorf("rare conditions: %w", err)
	}

	summary.Duration = time.Since(start)
	logger.Info().
		Str("op", "index_sync").
		Bool("reset", reset).
		Int("diagnoses", summary.Diagnoses).
		Int("procedures", summary.Procedures).
		Int("mappings", summary.Mappings).
		Int("documents", summary.Documents).
		Int("rare_conditions", summary.RareConditions).
		Int64("embedded", summary.Embedded).
		Int64("embed_failures", summary.EmbedFailures).
		Dur("duration_ms", summary.Duration).
		Msg("search index sync completed")
	return summary, nil
}

// embedAll fills Embedding in place using a fixed worker pool. Rows whose
// embedding fails are indexed without a vector and only match through the
// text fallback.
func (s *IndexSyncService) embedAll(ctx context.Context, rows []entities.RareCondition, summary *IndexSummary) {
	if s.embedder == nil {
		return
	}
	logger := observability.LoggerFromContext(ctx)

	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = s.maxRetries + 1
	cfg.MaxTotalTimeout = 30 * time.Second

	idxChan := make(chan int, len(rows))
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range idxChan {
				var vector []float32
				err := retry.Do(ctx, cfg, func() error {
					var err error
					vector, err = s.embedder.Embed(ctx, EmbeddingText(rows[idx]))
					return err
				})
				if err != nil {
					atomic.AddInt64(&summary.EmbedFailures, 1)
					logger.Warn().Err(err).Str("code", rows[idx].Code).Msg("failed to embed rare condition")
					continue
				}
				rows[idx].Embedding = vector
				atomic.AddInt64(&summary.Embedded, 1)
			}
		}()
	}
	for i := range rows {
		idxChan <- i
	}
	close(idxChan)
	wg.Wait()
}

// EmbeddingText is the text embedded for a registry entry.
func EmbeddingText(r entities.RareCondition) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{r.Name, r.Description, r.Symptoms} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ". ")
}
