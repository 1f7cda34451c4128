package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/application/services"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
)

type memoryIndexWriter struct {
	mu        sync.Mutex
	resets    int
	inits     int
	diagnoses []entities.DiagnosisCode
	mappings  []entities.Mapping
	documents []entities.ReferenceDocument
	rare      []entities.RareCondition
	err       error
}

func (w *memoryIndexWriter) InitSchema(ctx context.Context) error { w.inits++; return nil }
func (w *memoryIndexWriter) Reset(ctx context.Context) error      { w.resets++; return nil }

func (w *memoryIndexWriter) UpsertDiagnoses(ctx context.Context, rows []entities.DiagnosisCode) error {
	w.diagnoses = append(w.diagnoses, rows...)
	return w.err
}

func (w *memoryIndexWriter) UpsertProcedures(ctx context.Context, rows []entities.ProcedureCode) error {
	return nil
}

func (w *memoryIndexWriter) UpsertMappings(ctx context.Context, rows []entities.Mapping) error {
	w.mappings = append(w.mappings, rows...)
	return nil
}

func (w *memoryIndexWriter) UpsertDocuments(ctx context.Context, rows []entities.ReferenceDocument) error {
	w.documents = append(w.documents, rows...)
	return nil
}

func (w *memoryIndexWriter) UpsertRareConditions(ctx context.Context, rows []entities.RareCondition) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rare = append(w.rare, rows...)
	return nil
}

// textEmbedder returns a one-dimensional vector per text and fails for
// texts listed in fail.
type textEmbedder struct {
	mu    sync.Mutex
	fail  map[string]bool
	texts []string
}

func (e *textEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.texts = append(e.texts, text)
	if e.fail[text] {
		return nil, errors.New("400 invalid input")
	}
	return []float32{float32(len(text))}, nil
}

func TestIndexSyncService_SyncsEveryTable(t *testing.T) {
	data := warmupData()
	data.rare = append([]entities.RareCondition(nil), registry...)
	writer := &memoryIndexWriter{}
	embedder := &textEmbedder{fail: map[string]bool{services.EmbeddingText(registry[1]): true}}
	service := services.NewIndexSyncService(&memoryReader{data: data}, writer, embedder, 2, 2, 0)

	summary, err := service.Sync(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, writer.inits)
	assert.Zero(t, writer.resets)
	assert.Equal(t, 3, summary.Diagnoses)
	assert.Equal(t, 2, summary.Mappings)
	assert.Equal(t, 3, summary.Documents)
	assert.Equal(t, 2, summary.RareConditions)
	assert.Equal(t, int64(1), summary.Embedded)
	assert.Equal(t, int64(1), summary.EmbedFailures)
	assert.Len(t, writer.diagnoses, 3)

	byCode := map[string]entities.RareCondition{}
	for _, r := range writer.rare {
		byCode[r.Code] = r
	}
	assert.NotEmpty(t, byCode["Q79.6"].Embedding)
	assert.Empty(t, byCode["E75.22"].Embedding)
}

func TestIndexSyncService_ResetAndWithoutEmbedder(t *testing.T) {
	data := warmupData()
	data.rare = append([]entities.RareCondition(nil), registry...)
	writer := &memoryIndexWriter{}
	service := services.NewIndexSyncService(&memoryReader{data: data}, writer, nil, 0, 0, 0)

	summary, err := service.Sync(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, writer.resets)
	assert.Zero(t, writer.inits)
	assert.Zero(t, summary.Embedded)
	assert.Len(t, writer.rare, 2)
}

func TestIndexSyncService_WriteFailureStops(t *testing.T) {
	writer := &memoryIndexWriter{err: errTierDown}
	service := services.NewIndexSyncService(&memoryReader{data: warmupData()}, writer, nil, 10, 1, 0)

	_, err := service.Sync(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, errTierDown)
	assert.Empty(t, writer.mappings)
}

func TestEmbeddingText(t *testing.T) {
	assert.Equal(t, "Gaucher disease. Lysosomal storage disorder. splenomegaly, bone pain", services.EmbeddingText(registry[1]))
	assert.Equal(t, "Fabry disease", services.EmbeddingText(entities.RareCondition{Name: " Fabry disease "}))
}
