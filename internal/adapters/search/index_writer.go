package search

import (
	"context"
	"fmt"

	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/repositories"
	tsclient "github.com/zatekoja/Clinicalordervalidation/backend/internal/infrastructure/clients/typesense"
	"golang.org/x/sync/errgroup"
)

const defaultUpsertConcurrency = 8

// DocumentStore is the write side of the Typesense client.
type DocumentStore interface {
	InitSchema(ctx context.Context) error
	DropCollection(ctx context.Context, collection string) error
	UpsertDocument(ctx context.Context, collection string, document map[string]interface{}) error
}

// IndexWriter converts reference rows into search documents and upserts
// them with bounded concurrency.
type IndexWriter struct {
	store       DocumentStore
	concurrency int
}

var _ repositories.SearchIndexWriter = (*IndexWriter)(nil)

// NewIndexWriter creates a new index writer
func NewIndexWriter(store DocumentStore, concurrency int) *IndexWriter {
	if concurrency <= 0 {
		concurrency = defaultUpsertConcurrency
	}
	return &IndexWriter{store: store, concurrency: concurrency}
}

// InitSchema creates missing collections.
func (w *IndexWriter) InitSchema(ctx context.Context) error {
	return w.store.InitSchema(ctx)
}

// Reset drops every reference collection and recreates the schema.
func (w *IndexWriter) Reset(ctx context.Context) error {
	for _, collection := range []string{
		tsclient.DiagnosisCollection,
		tsclient.ProcedureCollection,
		tsclient.MappingCollection,
		tsclient.DocumentCollection,
		tsclient.RareConditionCollection,
	} {
		if err := w.store.DropCollection(ctx, collection); err != nil {
			return fmt.Errorf("failed to drop %s: %w", collection, err)
		}
	}
	return w.store.InitSchema(ctx)
}

func (w *IndexWriter) UpsertDiagnoses(ctx context.Context, rows []entities.DiagnosisCode) error {
	return upsertAll(ctx, w, tsclient.DiagnosisCollection, rows, DiagnosisDocument)
}

func (w *IndexWriter) UpsertProcedures(ctx context.Context, rows []entities.ProcedureCode) error {
	return upsertAll(ctx, w, tsclient.ProcedureCollection, rows, ProcedureDocument)
}

func (w *IndexWriter) UpsertMappings(ctx context.Context, rows []entities.Mapping) error {
	return upsertAll(ctx, w, tsclient.MappingCollection, rows, MappingDocument)
}

func (w *IndexWriter) UpsertDocuments(ctx context.Context, rows []entities.ReferenceDocument) error {
	return upsertAll(ctx, w, tsclient.DocumentCollection, rows, ReferenceDocumentDocument)
}

func (w *IndexWriter) UpsertRareConditions(ctx context.Context, rows []entities.RareCondition) error {
	return upsertAll(ctx, w, tsclient.RareConditionCollection, rows, RareConditionDocument)
}

func upsertAll[T any](ctx context.Context, w *IndexWriter, collection string, rows []T, toDoc func(T) map[string]interface{}) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for _, row := range rows {
		doc := toDoc(row)
		g.Go(func() error {
			if err := w.store.UpsertDocument(gctx, collection, doc); err != nil {
				return fmt.Errorf("failed to upsert %s/%v: %w", collection, doc["id"], err)
			}
			return nil
		})
	}
	return g.Wait()
}
