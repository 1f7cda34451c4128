package search

import (
	"context"
	"time"

	"github.com/graph-gophers/dataloader/v7"
	"github.com/zatekoja/Clinicalordervalidation/backend/internal/domain/entities"
)

type ctxKey string

const loadersKey ctxKey = "code_loaders"

// batchWait is how long a loader collects keys before dispatching.
const batchWait = 2 * time.Millisecond

// Loaders batches per-diagnosis mapping and document loads within one
// request. A fresh set is created per request so nothing leaks across callers.
type Loaders struct {
	MappingLoader  *dataloader.Loader[string, []entities.Mapping]
	DocumentLoader *dataloader.Loader[string, []entities.ReferenceDocument]
}

// NewLoaders creates a new instance of Loaders backed by the adapter.
func (a *TypesenseAdapter) NewLoaders() *Loaders {
	return &Loaders{
		MappingLoader: dataloader.NewBatchedLoader(
			func(ctx context.Context, keys []string) []*dataloader.Result[[]entities.Mapping] {
				results := make([]*dataloader.Result[[]entities.Mapping], len(keys))
				byCode, err := a.loadMappings(ctx, keys)
				for i, key := range keys {
					if err != nil {
						results[i] = &dataloader.Result[[]entities.Mapping]{Error: err}
					} else {
						results[i] = &dataloader.Result[[]entities.Mapping]{Data: byCode[key]}
					}
				}
				return results
			},
			dataloader.WithWait[string, []entities.Mapping](batchWait),
		),
		DocumentLoader: dataloader.NewBatchedLoader(
			func(ctx context.Context, keys []string) []*dataloader.Result[[]entities.ReferenceDocument] {
				results := make([]*dataloader.Result[[]entities.ReferenceDocument], len(keys))
				byCode, err := a.loadDocuments(ctx, keys)
				for i, key := range keys {
					if err != nil {
						results[i] = &dataloader.Result[[]entities.ReferenceDocument]{Error: err}
					} else {
						results[i] = &dataloader.Result[[]entities.ReferenceDocument]{Data: byCode[key]}
					}
				}
				return results
			},
			dataloader.WithWait[string, []entities.ReferenceDocument](batchWait),
		),
	}
}

// For returns the loaders for a given context, or nil when none are attached.
func For(ctx context.Context) *Loaders {
	l, _ := ctx.Value(loadersKey).(*Loaders)
	return l
}

// WithLoaders returns a new context with the loaders attached
func WithLoaders(ctx context.Context, loaders *Loaders) context.Context {
	return context.WithValue(ctx, loadersKey, loaders)
}

// loadMany resolves keys through loader and flattens the per-key slices in key order.
func loadMany[V any](ctx context.Context, loader *dataloader.Loader[string, []V], keys []string) ([]V, error) {
	values, errs := loader.LoadMany(ctx, keys)()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	var out []V
	for _, v := range values {
		out = append(out, v...)
	}
	return out, nil
}
