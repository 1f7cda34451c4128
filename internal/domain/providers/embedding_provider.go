package providers

import (
	"context"
	"errors"
)

// ErrEmbeddingUnauthorized is returned when the embeddings API rejects credentials.
var ErrEmbeddingUnauthorized = errors.New("embedding provider unauthorized")

// EmbeddingProvider turns free text into a dense vector.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
