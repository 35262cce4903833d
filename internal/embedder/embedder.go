// Package embedder implements spec.md §4.3: text-to-vector embedding
// with bounded concurrency and retry. Interface grounded on
// internal/rag/embedder/embedder.go.
package embedder

import (
	"context"
)

// Embedder converts text into dense vectors.
type Embedder interface {
	// EmbedBatch returns one vector per input text, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns a model identifier string.
	Name() string
	// Dimension returns the embedding dimensionality.
	Dimension() int
	// Ping checks that the embedding backend is reachable.
	Ping(ctx context.Context) error
}
