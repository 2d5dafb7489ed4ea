package storage

import (
	"context"

	"github.com/poiesic/sheetvec/core"
)

// VectorIndex stores embedding vectors grouped into namespaces.
// Implementations must be thread-safe and support concurrent access.
type VectorIndex interface {
	// Ensure makes sure namespace exists with the given dimension.
	// An absent namespace is created unless the index was opened without
	// auto-create. A namespace with a different dimension yields
	// *core.IndexConfigurationError.
	Ensure(ctx context.Context, namespace string, dimension int) (*core.NamespaceInfo, error)

	// UpsertVectors writes one batch of vectors in a single request.
	// Vectors with an existing id are replaced. Batches larger than
	// MaxBatchSize fail with ErrBatchTooLarge. An absent namespace or a
	// vector of the wrong dimension yields *core.IndexConfigurationError.
	UpsertVectors(ctx context.Context, namespace string, vectors []core.Vector) error

	// Query returns up to topK vectors whose cosine similarity to vector is
	// at least minScore, best first.
	Query(ctx context.Context, namespace string, vector []float32, topK int, minScore float32) ([]core.Match, error)

	// Describe returns the namespace metadata.
	// Returns ErrNamespaceNotFound if the namespace doesn't exist.
	Describe(ctx context.Context, namespace string) (*core.NamespaceInfo, error)

	// Namespaces lists every namespace in the index.
	Namespaces(ctx context.Context) ([]core.NamespaceInfo, error)

	// Scan returns up to limit vectors with ids strictly greater than
	// afterID, ordered by id. An empty afterID starts from the beginning.
	Scan(ctx context.Context, namespace, afterID string, limit int) ([]core.Vector, error)

	// MaxBatchSize is the largest batch UpsertVectors accepts.
	MaxBatchSize() int

	// Close releases resources held by the index.
	Close() error
}

// RunRepository persists ingestion runs.
type RunRepository interface {
	// SaveRun inserts or replaces a run. UpdatedAt is set automatically.
	SaveRun(ctx context.Context, run *core.IngestionRun) error

	// GetRun retrieves a run by id.
	// Returns ErrNotFound if the run doesn't exist.
	GetRun(ctx context.Context, id string) (*core.IngestionRun, error)

	// ListRuns returns up to limit runs, most recently started first.
	ListRuns(ctx context.Context, limit int) ([]*core.IngestionRun, error)
}
