package reembed

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/poiesic/sheetvec/ai"
	"github.com/poiesic/sheetvec/core"
	"github.com/poiesic/sheetvec/ingestion"
)

// BatchProcessor re-embeds one page of stored vectors into the target namespace.
type BatchProcessor struct {
	embedder       ai.Embedder
	upserter       *ingestion.BatchUpserter
	target         string
	writeBatchSize int
	maxRetries     int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for embedding API calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(embedder ai.Embedder, upserter *ingestion.BatchUpserter, target string, writeBatchSize, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		embedder:       embedder,
		upserter:       upserter,
		target:         target,
		writeBatchSize: writeBatchSize,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		logger:         slog.Default().With("component", "reembed"),
	}
}

// Process embeds the stored chunk text of each vector again and writes the
// normalized result under the same id. Vectors without chunk text are skipped.
// Returns the number of vectors written.
func (bp *BatchProcessor) Process(ctx context.Context, vectors []core.Vector) (int, error) {
	if len(vectors) == 0 {
		return 0, nil
	}

	texts := make([]string, 0, len(vectors))
	sources := make([]core.Vector, 0, len(vectors))
	for _, v := range vectors {
		text := v.Metadata[core.MetaChunk]
		if text == "" {
			bp.logger.Warn("skipping vector without chunk text", "id", v.Id)
			continue
		}
		texts = append(texts, text)
		sources = append(sources, v)
	}
	if len(texts) == 0 {
		return 0, nil
	}

	// Generate embeddings with retry
	var embeddings [][]float32
	err := ingestion.RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return 0, fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(texts) {
		return 0, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(embeddings))
	}

	out := make([]core.Vector, len(sources))
	for i, src := range sources {
		out[i] = core.Vector{
			Id:       src.Id,
			Values:   NormalizeVector(embeddings[i]),
			Metadata: maps.Clone(src.Metadata),
		}
	}

	if err := bp.upserter.Upsert(ctx, out, bp.target, bp.writeBatchSize); err != nil {
		return 0, fmt.Errorf("failed to write vectors: %w", err)
	}
	return len(out), nil
}
