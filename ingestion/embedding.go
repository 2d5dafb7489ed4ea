package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/sheetvec/ai"
	"github.com/poiesic/sheetvec/core"
)

// embeddingStage embeds chunks concurrently on a worker pool.
type embeddingStage struct {
	pool     *ants.Pool
	embedder ai.Embedder
	progress ProgressFunc
	logger   *slog.Logger
}

func newEmbeddingStage(pool *ants.Pool, embedder ai.Embedder, logger *slog.Logger) (*embeddingStage, error) {
	if pool == nil {
		return nil, errors.New("worker pool required")
	}
	if embedder == nil {
		return nil, errors.New("embedder required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &embeddingStage{
		pool:     pool,
		embedder: embedder,
		logger:   logger.With("stage", "embedding"),
	}, nil
}

// embed returns one vector per chunk, in chunk order.
// The first failure cancels the outstanding calls and is returned as
// *core.EmbeddingServiceError naming the chunk and its source.
func (s *embeddingStage) embed(ctx context.Context, chunks []core.Chunk) ([]core.Vector, error) {
	if len(chunks) == 0 {
		return []core.Vector{}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		done     int
	)
	results := make([]core.Vector, len(chunks))

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	s.logger.Info("embedding chunks", "chunks", len(chunks))

	for i, chunk := range chunks {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			values, err := s.embedder.EmbedText(ctx, chunk.Text)
			if err != nil {
				fail(chunkError(chunk, err))
				return
			}
			results[i] = core.VectorFromChunk(chunk, values)

			if s.progress != nil {
				mu.Lock()
				done++
				s.progress(core.RunEmbedding, done, len(chunks))
				mu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			fail(chunkError(chunk, err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		s.logger.Error("embedding failed", "err", firstErr)
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, &core.EmbeddingServiceError{Err: err}
	}
	return results, nil
}

// chunkError attaches the chunk identity to an embedding failure.
func chunkError(chunk core.Chunk, err error) error {
	source := chunk.Metadata[core.MetaSourceURL]
	var svcErr *core.EmbeddingServiceError
	if errors.As(err, &svcErr) {
		return &core.EmbeddingServiceError{ChunkHash: chunk.Hash(), Source: source, Err: svcErr.Err}
	}
	return &core.EmbeddingServiceError{ChunkHash: chunk.Hash(), Source: source, Err: err}
}
