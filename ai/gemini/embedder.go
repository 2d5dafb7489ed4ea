package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/poiesic/sheetvec/ai"
	"github.com/poiesic/sheetvec/core"
	"github.com/poiesic/sheetvec/ratelimit"
)

// batchEmbedder sends one batch of texts to the embedding model.
type batchEmbedder interface {
	embedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// modelBatcher adapts a genai embedding model to batchEmbedder.
type modelBatcher struct {
	model *genai.EmbeddingModel
}

func (m *modelBatcher) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	batch := m.model.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := m.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini batch embed: %w", err)
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		if e == nil {
			out = append(out, nil)
			continue
		}
		out = append(out, e.Values)
	}
	return out, nil
}

// Embedder implements ai.Embedder on top of Gemini embedding models.
type Embedder struct {
	batcher    batchEmbedder
	limiter    *ratelimit.Limiter
	dimensions int
	timeout    time.Duration
	logger     *slog.Logger
}

func newEmbedder(batcher batchEmbedder, config *ai.Config, limiter *ratelimit.Limiter) (*Embedder, error) {
	if limiter == nil {
		return nil, ai.ErrLimiterRequired
	}
	return &Embedder{
		batcher:    batcher,
		limiter:    limiter,
		dimensions: config.Dimensions,
		timeout:    config.RequestTimeout,
		logger:     slog.Default().With("component", "gemini-embedder"),
	}, nil
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.dispatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts embeds all texts in one batch request.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	return e.dispatch(ctx, texts)
}

func (e *Embedder) dispatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, &core.EmbeddingServiceError{Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cleaned := make([]string, len(texts))
	for i, t := range texts {
		cleaned[i] = strings.ReplaceAll(t, "\n", " ")
	}

	e.logger.Debug("generating embeddings", "count", len(cleaned))
	vectors, err := e.batcher.embedBatch(ctx, cleaned)
	if err != nil {
		if strings.Contains(err.Error(), "ResourceExhausted") || strings.Contains(err.Error(), "429") {
			e.limiter.Backoff(2 * time.Second)
		}
		return nil, &core.EmbeddingServiceError{Err: err}
	}

	if len(vectors) != len(texts) {
		return nil, &core.EmbeddingServiceError{
			Err: fmt.Errorf("%w: expected %d vectors, received %d", ai.ErrMalformedResponse, len(texts), len(vectors)),
		}
	}
	for i, v := range vectors {
		if err := ai.CheckVector(v, e.dimensions); err != nil {
			return nil, &core.EmbeddingServiceError{Err: fmt.Errorf("vector %d: %w", i, err)}
		}
	}
	return vectors, nil
}
