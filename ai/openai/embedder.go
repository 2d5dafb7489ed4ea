package openai

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/poiesic/sheetvec/ai"
	"github.com/poiesic/sheetvec/core"
	"github.com/poiesic/sheetvec/ratelimit"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// rateLimitedBackoff is how long every dispatch pauses after the service answers 429.
const rateLimitedBackoff = 2 * time.Second

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder   embeddings.Embedder
	limiter    *ratelimit.Limiter
	dimensions int
	timeout    time.Duration
	logger     *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config, limiter *ratelimit.Limiter) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if limiter == nil {
		return nil, ai.ErrLimiterRequired
	}

	// Local OpenAI-compatible services don't require authentication but langchaingo wants a token
	token := config.APIKey
	if token == "" {
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.EmbeddingModel),
		openai.WithHTTPClient(&http.Client{Timeout: config.RequestTimeout}),
	)
	if err != nil {
		return nil, err
	}

	// Newlines are replaced by spaces before the text is sent
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder:   embedder,
		limiter:    limiter,
		dimensions: config.Dimensions,
		timeout:    config.RequestTimeout,
		logger:     slog.Default().With("component", "openai-embedder"),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
// Every call waits on limiter before it is dispatched.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config, limiter *ratelimit.Limiter) (ai.Embedder, error) {
	return newEmbedder(config, limiter)
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("generating embedding for single text", "length", len(text))

	vectors, err := e.dispatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in one request.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("generating embeddings for texts", "count", len(texts))
	return e.dispatch(ctx, texts)
}

func (e *Embedder) dispatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, &core.EmbeddingServiceError{Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		if rateLimited(err) {
			e.limiter.Backoff(rateLimitedBackoff)
		}
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
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

// rateLimited reports whether err is the service refusing a request for
// exceeding its rate limit.
func rateLimited(err error) bool {
	return llms.IsRateLimitError(openai.MapError(err))
}
