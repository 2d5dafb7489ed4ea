package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/poiesic/sheetvec/ai"
	"github.com/poiesic/sheetvec/core"
	"github.com/poiesic/sheetvec/storage"
)

// Retrieval defaults.
const (
	DefaultTopK             = 3
	DefaultMinScore float32 = 0.7
	DefaultMaxContextLength = 3000
)

// Retriever turns a question into context text drawn from one namespace.
type Retriever struct {
	index     storage.VectorIndex
	embedder  ai.Embedder
	namespace string
	topK      int
	minScore  float32
	maxLength int
	logger    *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithNamespace sets the namespace queried.
func WithNamespace(namespace string) Option {
	return func(r *Retriever) error {
		r.namespace = namespace
		return nil
	}
}

// WithTopK sets the maximum number of matches considered.
func WithTopK(k int) Option {
	return func(r *Retriever) error {
		if k <= 0 {
			return &core.ValidationError{Field: "topK", Reason: "must be greater than 0"}
		}
		r.topK = k
		return nil
	}
}

// WithMinScore sets the similarity a match needs to contribute context.
func WithMinScore(score float32) Option {
	return func(r *Retriever) error {
		if score < -1 || score > 1 {
			return &core.ValidationError{Field: "minScore", Reason: "must be between -1 and 1"}
		}
		r.minScore = score
		return nil
	}
}

// WithMaxContextLength bounds the context in characters.
func WithMaxContextLength(n int) Option {
	return func(r *Retriever) error {
		if n <= 0 {
			return &core.ValidationError{Field: "maxContextLength", Reason: "must be greater than 0"}
		}
		r.maxLength = n
		return nil
	}
}

// NewRetriever creates a new retriever.
func NewRetriever(index storage.VectorIndex, provider ai.AIProvider, opts ...Option) (*Retriever, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	r := &Retriever{
		index:     index,
		embedder:  provider.Embedder(),
		topK:      DefaultTopK,
		minScore:  DefaultMinScore,
		maxLength: DefaultMaxContextLength,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "retriever")

	return r, nil
}

// Namespace returns the namespace the retriever reads from.
func (r *Retriever) Namespace() string {
	return r.namespace
}

// Matches returns the scored matches for query, best first.
func (r *Retriever) Matches(ctx context.Context, query string) ([]core.Match, error) {
	return r.matches(ctx, query, &noopMonitor{})
}

// Context returns the stored chunk text of the best matches joined by newlines,
// cut to the maximum context length.
func (r *Retriever) Context(ctx context.Context, query string) (string, error) {
	return r.ContextWithMonitor(ctx, query, nil)
}

// ContextWithMonitor is Context with a monitor observing each step.
func (r *Retriever) ContextWithMonitor(ctx context.Context, query string, monitor RetrievalMonitor) (string, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	matches, err := r.matches(ctx, query, monitor)
	if err != nil {
		return "", err
	}

	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		text := m.Vector.Metadata[core.MetaChunk]
		if text == "" {
			continue
		}
		if coversQuery(text, query) {
			monitor.VerbatimHit(m)
		}
		texts = append(texts, text)
	}

	result := truncateRunes(strings.Join(texts, "\n"), r.maxLength)
	monitor.Finish(result)
	return result, nil
}

func (r *Retriever) matches(ctx context.Context, query string, monitor RetrievalMonitor) ([]core.Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	monitor.Start(query)

	embedding, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		r.logger.Error("error generating embedding for query", "err", err)
		return nil, err
	}
	monitor.AfterEmbedding(len(embedding))

	matches, err := r.index.Query(ctx, r.namespace, embedding, r.topK, r.minScore)
	if errors.Is(err, storage.ErrNamespaceNotFound) {
		r.logger.Warn("namespace has not been ingested", "namespace", r.namespace)
		matches, err = []core.Match{}, nil
	}
	if err != nil {
		r.logger.Error("error querying for similar chunks", "namespace", r.namespace, "err", err)
		return nil, err
	}

	r.logger.Debug("retrieved matches", "namespace", r.namespace, "matches", len(matches))
	monitor.AfterQuery(matches)
	return matches, nil
}

// truncateRunes cuts s to at most n characters.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
