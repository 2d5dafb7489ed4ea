package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/sheetvec/ai"
	"github.com/poiesic/sheetvec/core"
	"github.com/poiesic/sheetvec/document"
	"github.com/poiesic/sheetvec/splitter"
	"github.com/poiesic/sheetvec/storage"
)

// Fetcher retrieves the records of a tabular source.
type Fetcher interface {
	Fetch(ctx context.Context, url string, limit int) ([]core.SourceRecord, error)
}

// DocumentBuilder turns source records into documents.
type DocumentBuilder interface {
	BuildAll(sourceURL string, records []core.SourceRecord) []core.Document
}

// IngestRequest describes one ingestion.
type IngestRequest struct {
	URL string
	// Limit caps the decoded records. Zero uses the fetcher default.
	Limit int
	// Namespace selects the destination. Empty uses the pipeline default.
	Namespace string
	Options   core.IngestOptions
}

// Pipeline orchestrates fetch, build, split, embed and upsert for one source at a time.
// It is safe to run several ingestions concurrently; they share the embedding pool
// and therefore the embedder's rate limiter.
type Pipeline struct {
	fetcher          Fetcher
	builder          DocumentBuilder
	index            storage.VectorIndex
	runs             storage.RunRepository
	embeddingPool    *ants.Pool
	embeddingStage   *embeddingStage
	upserter         *BatchUpserter
	upserterOpts     []UpserterOption
	dimensions       int
	batchSize        int
	defaultNamespace string
	progress         ProgressFunc
	logger           *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent embedding calls.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		if p.embeddingPool != nil {
			p.embeddingPool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.embeddingPool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithBuilder replaces the default whole-record document builder.
func WithBuilder(builder DocumentBuilder) Option {
	return func(p *Pipeline) error {
		if builder == nil {
			return ErrBuilderRequired
		}
		p.builder = builder
		return nil
	}
}

// WithRunRepository persists every state transition of every run.
func WithRunRepository(runs storage.RunRepository) Option {
	return func(p *Pipeline) error {
		p.runs = runs
		return nil
	}
}

// WithBatchSize sets the number of vectors per index write.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size <= 0 {
			return &core.ValidationError{Field: "batchSize", Reason: "must be greater than 0"}
		}
		p.batchSize = size
		return nil
	}
}

// WithNamespace sets the namespace used when a request names none.
func WithNamespace(namespace string) Option {
	return func(p *Pipeline) error {
		p.defaultNamespace = namespace
		return nil
	}
}

// WithUpserterOptions configures the batch upserter.
func WithUpserterOptions(opts ...UpserterOption) Option {
	return func(p *Pipeline) error {
		p.upserterOpts = append(p.upserterOpts, opts...)
		return nil
	}
}

// WithProgress registers a callback invoked after every embedded chunk and
// every written batch.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) error {
		p.progress = fn
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	fetcher Fetcher,
	index storage.VectorIndex,
	provider ai.AIProvider,
	opts ...Option,
) (*Pipeline, error) {
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	embeddingPool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		fetcher:       fetcher,
		index:         index,
		embeddingPool: embeddingPool,
		dimensions:    provider.Dimensions(),
		batchSize:     DefaultBatchSize,
		logger:        slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	if p.builder == nil {
		builder, err := document.NewBuilder(document.WithLogger(p.logger))
		if err != nil {
			p.Release()
			return nil, err
		}
		p.builder = builder
	}

	// Stages are created after options are applied so they get the final config
	p.embeddingStage, err = newEmbeddingStage(p.embeddingPool, provider.Embedder(), p.logger)
	if err != nil {
		p.Release()
		return nil, err
	}
	p.embeddingStage.progress = p.progress

	p.upserter, err = NewBatchUpserter(index, append([]UpserterOption{WithUpserterLogger(p.logger), WithBatchProgress(p.progress)}, p.upserterOpts...)...)
	if err != nil {
		p.Release()
		return nil, err
	}

	return p, nil
}

// Upserter returns the pipeline's batch upserter, for resubmitting a failed batch.
func (p *Pipeline) Upserter() *BatchUpserter {
	return p.upserter
}

// Ingest runs one ingestion to completion.
// The returned documents are the chunks of the first built document.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*core.IngestResult, error) {
	namespace := req.Namespace
	if namespace == "" {
		namespace = p.defaultNamespace
	}

	r := p.newRun(req.URL, namespace)
	logger := p.logger.With("run", r.run.Id, "namespace", namespace)
	r.logger = logger

	result := &core.IngestResult{RunID: r.run.Id, Documents: []core.Document{}}

	split, err := splitter.FromOptions(req.Options)
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	logger.Info("ingestion started", "url", req.URL, "method", req.Options.SplittingMethod,
		"chunkSize", req.Options.ChunkSize, "chunkOverlap", req.Options.ChunkOverlap)

	// Fetching
	if err := r.advance(ctx, core.RunFetching); err != nil {
		return nil, err
	}
	records, err := p.fetcher.Fetch(ctx, req.URL, req.Limit)
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	r.run.Records = len(records)
	result.Records = len(records)

	// Building
	if err := r.advance(ctx, core.RunBuilding); err != nil {
		return nil, err
	}
	docs := p.builder.BuildAll(req.URL, records)
	r.run.Documents = len(docs)
	result.DocumentCount = len(docs)

	// Splitting
	if err := r.advance(ctx, core.RunSplitting); err != nil {
		return nil, err
	}
	var chunks []core.Chunk
	seen := make(map[string]struct{})
	for i, doc := range docs {
		docChunks, err := split.Split(doc)
		if err != nil {
			return nil, r.fail(ctx, err)
		}
		if i == 0 {
			for _, c := range docChunks {
				result.Documents = append(result.Documents, c.AsDocument())
			}
		}
		for _, c := range docChunks {
			// Identical text maps to the same vector id
			if _, dup := seen[c.Hash()]; dup {
				continue
			}
			seen[c.Hash()] = struct{}{}
			chunks = append(chunks, c)
		}
	}
	r.run.Chunks = len(chunks)
	result.ChunkCount = len(chunks)

	// Embedding
	if err := r.advance(ctx, core.RunEmbedding); err != nil {
		return nil, err
	}
	var vectors []core.Vector
	if len(chunks) > 0 {
		if _, err := p.index.Ensure(ctx, namespace, p.dimensions); err != nil {
			return nil, r.fail(ctx, err)
		}
		vectors, err = p.embeddingStage.embed(ctx, chunks)
		if err != nil {
			return nil, r.fail(ctx, err)
		}
	}
	result.VectorCount = len(vectors)

	// Upserting
	if err := r.advance(ctx, core.RunUpserting); err != nil {
		return nil, err
	}
	report, err := p.upserter.UpsertWithReport(ctx, vectors, namespace, p.batchSize)
	r.run.BatchesTotal = report.Batches
	r.run.BatchesWritten = report.Written
	if err != nil {
		return nil, r.fail(ctx, err)
	}
	result.Batches = report.Batches

	if err := r.advance(ctx, core.RunDone); err != nil {
		return nil, err
	}
	logger.Info("ingestion finished", "records", result.Records, "documents", result.DocumentCount,
		"chunks", result.ChunkCount, "batches", result.Batches, "elapsed", time.Since(r.run.StartedAt))
	return result, nil
}

// Release releases resources including worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.embeddingPool != nil {
		p.embeddingPool.Release()
	}
}

// runTracker moves one run through its states, logging and persisting each step.
type runTracker struct {
	run    *core.IngestionRun
	runs   storage.RunRepository
	logger *slog.Logger
}

func (p *Pipeline) newRun(url, namespace string) *runTracker {
	now := time.Now().UTC()
	return &runTracker{
		run: &core.IngestionRun{
			Id:          uuid.NewString(),
			SourceURL:   url,
			Namespace:   namespace,
			State:       core.RunPending,
			FailedBatch: -1,
			StartedAt:   now,
			UpdatedAt:   now,
		},
		runs:   p.runs,
		logger: p.logger,
	}
}

func (r *runTracker) advance(ctx context.Context, next core.RunState) error {
	if !r.run.State.CanTransition(next) {
		return r.fail(ctx, fmt.Errorf("illegal run transition from %s to %s", r.run.State, next))
	}
	r.logger.Debug("run transition", "from", r.run.State, "to", next)
	r.run.State = next
	r.save(ctx)
	return nil
}

// fail records err against the current stage and returns it unchanged.
func (r *runTracker) fail(ctx context.Context, err error) error {
	stage := r.run.State
	r.run.FailedStage = stage
	r.run.State = core.RunFailed
	r.run.Error = err.Error()

	var writeErr *core.IndexWriteError
	if errors.As(err, &writeErr) {
		r.run.FailedBatch = writeErr.Batch
	}

	r.logger.Error("ingestion failed", "stage", stage, "err", err)
	// The run record must land even when the request context is gone
	r.save(context.WithoutCancel(ctx))
	return err
}

func (r *runTracker) save(ctx context.Context) {
	if r.runs == nil {
		return
	}
	if err := r.runs.SaveRun(ctx, r.run); err != nil {
		r.logger.Warn("failed to persist run", "state", r.run.State, "err", err)
	}
}
