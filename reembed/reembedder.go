// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package reembed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/sheetvec/ai"
	"github.com/poiesic/sheetvec/core"
	"github.com/poiesic/sheetvec/ingestion"
	"github.com/poiesic/sheetvec/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of vectors read and embedded in each batch
	BatchSize int

	// WriteBatchSize is the number of vectors per index write
	WriteBatchSize int

	// ReportInterval is how often to report progress (number of vectors)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		WriteBatchSize: ingestion.DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder re-embeds every vector of a namespace from its stored chunk text.
type Reembedder struct {
	index      storage.VectorIndex
	embedder   ai.Embedder
	dimensions int
	config     *Config
	progress   io.Writer
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(index storage.VectorIndex, provider ai.AIProvider, config *Config, progress io.Writer) (*Reembedder, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		index:      index,
		embedder:   provider.Embedder(),
		dimensions: provider.Dimensions(),
		config:     config,
		progress:   progress,
	}, nil
}

// Run re-embeds every vector of source into target. An empty target
// rewrites source in place, which requires the embedder to keep the
// namespace dimension.
func (r *Reembedder) Run(ctx context.Context, source, target string) error {
	if source == "" {
		return ErrSourceNamespaceRequired
	}
	if target == "" {
		target = source
	}

	info, err := r.index.Describe(ctx, source)
	if err != nil {
		return fmt.Errorf("failed to describe namespace %q: %w", source, err)
	}

	total := info.VectorCount
	if total == 0 {
		fmt.Fprintf(r.progress, "No vectors found in namespace %q (0 vectors)\n", source)
		return nil
	}

	// Fail on a dimension mismatch before the first embedding call
	if _, err := r.index.Ensure(ctx, target, r.dimensions); err != nil {
		return err
	}

	upserter, err := ingestion.NewBatchUpserter(r.index, ingestion.WithWriteRetry(r.config.MaxRetries, r.config.RetryDelay))
	if err != nil {
		return err
	}
	processor := NewBatchProcessor(r.embedder, upserter, target, r.config.WriteBatchSize, r.config.MaxRetries, r.config.RetryDelay)
	iterator := NewVectorIterator(r.index, source, r.config.BatchSize)

	fmt.Fprintf(r.progress, "Starting reembedding of %d vectors from %q into %q (batch size: %d)\n",
		total, source, target, r.config.BatchSize)

	reporter := ingestion.NewStageReporter(r.progress, r.config.ReportInterval)
	defer reporter.Close()
	start := time.Now()

	processed, written := 0, 0
	err = iterator.ForEach(ctx, func(vectors []core.Vector) error {
		n, err := processor.Process(ctx, vectors)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}

		processed += len(vectors)
		written += n
		reporter.Report(core.RunEmbedding, processed, total)
		return nil
	})
	if err != nil {
		return err
	}

	reporter.Close()

	elapsed := time.Since(start)
	fmt.Fprintf(r.progress, "Reembedding complete. Wrote %d of %d vectors in %v (%.1f vectors/sec)\n",
		written, processed, elapsed.Round(time.Second), float64(processed)/elapsed.Seconds())

	return nil
}
