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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/poiesic/sheetvec/core"
	"github.com/poiesic/sheetvec/ratelimit"
	"github.com/poiesic/sheetvec/storage"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of vectors written per index request.
const DefaultBatchSize = 10

// UpsertReport summarizes one Upsert call.
type UpsertReport struct {
	Batches int
	Written int
	Vectors int
}

// BatchUpserter partitions vectors into batches and writes them to a VectorIndex.
type BatchUpserter struct {
	index       storage.VectorIndex
	concurrency int
	limiter     *ratelimit.Limiter
	maxAttempts int
	baseDelay   time.Duration
	progress    ProgressFunc
	logger      *slog.Logger
}

// UpserterOption configures a BatchUpserter.
type UpserterOption func(*BatchUpserter) error

// WithWriteConcurrency sets how many batches may be in flight at once.
// Default is 1, which writes batches strictly in order.
func WithWriteConcurrency(n int) UpserterOption {
	return func(u *BatchUpserter) error {
		if n < 1 {
			return ErrInvalidConcurrency
		}
		u.concurrency = n
		return nil
	}
}

// WithWriteLimiter paces index writes. Nil disables pacing.
func WithWriteLimiter(limiter *ratelimit.Limiter) UpserterOption {
	return func(u *BatchUpserter) error {
		u.limiter = limiter
		return nil
	}
}

// WithWriteRetry retries failed batch writes with exponential backoff.
// Configuration errors are never retried.
func WithWriteRetry(maxAttempts int, baseDelay time.Duration) UpserterOption {
	return func(u *BatchUpserter) error {
		if maxAttempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		u.maxAttempts = maxAttempts
		u.baseDelay = baseDelay
		return nil
	}
}

// WithBatchProgress reports each written batch as RunUpserting progress.
func WithBatchProgress(fn ProgressFunc) UpserterOption {
	return func(u *BatchUpserter) error {
		u.progress = fn
		return nil
	}
}

// WithUpserterLogger sets a custom logger.
func WithUpserterLogger(logger *slog.Logger) UpserterOption {
	return func(u *BatchUpserter) error {
		if logger == nil {
			logger = slog.Default()
		}
		u.logger = logger.With("component", "upserter")
		return nil
	}
}

// NewBatchUpserter creates a BatchUpserter writing to index.
func NewBatchUpserter(index storage.VectorIndex, opts ...UpserterOption) (*BatchUpserter, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	u := &BatchUpserter{
		index:       index,
		concurrency: 1,
		maxAttempts: 1,
		baseDelay:   100 * time.Millisecond,
		logger:      slog.Default().With("component", "upserter"),
	}
	for _, opt := range opts {
		if err := opt(u); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// Batches splits vectors into consecutive slices of at most size elements.
// The slices share the backing array of vectors.
func Batches(vectors []core.Vector, size int) [][]core.Vector {
	if size <= 0 || len(vectors) == 0 {
		return nil
	}
	out := make([][]core.Vector, 0, (len(vectors)+size-1)/size)
	for start := 0; start < len(vectors); start += size {
		end := min(start+size, len(vectors))
		out = append(out, vectors[start:end])
	}
	return out
}

// Upsert writes vectors to namespace in batches of at most batchSize.
func (u *BatchUpserter) Upsert(ctx context.Context, vectors []core.Vector, namespace string, batchSize int) error {
	_, err := u.UpsertWithReport(ctx, vectors, namespace, batchSize)
	return err
}

// UpsertWithReport is Upsert that also reports how many batches were written.
// Batches that succeeded before a failure stay written.
func (u *BatchUpserter) UpsertWithReport(ctx context.Context, vectors []core.Vector, namespace string, batchSize int) (UpsertReport, error) {
	report := UpsertReport{Vectors: len(vectors)}
	if err := u.checkBatchSize(batchSize); err != nil {
		return report, err
	}

	batches := Batches(vectors, batchSize)
	report.Batches = len(batches)
	if len(batches) == 0 {
		return report, nil
	}

	u.logger.Debug("upserting vectors", "namespace", namespace, "vectors", len(vectors), "batches", len(batches))

	var (
		mu      sync.Mutex
		written int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			// A failed batch stops every batch not yet started
			if gctx.Err() != nil {
				return nil
			}
			if err := u.WriteBatch(gctx, namespace, i, batch); err != nil {
				return err
			}
			mu.Lock()
			written++
			if u.progress != nil {
				u.progress(core.RunUpserting, written, len(batches))
			}
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	report.Written = written
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return report, err
}

// WriteBatch writes one batch. index is the batch position used in error reports,
// so a failed batch can be resubmitted on its own.
func (u *BatchUpserter) WriteBatch(ctx context.Context, namespace string, index int, batch []core.Vector) error {
	if len(batch) == 0 {
		return nil
	}
	if err := u.checkBatchSize(len(batch)); err != nil {
		return err
	}

	write := func() error {
		if u.limiter != nil {
			if err := u.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		return u.index.UpsertVectors(ctx, namespace, batch)
	}

	err := RetryWithBackoff(ctx, write, u.maxAttempts, u.baseDelay)
	if err == nil {
		return nil
	}

	// Configuration and validation failures are fatal and pass through as is
	if errors.Is(err, core.ErrIndexConfiguration) || errors.Is(err, core.ErrValidation) {
		u.logger.Error("batch rejected", "namespace", namespace, "batch", index, "err", err)
		return err
	}

	u.logger.Error("batch write failed", "namespace", namespace, "batch", index, "count", len(batch), "err", err)
	return &core.IndexWriteError{
		Namespace: namespace,
		Batch:     index,
		FirstID:   batch[0].Id,
		LastID:    batch[len(batch)-1].Id,
		Count:     len(batch),
		Err:       err,
	}
}

func (u *BatchUpserter) checkBatchSize(batchSize int) error {
	if batchSize <= 0 {
		return &core.ValidationError{Field: "batchSize", Reason: "must be greater than 0"}
	}
	if limit := u.index.MaxBatchSize(); limit > 0 && batchSize > limit {
		return &core.ValidationError{
			Field:  "batchSize",
			Reason: fmt.Sprintf("%d exceeds the index limit of %d", batchSize, limit),
			Err:    storage.ErrBatchTooLarge,
		}
	}
	return nil
}
