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


package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/sheetvec/core"
	"github.com/poiesic/sheetvec/storage"
)

// DefaultMaxBatchSize is the largest batch UpsertVectors accepts by default.
const DefaultMaxBatchSize = 100

// Index implements storage.VectorIndex on BadgerDB.
// Similarity search is an exhaustive cosine scan over the namespace.
type Index struct {
	backend      *Backend
	maxBatchSize int
	autoCreate   bool
	ownsBackend  bool
	logger       *slog.Logger
}

var _ storage.VectorIndex = (*Index)(nil)

// IndexOption configures an Index.
type IndexOption func(*Index) error

// WithMaxBatchSize sets the largest accepted batch.
// Default is DefaultMaxBatchSize.
func WithMaxBatchSize(n int) IndexOption {
	return func(i *Index) error {
		if n < 1 {
			return fmt.Errorf("max batch size must be positive, got %d", n)
		}
		i.maxBatchSize = n
		return nil
	}
}

// WithAutoCreate controls whether Ensure creates absent namespaces.
// Default is true.
func WithAutoCreate(enabled bool) IndexOption {
	return func(i *Index) error {
		i.autoCreate = enabled
		return nil
	}
}

// WithOwnedBackend makes Close also close the backend.
func WithOwnedBackend() IndexOption {
	return func(i *Index) error {
		i.ownsBackend = true
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) IndexOption {
	return func(i *Index) error {
		if logger == nil {
			logger = slog.Default()
		}
		i.logger = logger
		return nil
	}
}

// newIndex is an internal constructor that returns the concrete type.
func newIndex(backend *Backend, opts ...IndexOption) (*Index, error) {
	if backend == nil {
		return nil, errors.New("backend required")
	}
	idx := &Index{
		backend:      backend,
		maxBatchSize: DefaultMaxBatchSize,
		autoCreate:   true,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(idx); err != nil {
			return nil, err
		}
	}
	idx.logger = idx.logger.With("component", "badger-index")
	return idx, nil
}

// NewIndex creates a vector index on an open backend.
//
// Returns storage.VectorIndex interface to enforce abstraction.
func NewIndex(backend *Backend, opts ...IndexOption) (storage.VectorIndex, error) {
	return newIndex(backend, opts...)
}

// OpenIndex opens (or creates) an on-disk index at path. Closing the index
// closes the database.
func OpenIndex(path string, opts ...IndexOption) (storage.VectorIndex, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	idx, err := newIndex(backend, append(opts, WithOwnedBackend())...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return idx, nil
}

// MaxBatchSize returns the largest batch UpsertVectors accepts.
func (i *Index) MaxBatchSize() int {
	return i.maxBatchSize
}

// Close closes the backend if the index owns it.
func (i *Index) Close() error {
	if i.ownsBackend && !i.backend.IsClosed() {
		return i.backend.Close()
	}
	return nil
}

// Ensure creates namespace if needed and checks its dimension.
func (i *Index) Ensure(ctx context.Context, namespace string, dimension int) (*core.NamespaceInfo, error) {
	if dimension <= 0 {
		return nil, &core.IndexConfigurationError{
			Namespace: namespace,
			Expected:  dimension,
			Reason:    fmt.Sprintf("dimension must be positive, got %d", dimension),
		}
	}

	var info *core.NamespaceInfo
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		existing, err := loadNamespace(tx, namespace)
		if err != nil && !errors.Is(err, storage.ErrNamespaceNotFound) {
			return err
		}
		if existing != nil {
			if existing.Dimension != dimension {
				return &core.IndexConfigurationError{
					Namespace: namespace,
					Expected:  dimension,
					Actual:    existing.Dimension,
				}
			}
			info = existing
			return nil
		}

		if !i.autoCreate {
			return &core.IndexConfigurationError{
				Namespace: namespace,
				Expected:  dimension,
				Reason:    "namespace does not exist and auto-create is disabled",
			}
		}

		info = &core.NamespaceInfo{
			Namespace: namespace,
			Dimension: dimension,
			CreatedAt: time.Now().UTC(),
		}
		value, err := storage.MarshalNamespaceInfo(info)
		if err != nil {
			return err
		}
		if err := tx.Set(makeNamespaceKey(namespace), value); err != nil {
			return err
		}
		i.logger.Info("created namespace", "namespace", namespace, "dimension", dimension)
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}

	count, err := i.count(namespace)
	if err != nil {
		return nil, err
	}
	info.VectorCount = count
	return info, nil
}

// UpsertVectors writes vectors in one transaction.
func (i *Index) UpsertVectors(ctx context.Context, namespace string, vectors []core.Vector) error {
	if len(vectors) > i.maxBatchSize {
		return fmt.Errorf("%w: %d vectors, maximum is %d", storage.ErrBatchTooLarge, len(vectors), i.maxBatchSize)
	}
	if len(vectors) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return i.backend.WithTx(func(tx *badger.Txn) error {
		info, err := loadNamespace(tx, namespace)
		if err != nil {
			if errors.Is(err, storage.ErrNamespaceNotFound) {
				return &core.IndexConfigurationError{Namespace: namespace, Reason: "namespace does not exist"}
			}
			return err
		}

		for idx := range vectors {
			v := &vectors[idx]
			if err := core.ValidateVector(v, info.Dimension); err != nil {
				var cfgErr *core.IndexConfigurationError
				if errors.As(err, &cfgErr) {
					cfgErr.Namespace = namespace
				}
				return err
			}
			value, err := storage.MarshalVector(v)
			if err != nil {
				return err
			}
			if err := tx.Set(makeVectorKey(namespace, v.Id), value); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Query runs an exhaustive cosine similarity scan over the namespace.
func (i *Index) Query(ctx context.Context, namespace string, vector []float32, topK int, minScore float32) ([]core.Match, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", storage.ErrInvalidQuery)
	}

	var results []core.Match
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		info, err := loadNamespace(tx, namespace)
		if err != nil {
			return err
		}
		if len(vector) != info.Dimension {
			return &core.IndexConfigurationError{
				Namespace: namespace,
				Expected:  len(vector),
				Actual:    info.Dimension,
			}
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeVectorPrefix(namespace)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var stored *core.Vector
			err := iter.Item().Value(func(val []byte) error {
				var err error
				stored, err = storage.UnmarshalVector(val)
				return err
			})
			if err != nil {
				return err
			}

			score := cosineSimilarity(vector, stored.Values)
			if score >= minScore {
				results = append(results, core.Match{Vector: *stored, Score: score})
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending, id ascending on ties
	slices.SortFunc(results, func(a, b core.Match) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return strings.Compare(a.Vector.Id, b.Vector.Id)
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Describe returns the namespace metadata with a live vector count.
func (i *Index) Describe(ctx context.Context, namespace string) (*core.NamespaceInfo, error) {
	var info *core.NamespaceInfo
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		info, err = loadNamespace(tx, namespace)
		return err
	}, false)
	if err != nil {
		return nil, err
	}

	count, err := i.count(namespace)
	if err != nil {
		return nil, err
	}
	info.VectorCount = count
	return info, nil
}

// Namespaces lists every namespace with its vector count.
func (i *Index) Namespaces(ctx context.Context) ([]core.NamespaceInfo, error) {
	var out []core.NamespaceInfo
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(namespacePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				info, err := storage.UnmarshalNamespaceInfo(val)
				if err != nil {
					return err
				}
				out = append(out, *info)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	for idx := range out {
		count, err := i.count(out[idx].Namespace)
		if err != nil {
			return nil, err
		}
		out[idx].VectorCount = count
	}
	return out, nil
}

// Scan pages through a namespace in id order.
func (i *Index) Scan(ctx context.Context, namespace, afterID string, limit int) ([]core.Vector, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}

	var out []core.Vector
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		if _, err := loadNamespace(tx, namespace); err != nil {
			return err
		}

		prefix := makeVectorPrefix(namespace)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		start := prefix
		if afterID != "" {
			start = makeVectorKey(namespace, afterID)
		}
		for iter.Seek(start); iter.Valid() && len(out) < limit; iter.Next() {
			if afterID != "" && bytes.Equal(iter.Item().Key(), start) {
				continue
			}
			err := iter.Item().Value(func(val []byte) error {
				v, err := storage.UnmarshalVector(val)
				if err != nil {
					return err
				}
				out = append(out, *v)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	return out, err
}

// count returns the number of vectors stored in namespace.
func (i *Index) count(namespace string) (int, error) {
	count := 0
	err := i.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeVectorPrefix(namespace)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// loadNamespace reads namespace metadata.
// Returns storage.ErrNamespaceNotFound if the namespace doesn't exist.
func loadNamespace(tx *badger.Txn, namespace string) (*core.NamespaceInfo, error) {
	item, err := tx.Get(makeNamespaceKey(namespace))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %q", storage.ErrNamespaceNotFound, namespace)
		}
		return nil, err
	}

	var info *core.NamespaceInfo
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		info, unmarshalErr = storage.UnmarshalNamespaceInfo(val)
		return unmarshalErr
	})
	return info, err
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0
// when either has zero length.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
