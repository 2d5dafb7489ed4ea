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

	"github.com/poiesic/sheetvec/core"
	"github.com/poiesic/sheetvec/storage"
)

const (
	// DefaultBatchSize is the default number of vectors to fetch in each batch
	DefaultBatchSize = 100
)

// VectorIterator pages through every vector of a namespace in id order.
type VectorIterator struct {
	index     storage.VectorIndex
	namespace string
	batchSize int
}

// NewVectorIterator creates a new vector iterator.
// batchSize: number of vectors to fetch in each batch (defaults when <= 0)
func NewVectorIterator(index storage.VectorIndex, namespace string, batchSize int) *VectorIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &VectorIterator{
		index:     index,
		namespace: namespace,
		batchSize: batchSize,
	}
}

// ForEach calls fn for each page of vectors.
// Iteration stops on first error from fn or when the namespace is exhausted.
// Context cancellation is checked between batches.
func (it *VectorIterator) ForEach(ctx context.Context, fn func([]core.Vector) error) error {
	afterID := ""
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		page, err := it.index.Scan(ctx, it.namespace, afterID, it.batchSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}

		// Remember the cursor before fn can touch the page
		afterID = page[len(page)-1].Id

		if err := fn(page); err != nil {
			return err
		}

		if len(page) < it.batchSize {
			return nil
		}
	}
}
