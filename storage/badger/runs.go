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
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/sheetvec/core"
	"github.com/poiesic/sheetvec/storage"
)

// RunRepository implements storage.RunRepository for BadgerDB.
type RunRepository struct {
	backend *Backend
}

var _ storage.RunRepository = (*RunRepository)(nil)

// NewRunRepository creates a new RunRepository.
func NewRunRepository(backend *Backend) *RunRepository {
	return &RunRepository{
		backend: backend,
	}
}

// SaveRun persists a run, replacing any previous state.
func (r *RunRepository) SaveRun(ctx context.Context, run *core.IngestionRun) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		run.UpdatedAt = time.Now().UTC()
		value, err := storage.MarshalRun(run)
		if err != nil {
			return err
		}
		if err := tx.Set(makeRunKey(run.Id), value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetRun retrieves a run by id.
func (r *RunRepository) GetRun(ctx context.Context, id string) (*core.IngestionRun, error) {
	var run *core.IngestionRun
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeRunKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}

		return item.Value(func(val []byte) error {
			var unmarshalErr error
			run, unmarshalErr = storage.UnmarshalRun(val)
			return unmarshalErr
		})
	}, false)

	return run, err
}

// ListRuns returns up to limit runs, most recently started first.
// A limit of zero or less returns every run.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]*core.IngestionRun, error) {
	var runs []*core.IngestionRun
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(runPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				run, err := storage.UnmarshalRun(val)
				if err != nil {
					return err
				}
				runs = append(runs, run)
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

	slices.SortFunc(runs, func(a, b *core.IngestionRun) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
