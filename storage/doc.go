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


// Package storage provides the storage abstraction layer for sheetvec.
//
// This package defines the VectorIndex and RunRepository interfaces that
// decouple the ingestion pipeline from the index implementation, so that the
// embedded BadgerDB index and the Postgres/pgvector index can be used
// interchangeably.
//
// # Constructor Return Type Pattern
//
// Public constructors return interfaces:
//
//	index, err := badger.NewIndex(backend)  // returns storage.VectorIndex
//
// Internal package constructors (newIndex, newRunRepository, ...) may return
// concrete types since they're only used within the implementation package.
//
// # Namespaces
//
// Vectors live in namespaces. A namespace has a fixed dimension set when it
// is created; writes and queries of any other dimension are rejected with
// *core.IndexConfigurationError, which callers must treat as fatal. A failed
// batch write is reported by the caller as *core.IndexWriteError and may be
// retried by resubmitting the same batch.
//
// # Usage
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	index, err := badger.NewIndex(backend)
//	info, err := index.Ensure(ctx, "sheets", 1536)
//	err = index.UpsertVectors(ctx, "sheets", batch)
//	matches, err := index.Query(ctx, "sheets", queryVector, 3, 0.7)
//
// Use in tests with in-memory storage:
//
//	index, runs, backend, err := badger.NewMemoryIndex()
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
package storage
