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


package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every taxonomy error unwraps to exactly one of these.
var (
	// ErrFetch indicates the tabular source could not be read.
	ErrFetch = errors.New("fetch failed")

	// ErrEmbeddingService indicates the embedding service failed or returned a malformed payload.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrIndexConfiguration indicates a missing or mismatched namespace. Never retried.
	ErrIndexConfiguration = errors.New("index configuration error")

	// ErrIndexWrite indicates a single batch write failed. Retryable by resubmitting the batch.
	ErrIndexWrite = errors.New("index write failed")

	// ErrValidation indicates malformed ingestion options or domain values.
	ErrValidation = errors.New("validation failed")
)

// Domain validation errors
var (
	// ErrInvalidChunkSize indicates a non-positive chunk size.
	ErrInvalidChunkSize = errors.New("chunk size must be greater than 0")

	// ErrInvalidChunkOverlap indicates a negative overlap or one not smaller than the chunk size.
	ErrInvalidChunkOverlap = errors.New("chunk overlap must be between 0 and chunk size")

	// ErrInvalidSplittingMethod indicates an unknown splitting method.
	ErrInvalidSplittingMethod = errors.New("invalid splitting method")

	// ErrEmptyVectorID indicates a vector without an id.
	ErrEmptyVectorID = errors.New("vector id cannot be empty")

	// ErrEmptyVector indicates a vector without values.
	ErrEmptyVector = errors.New("vector values cannot be empty")
)

// FetchError reports a failure to retrieve or decode the tabular source.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrFetch, e.Err}
}

// EmbeddingServiceError reports a failed embedding call.
// ChunkHash and Source identify the chunk so it can be retried on its own.
type EmbeddingServiceError struct {
	ChunkHash string
	Source    string
	Err       error
}

func (e *EmbeddingServiceError) Error() string {
	if e.ChunkHash == "" {
		return fmt.Sprintf("embedding service: %v", e.Err)
	}
	return fmt.Sprintf("embedding service: chunk %s from %s: %v", e.ChunkHash, e.Source, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() []error {
	return []error{ErrEmbeddingService, e.Err}
}

// IndexConfigurationError reports an absent or dimensionally mismatched namespace.
type IndexConfigurationError struct {
	Namespace string
	Expected  int
	Actual    int
	Reason    string
}

func (e *IndexConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("index configuration: namespace %q: %s", e.Namespace, e.Reason)
	}
	return fmt.Sprintf("index configuration: namespace %q has dimension %d, expected %d", e.Namespace, e.Actual, e.Expected)
}

func (e *IndexConfigurationError) Unwrap() error {
	return ErrIndexConfiguration
}

// IndexWriteError reports a failed batch write with enough context to resubmit only that batch.
type IndexWriteError struct {
	Namespace string
	Batch     int
	FirstID   string
	LastID    string
	Count     int
	Err       error
}

func (e *IndexWriteError) Error() string {
	return fmt.Sprintf("index write: namespace %q batch %d (%d vectors, ids %s..%s): %v",
		e.Namespace, e.Batch, e.Count, e.FirstID, e.LastID, e.Err)
}

func (e *IndexWriteError) Unwrap() []error {
	return []error{ErrIndexWrite, e.Err}
}

// Retryable reports that resubmitting the batch may succeed.
func (e *IndexWriteError) Retryable() bool {
	return true
}

// ValidationError reports a malformed option or value.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.Err}
}

// IsRetryable reports whether err, or anything it wraps, can be retried as is.
// Configuration errors are never retryable even when wrapped together with a write error.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrIndexConfiguration) {
		return false
	}
	var retryable interface{ Retryable() bool }
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}
	return false
}
