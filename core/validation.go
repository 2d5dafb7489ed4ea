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
	"fmt"
	"unicode/utf8"
)

// ValidateIngestOptions validates ingestion options according to domain rules.
//
// Validation rules:
//   - SplittingMethod must be recursive or structural
//   - ChunkSize must be positive
//   - ChunkOverlap must be >= 0 and < ChunkSize
func ValidateIngestOptions(opts IngestOptions) error {
	if opts.SplittingMethod != SplitRecursive && opts.SplittingMethod != SplitStructural {
		return &ValidationError{Field: "splittingMethod", Err: ErrInvalidSplittingMethod}
	}
	if opts.ChunkSize <= 0 {
		return &ValidationError{Field: "chunkSize", Err: ErrInvalidChunkSize}
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		return &ValidationError{Field: "chunkOverlap", Err: ErrInvalidChunkOverlap}
	}
	return nil
}

// ValidateVector validates a vector before it is written to an index.
//
// Validation rules:
//   - Id must not be empty
//   - Values must not be empty
//   - Values must have the given dimension when dimension > 0
func ValidateVector(v *Vector, dimension int) error {
	if v == nil {
		return &ValidationError{Field: "vector", Reason: "vector is nil"}
	}
	if v.Id == "" {
		return &ValidationError{Field: "vector", Err: ErrEmptyVectorID}
	}
	if len(v.Values) == 0 {
		return &ValidationError{Field: "vector " + v.Id, Err: ErrEmptyVector}
	}
	if dimension > 0 && len(v.Values) != dimension {
		return &IndexConfigurationError{
			Expected: dimension,
			Actual:   len(v.Values),
			Reason:   fmt.Sprintf("vector %s has dimension %d, expected %d", v.Id, len(v.Values), dimension),
		}
	}
	return nil
}

// TruncateBytes cuts s to at most limit bytes without splitting a UTF-8 sequence.
func TruncateBytes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
