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


// Package splitter cuts document text into bounded chunks.
//
// Two methods exist, selected by core.SplittingMethod: a recursive character
// splitter and a structure-aware splitter for markdown-like text. Both are
// built through New and share the Splitter interface, so callers never branch
// on the method. Sizes are counted in runes.
package splitter

import (
	"fmt"
	"strings"

	"github.com/poiesic/sheetvec/core"
	"github.com/tmc/langchaingo/textsplitter"
)

// Splitter divides text into chunks of at most ChunkSize runes.
// It also satisfies langchaingo's textsplitter.TextSplitter.
type Splitter interface {
	textsplitter.TextSplitter

	// Split cuts the document text into chunks. Every chunk inherits the
	// document metadata and carries its content hash.
	Split(doc core.Document) ([]core.Chunk, error)

	// Method reports which splitting method this splitter implements.
	Method() core.SplittingMethod
}

type factory func(chunkSize, chunkOverlap int) Splitter

var registry = map[core.SplittingMethod]factory{
	core.SplitRecursive:  func(size, overlap int) Splitter { return newRecursive(size, overlap) },
	core.SplitStructural: func(size, overlap int) Splitter { return newStructural(size, overlap) },
}

// New returns the splitter for method. The options are validated first and
// failures are reported as *core.ValidationError.
func New(method core.SplittingMethod, chunkSize, chunkOverlap int) (Splitter, error) {
	opts := core.IngestOptions{SplittingMethod: method, ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}
	if err := core.ValidateIngestOptions(opts); err != nil {
		return nil, err
	}
	build, ok := registry[method]
	if !ok {
		return nil, &core.ValidationError{
			Field: "splittingMethod",
			Err:   fmt.Errorf("%w: %s", core.ErrInvalidSplittingMethod, method),
		}
	}
	return build(chunkSize, chunkOverlap), nil
}

// FromOptions returns the splitter described by opts.
func FromOptions(opts core.IngestOptions) (Splitter, error) {
	return New(opts.SplittingMethod, opts.ChunkSize, opts.ChunkOverlap)
}

// toChunks stamps each piece with the document metadata and its hash.
func toChunks(pieces []string, doc core.Document) []core.Chunk {
	chunks := make([]core.Chunk, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, core.NewChunk(p, doc.Metadata))
	}
	return chunks
}

// isBlank reports whether a markdown section carries no text worth embedding.
func isBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}
