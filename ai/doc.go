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


// Package ai provides abstractions for the embedding services used by sheetvec.
//
// The package defines the Embedder and AIProvider interfaces so the pipeline
// depends on abstractions rather than on a specific embedding vendor.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI and OpenAI-compatible APIs via langchaingo
//   - ai/gemini: Google Gemini embedding models
//   - ai/mock: Test doubles for unit testing without external services
//
// # Rate Limiting
//
// Every provider takes a *ratelimit.Limiter at construction time. Providers
// that must share one external ceiling are built from the same limiter; the
// limiter is never reached through a package-level variable.
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewProvider, openai.NewEmbedder, ...) return
// INTERFACE types. Test utility constructors (mock.NewMockEmbedder) return
// CONCRETE types so tests can inject behavior and assert on call counts.
//
// # Usage Example
//
//	limiter := ratelimit.New(cfg.MinSpacing)
//	provider, err := openai.NewProvider(cfg, limiter)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "Hello world")
package ai
