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


// Package search retrieves context for a question from an ingested namespace.
//
// The Retriever embeds the query, asks the vector index for the closest
// chunks above a minimum score and joins their stored text into a single
// context string bounded by a maximum length. A namespace that was never
// ingested yields an empty context rather than an error.
//
// A RetrievalMonitor observes each step, which the CLI uses to explain why a
// query produced the context it did.
package search
