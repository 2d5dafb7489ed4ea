// Package ingestion provides pipeline orchestration for turning a tabular source into stored vectors.
//
// The Pipeline type manages one ingestion request end to end:
//   - Fetching and decoding the source records
//   - Building documents and splitting them into chunks
//   - Generating embeddings concurrently on a worker pool
//   - Writing the vectors to the index in bounded batches
//
// Each request moves through the states pending, fetching, building, splitting,
// embedding, upserting and done, or ends in failed. Every transition is logged and,
// when a RunRepository is configured, persisted so a failed batch can be found and
// resubmitted with BatchUpserter.WriteBatch.
//
// The namespace is checked against the embedder's dimension before the first
// embedding call, so a misconfigured index never costs an embedding request.
package ingestion
