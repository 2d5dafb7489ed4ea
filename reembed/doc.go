// Package reembed provides functionality for re-embedding a stored namespace
// with a new or updated embedding model.
//
// Vectors are read back page by page, their stored chunk text is embedded
// again, and the normalized result is written under the same id, either in
// place or into a new namespace. Embedding calls are retried with exponential
// backoff and progress is reported as the namespace is processed.
package reembed
