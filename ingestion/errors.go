package ingestion

import "errors"

var (
	// ErrFetcherRequired is returned when a record fetcher is not provided.
	ErrFetcherRequired = errors.New("fetcher required")

	// ErrIndexRequired is returned when a vector index is not provided.
	ErrIndexRequired = errors.New("vector index required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrBuilderRequired is returned when WithBuilder is given a nil builder.
	ErrBuilderRequired = errors.New("document builder required")

	// ErrInvalidMaxAttempts is returned when maxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrInvalidConcurrency is returned when a worker count is < 1.
	ErrInvalidConcurrency = errors.New("concurrency must be greater than 0")
)
