package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaxonomyKinds(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
		kind error
	}{
		{name: "fetch", err: &FetchError{URL: "u", Err: cause}, kind: ErrFetch},
		{name: "embedding", err: &EmbeddingServiceError{ChunkHash: "h", Source: "u", Err: cause}, kind: ErrEmbeddingService},
		{name: "index configuration", err: &IndexConfigurationError{Namespace: "ns", Expected: 3, Actual: 2}, kind: ErrIndexConfiguration},
		{name: "index write", err: &IndexWriteError{Namespace: "ns", Batch: 1, Err: cause}, kind: ErrIndexWrite},
		{name: "validation", err: &ValidationError{Field: "chunkSize", Err: ErrInvalidChunkSize}, kind: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.kind)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestTaxonomyUnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := error(&FetchError{URL: "http://localhost", Err: cause})

	assert.ErrorIs(t, err, cause)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "http://localhost", fetchErr.URL)
}

func TestIndexWriteErrorMessage(t *testing.T) {
	err := &IndexWriteError{Namespace: "ns", Batch: 2, FirstID: "a", LastID: "f", Count: 10, Err: errors.New("timeout")}
	assert.Contains(t, err.Error(), "batch 2")
	assert.Contains(t, err.Error(), "a..f")
}

func TestIsRetryable(t *testing.T) {
	writeErr := &IndexWriteError{Namespace: "ns", Err: errors.New("503")}
	configErr := &IndexConfigurationError{Namespace: "ns", Reason: "missing"}

	assert.True(t, IsRetryable(writeErr))
	assert.True(t, IsRetryable(errors.Join(errors.New("context"), writeErr)))
	assert.False(t, IsRetryable(configErr))
	assert.False(t, IsRetryable(&IndexWriteError{Err: configErr}))
	assert.False(t, IsRetryable(&FetchError{URL: "u", Err: errors.New("x")}))
	assert.False(t, IsRetryable(nil))
}
