package reembed

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/sheetvec/ai/mock"
	"github.com/poiesic/sheetvec/core"
	"github.com/poiesic/sheetvec/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		BatchSize:      3,
		WriteBatchSize: 2,
		ReportInterval: 3,
		MaxRetries:     3,
		RetryDelay:     10 * time.Millisecond,
	}
}

func TestNewReembedder(t *testing.T) {
	index := setupTestIndex(t)

	_, err := NewReembedder(nil, mock.NewMockProvider(), nil, nil)
	assert.ErrorIs(t, err, ErrIndexRequired)

	_, err = NewReembedder(index, nil, nil, nil)
	assert.ErrorIs(t, err, ErrAIProviderRequired)

	r, err := NewReembedder(index, mock.NewMockProvider(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), r.config)
}

func TestReembedder_RunInPlace(t *testing.T) {
	index := setupTestIndex(t)
	seeded := seedNamespace(t, index, "docs", 10)
	ctx := context.Background()

	var buf bytes.Buffer
	provider := mock.NewMockProviderWithEmbedder(unnormalizedEmbedder())
	reembedder, err := NewReembedder(index, provider, testConfig(), &buf)
	require.NoError(t, err)

	require.NoError(t, reembedder.Run(ctx, "docs", ""))

	stored, err := index.Scan(ctx, "docs", "", 100)
	require.NoError(t, err)
	require.Len(t, stored, len(seeded))
	for _, v := range stored {
		assert.InDelta(t, 1.0, Magnitude(v.Values), 1e-6, "vector should be normalized")
		assert.InDelta(t, 1.0/3.0, v.Values[0], 1e-6)
	}

	output := buf.String()
	assert.Contains(t, output, "Starting reembedding of 10 vectors")
	assert.Contains(t, output, "10/10", "should show completion")
	assert.Contains(t, output, "Reembedding complete. Wrote 10 of 10 vectors")
}

func TestReembedder_RunIntoNewNamespace(t *testing.T) {
	index := setupTestIndex(t)
	seeded := seedNamespace(t, index, "v1", 7)
	ctx := context.Background()

	provider := mock.NewMockProviderWithEmbedder(mock.NewMockEmbedderWithDimensions(16))
	reembedder, err := NewReembedder(index, provider, testConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, reembedder.Run(ctx, "v1", "v2"))

	info, err := index.Describe(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, 16, info.Dimension)
	assert.Equal(t, 7, info.VectorCount)

	// The source namespace is untouched
	source, err := index.Scan(ctx, "v1", "", 100)
	require.NoError(t, err)
	for i, v := range source {
		assert.Len(t, v.Values, testDim, "vector %d", i)
	}

	target, err := index.Scan(ctx, "v2", "", 100)
	require.NoError(t, err)
	ids := make(map[string]bool)
	for _, v := range seeded {
		ids[v.Id] = true
	}
	for _, v := range target {
		assert.True(t, ids[v.Id], "ids are kept across namespaces")
	}
}

func TestReembedder_DimensionMismatchInPlace(t *testing.T) {
	index := setupTestIndex(t)
	seedNamespace(t, index, "docs", 4)

	embedder := mock.NewMockEmbedderWithDimensions(16)
	reembedder, err := NewReembedder(index, mock.NewMockProviderWithEmbedder(embedder), testConfig(), nil)
	require.NoError(t, err)

	err = reembedder.Run(context.Background(), "docs", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrIndexConfiguration)
	assert.Equal(t, 0, embedder.CallCount(), "no embedding call before the dimension check")
}

func TestReembedder_EmptyNamespace(t *testing.T) {
	index := setupTestIndex(t)
	seedNamespace(t, index, "docs", 0)

	var buf bytes.Buffer
	embedder := unnormalizedEmbedder()
	reembedder, err := NewReembedder(index, mock.NewMockProviderWithEmbedder(embedder), DefaultConfig(), &buf)
	require.NoError(t, err)

	require.NoError(t, reembedder.Run(context.Background(), "docs", ""))
	assert.Contains(t, buf.String(), "No vectors found")
	assert.Equal(t, 0, embedder.CallCount())
}

func TestReembedder_Errors(t *testing.T) {
	index := setupTestIndex(t)
	reembedder, err := NewReembedder(index, mock.NewMockProvider(), testConfig(), nil)
	require.NoError(t, err)

	err = reembedder.Run(context.Background(), "", "target")
	assert.ErrorIs(t, err, ErrSourceNamespaceRequired)

	err = reembedder.Run(context.Background(), "missing", "")
	assert.ErrorIs(t, err, storage.ErrNamespaceNotFound)
}

func TestReembedder_EmbeddingFailure(t *testing.T) {
	index := setupTestIndex(t)
	seedNamespace(t, index, "docs", 5)

	embedder := mock.NewMockEmbedderWithDimensions(testDim)
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("service down")
	}
	reembedder, err := NewReembedder(index, mock.NewMockProviderWithEmbedder(embedder), testConfig(), nil)
	require.NoError(t, err)

	err = reembedder.Run(context.Background(), "docs", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to process batch")
	assert.Contains(t, err.Error(), "service down")
}
