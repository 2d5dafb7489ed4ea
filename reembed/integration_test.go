package reembed

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/poiesic/sheetvec/ai"
	"github.com/poiesic/sheetvec/ai/mock"
	"github.com/poiesic/sheetvec/ai/openai"
	"github.com/poiesic/sheetvec/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embeddingServer answers OpenAI-style embedding requests with deterministic vectors.
func embeddingServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Data []item `json:"data"`
		}{}
		for i, text := range req.Input {
			resp.Data = append(resp.Data, item{Embedding: mock.GenerateDeterministicVector(text, dim), Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestIntegration_FullReembeddingWorkflow re-embeds a namespace through the
// OpenAI-compatible client against a local fake service.
func TestIntegration_FullReembeddingWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	index := setupTestIndex(t)
	seedNamespace(t, index, "v1", 50)

	srv := embeddingServer(t, 8)
	cfg := ai.NewConfig(
		ai.WithEmbeddingHost(srv.URL),
		ai.WithEmbeddingModel("test-embedding"),
		ai.WithDimensions(8),
		ai.WithRequestTimeout(5*time.Second),
	)
	provider, err := openai.NewProvider(cfg, ratelimit.New(0))
	require.NoError(t, err)
	defer provider.Close()

	config := &Config{
		BatchSize:      10,
		WriteBatchSize: 5,
		ReportInterval: 10,
		MaxRetries:     3,
		RetryDelay:     10 * time.Millisecond,
	}

	var buf bytes.Buffer
	reembedder, err := NewReembedder(index, provider, config, &buf)
	require.NoError(t, err)
	require.NoError(t, reembedder.Run(ctx, "v1", "v2"))

	info, err := index.Describe(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, 8, info.Dimension)
	assert.Equal(t, 50, info.VectorCount)

	stored, err := index.Scan(ctx, "v2", "", 100)
	require.NoError(t, err)
	for i, v := range stored {
		assert.InDelta(t, 1.0, Magnitude(v.Values), 1e-5, "vector %d should be normalized", i)
	}

	output := buf.String()
	assert.Contains(t, output, "Starting reembedding of 50 vectors")
	assert.Contains(t, output, "50/50")
	assert.Contains(t, output, "100.0%")
	assert.Contains(t, output, "Reembedding complete")
}

// TestIntegration_IdempotentReembedding tests that reembedding can be run multiple times
func TestIntegration_IdempotentReembedding(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	index := setupTestIndex(t)
	seedNamespace(t, index, "docs", 10)

	provider := mock.NewMockProviderWithEmbedder(mock.NewMockEmbedderWithDimensions(testDim))
	config := testConfig()

	// First run
	first, err := NewReembedder(index, provider, config, nil)
	require.NoError(t, err)
	require.NoError(t, first.Run(ctx, "docs", ""))
	vectors1, err := index.Scan(ctx, "docs", "", 100)
	require.NoError(t, err)

	// Second run (should overwrite with same vectors)
	second, err := NewReembedder(index, provider, config, nil)
	require.NoError(t, err)
	require.NoError(t, second.Run(ctx, "docs", ""))
	vectors2, err := index.Scan(ctx, "docs", "", 100)
	require.NoError(t, err)

	require.Equal(t, len(vectors1), len(vectors2))
	for i := range vectors1 {
		assert.Equal(t, vectors1[i].Id, vectors2[i].Id)
		for j := range vectors1[i].Values {
			assert.InDelta(t, vectors1[i].Values[j], vectors2[i].Values[j], 0.001, "vectors should be identical after re-embedding")
		}
	}
}
