package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/poiesic/sheetvec/core"
	"github.com/poiesic/sheetvec/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, opts ...IndexOption) storage.VectorIndex {
	t.Helper()
	index, _, backend, err := NewMemoryIndex(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		index.Close()
		backend.Close()
	})
	return index
}

func vec(id string, values ...float32) core.Vector {
	return core.Vector{Id: id, Values: values, Metadata: map[string]string{core.MetaChunk: "text " + id}}
}

func TestIndex_Ensure(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t)

	info, err := index.Ensure(ctx, "sheets", 3)
	require.NoError(t, err)
	assert.Equal(t, "sheets", info.Namespace)
	assert.Equal(t, 3, info.Dimension)
	assert.Equal(t, 0, info.VectorCount)
	assert.False(t, info.CreatedAt.IsZero())

	again, err := index.Ensure(ctx, "sheets", 3)
	require.NoError(t, err)
	assert.True(t, info.CreatedAt.Equal(again.CreatedAt))

	_, err = index.Ensure(ctx, "sheets", 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrIndexConfiguration)
	assert.False(t, core.IsRetryable(err))

	var cfgErr *core.IndexConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, 4, cfgErr.Expected)
	assert.Equal(t, 3, cfgErr.Actual)

	_, err = index.Ensure(ctx, "sheets", 0)
	assert.ErrorIs(t, err, core.ErrIndexConfiguration)
}

func TestIndex_EnsureWithoutAutoCreate(t *testing.T) {
	index := newTestIndex(t, WithAutoCreate(false))

	_, err := index.Ensure(context.Background(), "missing", 3)
	assert.ErrorIs(t, err, core.ErrIndexConfiguration)

	_, err = index.Describe(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNamespaceNotFound)
}

func TestIndex_UpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t)

	_, err := index.Ensure(ctx, "sheets", 3)
	require.NoError(t, err)

	require.NoError(t, index.UpsertVectors(ctx, "sheets", []core.Vector{
		vec("a", 1, 0, 0),
		vec("b", 0.9, 0.1, 0),
		vec("c", 0, 1, 0),
		vec("d", -1, 0, 0),
	}))

	matches, err := index.Query(ctx, "sheets", []float32{1, 0, 0}, 3, 0.5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].Vector.Id)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Equal(t, "b", matches[1].Vector.Id)
	assert.Equal(t, "text b", matches[1].Vector.Metadata[core.MetaChunk])

	matches, err = index.Query(ctx, "sheets", []float32{1, 0, 0}, 1, -1)
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	_, err = index.Query(ctx, "sheets", []float32{1, 0}, 3, 0)
	assert.ErrorIs(t, err, core.ErrIndexConfiguration)

	_, err = index.Query(ctx, "sheets", []float32{1, 0, 0}, 0, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	_, err = index.Query(ctx, "nope", []float32{1, 0, 0}, 3, 0)
	assert.ErrorIs(t, err, storage.ErrNamespaceNotFound)
}

func TestIndex_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t)
	_, err := index.Ensure(ctx, "sheets", 2)
	require.NoError(t, err)

	batch := []core.Vector{vec("a", 1, 0), vec("b", 0, 1)}
	require.NoError(t, index.UpsertVectors(ctx, "sheets", batch))
	require.NoError(t, index.UpsertVectors(ctx, "sheets", batch))

	info, err := index.Describe(ctx, "sheets")
	require.NoError(t, err)
	assert.Equal(t, 2, info.VectorCount)

	// Replacing keeps the id and updates values
	require.NoError(t, index.UpsertVectors(ctx, "sheets", []core.Vector{vec("a", 0, 1)}))
	matches, err := index.Query(ctx, "sheets", []float32{0, 1}, 5, 0.99)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestIndex_UpsertFailures(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t, WithMaxBatchSize(2))
	_, err := index.Ensure(ctx, "sheets", 2)
	require.NoError(t, err)

	tests := []struct {
		name      string
		namespace string
		vectors   []core.Vector
		wantErr   error
	}{
		{name: "too large", namespace: "sheets", vectors: []core.Vector{vec("a", 1, 0), vec("b", 1, 0), vec("c", 1, 0)}, wantErr: storage.ErrBatchTooLarge},
		{name: "absent namespace", namespace: "other", vectors: []core.Vector{vec("a", 1, 0)}, wantErr: core.ErrIndexConfiguration},
		{name: "wrong dimension", namespace: "sheets", vectors: []core.Vector{vec("a", 1, 0, 0)}, wantErr: core.ErrIndexConfiguration},
		{name: "empty id", namespace: "sheets", vectors: []core.Vector{vec("", 1, 0)}, wantErr: core.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := index.UpsertVectors(ctx, tt.namespace, tt.vectors)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Equal(t, 2, index.MaxBatchSize())
	require.NoError(t, index.UpsertVectors(ctx, "sheets", nil))

	info, err := index.Describe(ctx, "sheets")
	require.NoError(t, err)
	assert.Equal(t, 0, info.VectorCount, "failed batches must not write anything")
}

func TestIndex_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t)

	for _, ns := range []string{"a", "a:b", ""} {
		_, err := index.Ensure(ctx, ns, 2)
		require.NoError(t, err)
	}
	require.NoError(t, index.UpsertVectors(ctx, "a", []core.Vector{vec("x", 1, 0)}))
	require.NoError(t, index.UpsertVectors(ctx, "a:b", []core.Vector{vec("y", 1, 0), vec("z", 0, 1)}))

	infoA, err := index.Describe(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1, infoA.VectorCount)

	infoAB, err := index.Describe(ctx, "a:b")
	require.NoError(t, err)
	assert.Equal(t, 2, infoAB.VectorCount)

	all, err := index.Namespaces(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestIndex_Scan(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t, WithMaxBatchSize(100))
	_, err := index.Ensure(ctx, "sheets", 1)
	require.NoError(t, err)

	var batch []core.Vector
	for i := 0; i < 25; i++ {
		batch = append(batch, vec(fmt.Sprintf("id-%02d", i), float32(i+1)))
	}
	require.NoError(t, index.UpsertVectors(ctx, "sheets", batch))

	var seen []string
	after := ""
	for {
		page, err := index.Scan(ctx, "sheets", after, 10)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, v := range page {
			seen = append(seen, v.Id)
		}
		after = page[len(page)-1].Id
	}
	require.Len(t, seen, 25)
	assert.Equal(t, "id-00", seen[0])
	assert.Equal(t, "id-24", seen[24])

	_, err = index.Scan(ctx, "sheets", "", 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestIndex_ConcurrentUpserts(t *testing.T) {
	ctx := context.Background()
	index := newTestIndex(t)
	_, err := index.Ensure(ctx, "sheets", 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			batch := []core.Vector{
				vec(fmt.Sprintf("g%d-a", g), 1, 0),
				vec(fmt.Sprintf("g%d-b", g), 0, 1),
			}
			errs <- index.UpsertVectors(ctx, "sheets", batch)
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	info, err := index.Describe(ctx, "sheets")
	require.NoError(t, err)
	assert.Equal(t, 20, info.VectorCount)
}

func TestOpenIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	index, err := OpenIndex(dir)
	require.NoError(t, err)
	_, err = index.Ensure(ctx, "sheets", 2)
	require.NoError(t, err)
	require.NoError(t, index.UpsertVectors(ctx, "sheets", []core.Vector{vec("a", 1, 0)}))
	require.NoError(t, index.Close())

	reopened, err := OpenIndex(dir)
	require.NoError(t, err)
	defer reopened.Close()

	info, err := reopened.Describe(ctx, "sheets")
	require.NoError(t, err)
	assert.Equal(t, 1, info.VectorCount)
	assert.Equal(t, 2, info.Dimension)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "scaled", a: []float32{1, 0}, b: []float32{5, 0}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, want: 0},
		{name: "length mismatch", a: []float32{1}, b: []float32{1, 0}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}
