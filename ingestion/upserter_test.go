package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/sheetvec/core"
	"github.com/poiesic/sheetvec/ratelimit"
	"github.com/poiesic/sheetvec/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingIndex implements storage.VectorIndex and records every write.
type recordingIndex struct {
	storage.VectorIndex

	mu        sync.Mutex
	maxBatch  int
	writes    [][]string
	ensured   []string
	failWrite func(call int) error
	calls     int
}

func newRecordingIndex() *recordingIndex {
	return &recordingIndex{maxBatch: 100}
}

func (r *recordingIndex) Ensure(ctx context.Context, namespace string, dimension int) (*core.NamespaceInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensured = append(r.ensured, namespace)
	return &core.NamespaceInfo{Namespace: namespace, Dimension: dimension}, nil
}

func (r *recordingIndex) UpsertVectors(ctx context.Context, namespace string, vectors []core.Vector) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	call := r.calls
	r.calls++
	if r.failWrite != nil {
		if err := r.failWrite(call); err != nil {
			return err
		}
	}
	ids := make([]string, len(vectors))
	for i, v := range vectors {
		ids[i] = v.Id
	}
	r.writes = append(r.writes, ids)
	return nil
}

func (r *recordingIndex) MaxBatchSize() int {
	return r.maxBatch
}

func (r *recordingIndex) Writes() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]string(nil), r.writes...)
}

func makeVectors(n int) []core.Vector {
	vectors := make([]core.Vector, n)
	for i := range vectors {
		vectors[i] = core.Vector{Id: fmt.Sprintf("id-%03d", i), Values: []float32{1, 0, 0}}
	}
	return vectors
}

func TestNewBatchUpserter(t *testing.T) {
	t.Run("requires index", func(t *testing.T) {
		_, err := NewBatchUpserter(nil)
		assert.ErrorIs(t, err, ErrIndexRequired)
	})

	t.Run("rejects bad options", func(t *testing.T) {
		_, err := NewBatchUpserter(newRecordingIndex(), WithWriteConcurrency(0))
		assert.ErrorIs(t, err, ErrInvalidConcurrency)

		_, err = NewBatchUpserter(newRecordingIndex(), WithWriteRetry(0, time.Millisecond))
		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
	})
}

func TestBatches(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int
	}{
		{n: 0, size: 10, want: nil},
		{n: 1, size: 10, want: []int{1}},
		{n: 10, size: 10, want: []int{10}},
		{n: 11, size: 10, want: []int{10, 1}},
		{n: 25, size: 7, want: []int{7, 7, 7, 4}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d by %d", tt.n, tt.size), func(t *testing.T) {
			batches := Batches(makeVectors(tt.n), tt.size)
			var sizes []int
			for _, b := range batches {
				sizes = append(sizes, len(b))
			}
			assert.Equal(t, tt.want, sizes)
		})
	}
}

func TestBatchUpserter_WritesEveryIDOnceInOrder(t *testing.T) {
	for _, m := range []int{1, 9, 10, 11, 37, 100} {
		for _, b := range []int{1, 3, 10} {
			t.Run(fmt.Sprintf("M=%d B=%d", m, b), func(t *testing.T) {
				index := newRecordingIndex()
				u, err := NewBatchUpserter(index)
				require.NoError(t, err)

				vectors := makeVectors(m)
				report, err := u.UpsertWithReport(context.Background(), vectors, "ns", b)
				require.NoError(t, err)

				writes := index.Writes()
				expected := (m + b - 1) / b
				assert.Len(t, writes, expected)
				assert.Equal(t, expected, report.Batches)
				assert.Equal(t, expected, report.Written)

				var ids []string
				for _, w := range writes {
					assert.LessOrEqual(t, len(w), b)
					ids = append(ids, w...)
				}
				require.Len(t, ids, m)
				for i, id := range ids {
					assert.Equal(t, vectors[i].Id, id)
				}
			})
		}
	}
}

func TestBatchUpserter_Empty(t *testing.T) {
	index := newRecordingIndex()
	u, err := NewBatchUpserter(index)
	require.NoError(t, err)

	require.NoError(t, u.Upsert(context.Background(), nil, "ns", 10))
	assert.Empty(t, index.Writes())
}

func TestBatchUpserter_InvalidBatchSize(t *testing.T) {
	index := newRecordingIndex()
	index.maxBatch = 5
	u, err := NewBatchUpserter(index)
	require.NoError(t, err)

	err = u.Upsert(context.Background(), makeVectors(3), "ns", 0)
	assert.ErrorIs(t, err, core.ErrValidation)

	err = u.Upsert(context.Background(), makeVectors(3), "ns", 6)
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.ErrorIs(t, err, storage.ErrBatchTooLarge)
	assert.Empty(t, index.Writes())
}

func TestBatchUpserter_FailedBatchStopsAndReports(t *testing.T) {
	index := newRecordingIndex()
	index.failWrite = func(call int) error {
		if call == 2 {
			return errors.New("connection reset")
		}
		return nil
	}
	u, err := NewBatchUpserter(index)
	require.NoError(t, err)

	vectors := makeVectors(50)
	report, err := u.UpsertWithReport(context.Background(), vectors, "ns", 10)
	require.Error(t, err)

	var writeErr *core.IndexWriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "ns", writeErr.Namespace)
	assert.Equal(t, 2, writeErr.Batch)
	assert.Equal(t, "id-020", writeErr.FirstID)
	assert.Equal(t, "id-029", writeErr.LastID)
	assert.Equal(t, 10, writeErr.Count)
	assert.True(t, core.IsRetryable(err))
	assert.ErrorIs(t, err, core.ErrIndexWrite)

	// Earlier batches stay written and later ones never start
	assert.Len(t, index.Writes(), 2)
	assert.Equal(t, 2, report.Written)

	// The failed batch can be resubmitted on its own
	index.failWrite = nil
	require.NoError(t, u.WriteBatch(context.Background(), "ns", writeErr.Batch, Batches(vectors, 10)[writeErr.Batch]))
	writes := index.Writes()
	assert.Equal(t, "id-020", writes[len(writes)-1][0])
}

func TestBatchUpserter_ConfigurationErrorIsFatal(t *testing.T) {
	cfgErr := &core.IndexConfigurationError{Namespace: "ns", Expected: 3, Actual: 4}
	index := newRecordingIndex()
	index.failWrite = func(call int) error { return cfgErr }

	u, err := NewBatchUpserter(index, WithWriteRetry(5, time.Millisecond))
	require.NoError(t, err)

	err = u.Upsert(context.Background(), makeVectors(5), "ns", 10)
	require.Error(t, err)

	var writeErr *core.IndexWriteError
	assert.False(t, errors.As(err, &writeErr), "configuration errors are not wrapped as write errors")
	assert.ErrorIs(t, err, core.ErrIndexConfiguration)
	assert.False(t, core.IsRetryable(err))
	assert.Equal(t, 1, index.calls, "configuration errors are never retried")
}

func TestBatchUpserter_RetriesWriteErrors(t *testing.T) {
	index := newRecordingIndex()
	index.failWrite = func(call int) error {
		if call < 2 {
			return errors.New("temporarily unavailable")
		}
		return nil
	}

	u, err := NewBatchUpserter(index, WithWriteRetry(3, time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, u.Upsert(context.Background(), makeVectors(4), "ns", 10))
	assert.Equal(t, 3, index.calls)
	assert.Len(t, index.Writes(), 1)
}

func TestBatchUpserter_Concurrent(t *testing.T) {
	index := newRecordingIndex()
	u, err := NewBatchUpserter(index, WithWriteConcurrency(4))
	require.NoError(t, err)

	vectors := makeVectors(95)
	require.NoError(t, u.Upsert(context.Background(), vectors, "ns", 10))

	seen := make(map[string]int)
	for _, w := range index.Writes() {
		for _, id := range w {
			seen[id]++
		}
	}
	assert.Len(t, seen, 95)
	for id, n := range seen {
		assert.Equal(t, 1, n, "id %s written more than once", id)
	}
}

func TestBatchUpserter_BatchProgress(t *testing.T) {
	for _, concurrency := range []int{1, 4} {
		t.Run(fmt.Sprintf("concurrency %d", concurrency), func(t *testing.T) {
			var (
				mu   sync.Mutex
				seen []int
			)
			progress := func(stage core.RunState, done, total int) {
				mu.Lock()
				defer mu.Unlock()
				assert.Equal(t, core.RunUpserting, stage)
				assert.Equal(t, 10, total)
				seen = append(seen, done)
			}
			u, err := NewBatchUpserter(newRecordingIndex(), WithWriteConcurrency(concurrency), WithBatchProgress(progress))
			require.NoError(t, err)

			require.NoError(t, u.Upsert(context.Background(), makeVectors(95), "ns", 10))
			assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, seen)
		})
	}
}

func TestBatchUpserter_WriteLimiterSpacesBatches(t *testing.T) {
	index := newRecordingIndex()
	spacing := 20 * time.Millisecond
	u, err := NewBatchUpserter(index, WithWriteLimiter(ratelimit.New(spacing)))
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, u.Upsert(context.Background(), makeVectors(4), "ns", 1))
	assert.GreaterOrEqual(t, time.Since(start), 3*spacing)
}

func TestBatchUpserter_CancelledContext(t *testing.T) {
	index := newRecordingIndex()
	u, err := NewBatchUpserter(index)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = u.Upsert(ctx, makeVectors(30), "ns", 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, index.Writes())
}
