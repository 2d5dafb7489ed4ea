package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/sheetvec/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyWrite fails the first `failures` calls with err.
func flakyWrite(failures int, err error) (func() error, *int) {
	calls := 0
	return func() error {
		calls++
		if calls <= failures {
			return err
		}
		return nil
	}, &calls
}

func TestRetryWithBackoff_Attempts(t *testing.T) {
	transient := errors.New("connection reset by peer")
	writeErr := &core.IndexWriteError{Namespace: "ns", Batch: 2, Count: 10, Err: transient}

	tests := []struct {
		name      string
		failures  int
		err       error
		attempts  int
		wantErr   error
		wantCalls int
	}{
		{name: "first write succeeds", failures: 0, err: transient, attempts: 3, wantCalls: 1},
		{name: "succeeds on last attempt", failures: 2, err: transient, attempts: 3, wantCalls: 3},
		{name: "write error is retried", failures: 1, err: writeErr, attempts: 2, wantCalls: 2},
		{name: "gives up after max attempts", failures: 5, err: transient, attempts: 3, wantErr: transient, wantCalls: 3},
		{name: "single attempt", failures: 1, err: transient, attempts: 1, wantErr: transient, wantCalls: 1},
		{
			name:      "dimension mismatch is not retried",
			failures:  5,
			err:       &core.IndexConfigurationError{Namespace: "ns", Expected: 1536, Actual: 768},
			attempts:  5,
			wantErr:   core.ErrIndexConfiguration,
			wantCalls: 1,
		},
		{
			name:      "validation error is not retried",
			failures:  5,
			err:       &core.ValidationError{Field: "batchSize", Reason: "must be greater than 0"},
			attempts:  5,
			wantErr:   core.ErrValidation,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			write, calls := flakyWrite(tt.failures, tt.err)
			err := RetryWithBackoff(context.Background(), write, tt.attempts, time.Millisecond)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, *calls)
		})
	}
}

func TestRetryWithBackoff_InvalidMaxAttempts(t *testing.T) {
	for _, attempts := range []int{0, -1} {
		write, calls := flakyWrite(0, nil)
		err := RetryWithBackoff(context.Background(), write, attempts, time.Millisecond)
		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
		assert.Zero(t, *calls)
	}
}

func TestRetryWithBackoff_DoublesDelay(t *testing.T) {
	var stamps []time.Time
	write := func() error {
		stamps = append(stamps, time.Now())
		if len(stamps) < 4 {
			return errors.New("busy")
		}
		return nil
	}

	base := 10 * time.Millisecond
	require.NoError(t, RetryWithBackoff(context.Background(), write, 4, base))
	require.Len(t, stamps, 4)

	for i, want := range []time.Duration{base, 2 * base, 4 * base} {
		assert.GreaterOrEqual(t, stamps[i+1].Sub(stamps[i]), want, "gap %d", i)
	}
}

func TestRetryWithBackoff_Cancellation(t *testing.T) {
	t.Run("cancelled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := RetryWithBackoff(ctx, func() error {
			calls++
			cancel()
			return errors.New("busy")
		}, 10, time.Hour)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled before the first attempt", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		write, calls := flakyWrite(0, nil)

		assert.ErrorIs(t, RetryWithBackoff(ctx, write, 3, time.Millisecond), context.Canceled)
		assert.Zero(t, *calls)
	})

	t.Run("deadline", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := RetryWithBackoff(ctx, func() error { return errors.New("busy") }, 100, 5*time.Millisecond)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
