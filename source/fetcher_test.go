package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/poiesic/sheetvec/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func csvServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetcher_Fetch(t *testing.T) {
	body := "\ufeffname , city\nAda,London\nGrace,Arlington\n"
	srv := csvServer(t, body, http.StatusOK)

	f, err := NewFetcher()
	require.NoError(t, err)

	records, err := f.Fetch(context.Background(), srv.URL, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []string{"name", "city"}, records[0].Names())
	assert.Equal(t, []string{"Ada", "London"}, records[0].Values())
	city, ok := records[1].Get("city")
	assert.True(t, ok)
	assert.Equal(t, "Arlington", city)
}

func TestFetcher_RaggedRows(t *testing.T) {
	f, err := NewFetcher()
	require.NoError(t, err)

	records, err := f.Decode(strings.NewReader("a,b\n1\n1,2,3\n"), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []core.Field{{Name: "a", Value: "1"}, {Name: "b", Value: ""}}, records[0].Fields)
	assert.Equal(t, []string{"a", "b", "column_3"}, records[1].Names())
	assert.Equal(t, []string{"1", "2", "3"}, records[1].Values())
}

func TestFetcher_SkipsMalformedRows(t *testing.T) {
	f, err := NewFetcher()
	require.NoError(t, err)

	records, err := f.Decode(strings.NewReader("a,b\n1,2\nx,bad\"quote\n3,4\n"), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"1", "2"}, records[0].Values())
	assert.Equal(t, []string{"3", "4"}, records[1].Values())
}

func TestFetcher_EmptySource(t *testing.T) {
	srv := csvServer(t, "", http.StatusOK)
	f, err := NewFetcher()
	require.NoError(t, err)

	records, err := f.Fetch(context.Background(), srv.URL, 10)
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = f.Decode(strings.NewReader("only,header\n"), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

// endlessCSV produces a header followed by an unbounded stream of rows.
type endlessCSV struct {
	buf  strings.Builder
	next int
	read int
}

func (e *endlessCSV) Read(p []byte) (int, error) {
	if e.buf.Len() == 0 {
		if e.next == 0 {
			e.buf.WriteString("id,value\n")
		}
		for i := 0; i < 10; i++ {
			e.next++
			fmt.Fprintf(&e.buf, "%d,row %d\n", e.next, e.next)
		}
	}
	pending := e.buf.String()
	n := copy(p, pending)
	e.buf.Reset()
	e.buf.WriteString(pending[n:])
	e.read += n
	return n, nil
}

func TestFetcher_RecordCap(t *testing.T) {
	tests := []struct {
		name       string
		limit      int
		maxRecords int
		want       int
	}{
		{name: "explicit limit", limit: 25, maxRecords: 1000, want: 25},
		{name: "default cap", limit: 0, maxRecords: 40, want: 40},
		{name: "negative limit uses default", limit: -1, maxRecords: 7, want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFetcher(WithMaxRecords(tt.maxRecords))
			require.NoError(t, err)

			records, err := f.Decode(&endlessCSV{}, tt.limit)
			require.NoError(t, err)
			require.Len(t, records, tt.want)
			assert.Equal(t, "1", records[0].Fields[0].Value)
			assert.Equal(t, fmt.Sprint(tt.want), records[tt.want-1].Fields[0].Value)
		})
	}

	t.Run("default max records", func(t *testing.T) {
		f, err := NewFetcher()
		require.NoError(t, err)
		records, err := f.Decode(&endlessCSV{}, 0)
		require.NoError(t, err)
		assert.Len(t, records, DefaultMaxRecords)
	})
}

func TestFetcher_Failures(t *testing.T) {
	t.Run("non-2xx status", func(t *testing.T) {
		srv := csvServer(t, "not found", http.StatusNotFound)
		f, err := NewFetcher()
		require.NoError(t, err)

		_, err = f.Fetch(context.Background(), srv.URL, 0)
		require.Error(t, err)
		assert.ErrorIs(t, err, core.ErrFetch)

		var fetchErr *core.FetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	})

	t.Run("unreachable host", func(t *testing.T) {
		srv := csvServer(t, "", http.StatusOK)
		addr := srv.URL
		srv.Close()

		f, err := NewFetcher()
		require.NoError(t, err)
		_, err = f.Fetch(context.Background(), addr, 0)
		assert.ErrorIs(t, err, core.ErrFetch)
	})

	t.Run("unsupported scheme", func(t *testing.T) {
		f, err := NewFetcher()
		require.NoError(t, err)
		_, err = f.Fetch(context.Background(), "ftp://example.com/data.csv", 0)
		assert.ErrorIs(t, err, core.ErrFetch)
		assert.ErrorIs(t, err, ErrUnsupportedScheme)
	})

	t.Run("not a url", func(t *testing.T) {
		f, err := NewFetcher()
		require.NoError(t, err)
		_, err = f.Fetch(context.Background(), "data.csv", 0)
		assert.ErrorIs(t, err, ErrInvalidURL)
	})

	t.Run("cancelled context", func(t *testing.T) {
		srv := csvServer(t, "a\n1\n", http.StatusOK)
		f, err := NewFetcher()
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = f.Fetch(ctx, srv.URL, 0)
		assert.ErrorIs(t, err, core.ErrFetch)
	})
}

func TestNewFetcher_Options(t *testing.T) {
	_, err := NewFetcher(WithMaxRecords(0))
	assert.Error(t, err)

	_, err = NewFetcher(WithOpener("s3", nil))
	assert.ErrorIs(t, err, ErrOpenerRequired)

	_, err = NewFetcher(WithHTTPClient(nil))
	assert.Error(t, err)
}

type fakeObjectGetter struct {
	objects map[string]string
	calls   []string
}

func (f *fakeObjectGetter) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := *params.Bucket + "/" + *params.Key
	f.calls = append(f.calls, key)
	body, ok := f.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestFetcher_S3(t *testing.T) {
	getter := &fakeObjectGetter{objects: map[string]string{
		"exports/sheets/people.csv": "name\nAda\nGrace\n",
	}}
	opener, err := NewS3Opener(getter)
	require.NoError(t, err)

	f, err := NewFetcher(WithOpener("s3", opener))
	require.NoError(t, err)

	records, err := f.Fetch(context.Background(), "s3://exports/sheets/people.csv", 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Equal(t, []string{"exports/sheets/people.csv"}, getter.calls)

	_, err = f.Fetch(context.Background(), "s3://exports/missing.csv", 0)
	assert.ErrorIs(t, err, core.ErrFetch)

	_, err = f.Fetch(context.Background(), "s3://exports", 0)
	assert.ErrorIs(t, err, ErrInvalidURL)
}

func TestNewS3Opener_RequiresClient(t *testing.T) {
	_, err := NewS3Opener(nil)
	assert.ErrorIs(t, err, ErrS3ClientRequired)
}
