// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/poiesic/sheetvec/core"
)

const (
	// DefaultMaxRecords caps a fetch when the caller passes no limit.
	DefaultMaxRecords = 1000

	// DefaultTimeout bounds a single source request.
	DefaultTimeout = 60 * time.Second
)

const utf8BOM = "\ufeff"

// Fetcher downloads a CSV export and decodes it into records.
type Fetcher struct {
	openers    map[string]Opener
	maxRecords int
	logger     *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher) error

// WithHTTPClient replaces the client used for http and https sources.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) error {
		if client == nil {
			return errors.New("http client cannot be nil")
		}
		opener := NewHTTPOpener(client)
		f.openers["http"] = opener
		f.openers["https"] = opener
		return nil
	}
}

// WithOpener registers opener for a URL scheme, e.g. "s3".
func WithOpener(scheme string, opener Opener) Option {
	return func(f *Fetcher) error {
		if opener == nil {
			return ErrOpenerRequired
		}
		f.openers[strings.ToLower(scheme)] = opener
		return nil
	}
}

// WithMaxRecords sets the cap used when Fetch is called without a limit.
// Default is DefaultMaxRecords.
func WithMaxRecords(n int) Option {
	return func(f *Fetcher) error {
		if n < 1 {
			return fmt.Errorf("max records must be positive, got %d", n)
		}
		f.maxRecords = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		f.logger = logger
		return nil
	}
}

// NewFetcher creates a fetcher that reads http and https sources out of the box.
func NewFetcher(opts ...Option) (*Fetcher, error) {
	httpOpener := NewHTTPOpener(nil)
	f := &Fetcher{
		openers: map[string]Opener{
			"http":  httpOpener,
			"https": httpOpener,
		},
		maxRecords: DefaultMaxRecords,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	f.logger = f.logger.With("component", "source-fetcher")
	return f, nil
}

// Fetch reads at most limit records from rawURL. A limit of zero or less
// means the configured maximum. The first row names the fields.
//
// Unreadable sources return *core.FetchError. Rows the CSV decoder rejects are
// logged and skipped.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, limit int) ([]core.SourceRecord, error) {
	if limit <= 0 {
		limit = f.maxRecords
	}

	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return nil, &core.FetchError{URL: rawURL, Err: fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)}
	}
	opener, ok := f.openers[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, &core.FetchError{URL: rawURL, Err: fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)}
	}

	f.logger.Info("fetching source", "url", rawURL, "limit", limit)
	start := time.Now()

	body, err := opener.Open(ctx, rawURL)
	if err != nil {
		var fetchErr *core.FetchError
		if errors.As(err, &fetchErr) {
			return nil, err
		}
		return nil, &core.FetchError{URL: rawURL, Err: err}
	}
	defer body.Close()

	records, err := f.decode(body, limit)
	if err != nil {
		return nil, &core.FetchError{URL: rawURL, Err: err}
	}

	f.logger.Info("source fetched", "url", rawURL, "records", len(records), "duration", time.Since(start))
	return records, nil
}

// Decode reads records from r without fetching anything.
func (f *Fetcher) Decode(r io.Reader, limit int) ([]core.SourceRecord, error) {
	if limit <= 0 {
		limit = f.maxRecords
	}
	return f.decode(r, limit)
}

func (f *Fetcher) decode(r io.Reader, limit int) ([]core.SourceRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var header []string
	for header == nil {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return []core.SourceRecord{}, nil
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				f.logger.Warn("skipping malformed header row", "line", parseErr.Line, "err", parseErr.Err)
				continue
			}
			return nil, err
		}
		header = normalizeHeader(row)
	}

	records := make([]core.SourceRecord, 0)
	for len(records) < limit {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				f.logger.Warn("skipping malformed row", "line", parseErr.Line, "err", parseErr.Err)
				continue
			}
			return nil, err
		}
		records = append(records, toRecord(header, row))
	}

	return records, nil
}

func normalizeHeader(row []string) []string {
	header := make([]string, len(row))
	for i, name := range row {
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			name = columnName(i)
		}
		header[i] = name
	}
	return header
}

func toRecord(header, row []string) core.SourceRecord {
	n := max(len(header), len(row))
	fields := make([]core.Field, n)
	for i := range n {
		name := columnName(i)
		if i < len(header) {
			name = header[i]
		}
		value := ""
		if i < len(row) {
			value = row[i]
		}
		fields[i] = core.Field{Name: name, Value: value}
	}
	return core.SourceRecord{Fields: fields}
}

// columnName names the i-th (zero-based) column when the header has no name for it.
func columnName(i int) string {
	return fmt.Sprintf("column_%d", i+1)
}
