package document

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/poiesic/sheetvec/core"
)

// DefaultPreviewLimit is the byte cap on the "text" metadata preview.
const DefaultPreviewLimit = 36000

// fieldMetaPrefix prefixes record fields copied into document metadata.
const fieldMetaPrefix = "field."

// Builder turns source records into documents.
type Builder struct {
	strategy     core.DocumentStrategy
	copyFields   []string
	previewLimit int
	logger       *slog.Logger
}

// Option configures a Builder.
type Option func(*Builder) error

// WithStrategy selects how records become documents.
// Default is core.StrategyWholeRecord.
func WithStrategy(strategy core.DocumentStrategy) Option {
	return func(b *Builder) error {
		switch strategy {
		case core.StrategyWholeRecord, core.StrategyPerField, core.StrategyJSON:
		default:
			return &core.ValidationError{Field: "documentStrategy", Reason: "unknown strategy " + strategy.String()}
		}
		b.strategy = strategy
		return nil
	}
}

// WithCopyFields copies the named record fields into each document's
// metadata under "field.<name>".
func WithCopyFields(names ...string) Option {
	return func(b *Builder) error {
		b.copyFields = append(b.copyFields, names...)
		return nil
	}
}

// WithPreviewLimit sets the byte cap of the "text" preview.
func WithPreviewLimit(limit int) Option {
	return func(b *Builder) error {
		if limit < 1 {
			return errors.New("preview limit must be positive")
		}
		b.previewLimit = limit
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) error {
		if logger == nil {
			logger = slog.Default()
		}
		b.logger = logger
		return nil
	}
}

// NewBuilder creates a document builder.
func NewBuilder(opts ...Option) (*Builder, error) {
	b := &Builder{
		strategy:     core.StrategyWholeRecord,
		previewLimit: DefaultPreviewLimit,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	b.logger = b.logger.With("component", "document-builder")
	return b, nil
}

// Strategy returns the configured strategy.
func (b *Builder) Strategy() core.DocumentStrategy {
	return b.strategy
}

// Build converts one record into documents. Every document carries the
// source URL and a truncated preview of its text. A record whose text is
// empty yields no documents.
func (b *Builder) Build(sourceURL string, record core.SourceRecord) []core.Document {
	switch b.strategy {
	case core.StrategyPerField:
		return b.perField(sourceURL, record)
	case core.StrategyJSON:
		return b.single(sourceURL, record, recordJSON(record))
	default:
		return b.single(sourceURL, record, wholeRecordText(record))
	}
}

// BuildAll converts every record, preserving record order.
func (b *Builder) BuildAll(sourceURL string, records []core.SourceRecord) []core.Document {
	docs := make([]core.Document, 0, len(records))
	for _, record := range records {
		docs = append(docs, b.Build(sourceURL, record)...)
	}
	return docs
}

func (b *Builder) single(sourceURL string, record core.SourceRecord, text string) []core.Document {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return []core.Document{b.newDocument(sourceURL, record, text)}
}

func (b *Builder) perField(sourceURL string, record core.SourceRecord) []core.Document {
	docs := make([]core.Document, 0, len(record.Fields))
	for _, f := range record.Fields {
		value := strings.TrimSpace(f.Value)
		if value == "" {
			continue
		}
		doc := b.newDocument(sourceURL, record, f.Name+": "+value)
		doc.Metadata[core.MetaField] = f.Name
		docs = append(docs, doc)
	}
	return docs
}

func (b *Builder) newDocument(sourceURL string, record core.SourceRecord, text string) core.Document {
	md := map[string]string{
		core.MetaSourceURL: sourceURL,
		core.MetaText:      core.TruncateBytes(text, b.previewLimit),
	}
	for _, name := range b.copyFields {
		if v, ok := record.Get(name); ok {
			md[fieldMetaPrefix+name] = v
		}
	}
	return core.Document{Text: text, Metadata: md}
}

// wholeRecordText joins every field value, empty ones included, with single
// spaces. Values are kept exactly as decoded.
func wholeRecordText(record core.SourceRecord) string {
	parts := make([]string, len(record.Fields))
	for i, f := range record.Fields {
		parts[i] = f.Value
	}
	return strings.Join(parts, " ")
}

// recordJSON renders the record as a JSON object with keys in header order.
// Records without any non-empty value render as "".
func recordJSON(record core.SourceRecord) string {
	if strings.TrimSpace(wholeRecordText(record)) == "" {
		return ""
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range record.Fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := sonic.Marshal(f.Name)
		value, _ := sonic.Marshal(f.Value)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.String()
}
