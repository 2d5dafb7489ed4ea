package core

import (
	"encoding/hex"
	"maps"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// Metadata keys shared by documents, chunks and vectors.
const (
	MetaSourceURL   = "sourceUrl"
	MetaText        = "text"
	MetaContentHash = "contentHash"
	MetaChunk       = "chunk"
	MetaField       = "field"
)

// ContentHash derives the deduplication key for a piece of text using BLAKE2b.
// Identical text always yields the identical hash, so it doubles as the vector id.
func ContentHash(text string) string {
	h, _ := blake2b.New(16, nil) // 16 bytes = 128 bits
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Field is a single named cell of a source record.
type Field struct {
	Name  string
	Value string
}

// SourceRecord is one row of a tabular source, fields kept in header order.
type SourceRecord struct {
	Fields []Field
}

// Get returns the value of the named field and whether it was present.
func (r SourceRecord) Get(name string) (string, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Names returns the field names in order.
func (r SourceRecord) Names() []string {
	names := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
	}
	return names
}

// Values returns the field values in order.
func (r SourceRecord) Values() []string {
	values := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		values[i] = f.Value
	}
	return values
}

// Document is a unit of text derived from a source record (or one of its fields).
type Document struct {
	Text     string            `json:"pageContent"`
	Metadata map[string]string `json:"metadata"`
}

// Chunk is a bounded slice of a document's text.
// Metadata carries the document metadata plus MetaContentHash.
type Chunk struct {
	Text     string
	Metadata map[string]string
}

// Hash returns the chunk's content hash, computing it when metadata lacks one.
func (c Chunk) Hash() string {
	if h, ok := c.Metadata[MetaContentHash]; ok && h != "" {
		return h
	}
	return ContentHash(c.Text)
}

// AsDocument converts the chunk back into a Document for result payloads.
func (c Chunk) AsDocument() Document {
	return Document{Text: c.Text, Metadata: maps.Clone(c.Metadata)}
}

// NewChunk creates a chunk of text inheriting the given metadata and stamps its content hash.
func NewChunk(text string, inherited map[string]string) Chunk {
	md := make(map[string]string, len(inherited)+1)
	maps.Copy(md, inherited)
	md[MetaContentHash] = ContentHash(text)
	return Chunk{Text: text, Metadata: md}
}

// Vector is an embedded chunk ready for the index.
// Id always equals the producing chunk's content hash.
type Vector struct {
	Id       string
	Values   []float32
	Metadata map[string]string
}

// VectorFromChunk pairs a chunk with its embedding.
func VectorFromChunk(chunk Chunk, values []float32) Vector {
	md := make(map[string]string, len(chunk.Metadata)+1)
	maps.Copy(md, chunk.Metadata)
	md[MetaChunk] = chunk.Text
	return Vector{
		Id:       chunk.Hash(),
		Values:   values,
		Metadata: md,
	}
}

// Match is a vector returned by similarity search.
type Match struct {
	Vector Vector
	Score  float32
}

// NamespaceInfo describes a namespace in a vector index.
type NamespaceInfo struct {
	Namespace   string    `json:"namespace"`
	Dimension   int       `json:"dimension"`
	VectorCount int       `json:"vectorCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// IngestResult is returned to the caller of an ingestion.
// It never carries embedding values or vector ids.
type IngestResult struct {
	RunID         string
	Documents     []Document
	Records       int
	DocumentCount int
	ChunkCount    int
	VectorCount   int
	Batches       int
}
