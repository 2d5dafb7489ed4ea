package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentHash(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantSame bool
	}{
		{
			name:     "same content produces same hash",
			content:  "test content",
			wantSame: true,
		},
		{
			name:     "empty string",
			content:  "",
			wantSame: true,
		},
		{
			name:     "unicode content",
			content:  "café, naïve, 日本語",
			wantSame: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h1 := ContentHash(tt.content)
			h2 := ContentHash(tt.content)

			if tt.wantSame && h1 != h2 {
				t.Errorf("ContentHash() produced different hashes for same content: %s vs %s", h1, h2)
			}
			if len(h1) != 32 {
				t.Errorf("ContentHash() length = %d, want 32", len(h1))
			}
		})
	}
}

func TestContentHash_Different(t *testing.T) {
	h1 := ContentHash("content1")
	h2 := ContentHash("content2")

	if h1 == h2 {
		t.Errorf("ContentHash() produced same hash for different content")
	}
}

func TestSourceRecord_Accessors(t *testing.T) {
	rec := SourceRecord{Fields: []Field{
		{Name: "id", Value: "1"},
		{Name: "name", Value: "Acme"},
	}}

	v, ok := rec.Get("name")
	assert.True(t, ok)
	assert.Equal(t, "Acme", v)

	_, ok = rec.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"id", "name"}, rec.Names())
	assert.Equal(t, []string{"1", "Acme"}, rec.Values())
}

func TestNewChunk_StampsHashWithoutMutatingInput(t *testing.T) {
	inherited := map[string]string{MetaSourceURL: "https://example.com/sheet.csv"}

	chunk := NewChunk("hello world", inherited)

	assert.Equal(t, ContentHash("hello world"), chunk.Metadata[MetaContentHash])
	assert.Equal(t, "https://example.com/sheet.csv", chunk.Metadata[MetaSourceURL])
	assert.NotContains(t, inherited, MetaContentHash)
}

func TestVectorFromChunk(t *testing.T) {
	chunk := NewChunk("some text", map[string]string{MetaSourceURL: "u"})

	v := VectorFromChunk(chunk, []float32{1, 2})

	assert.Equal(t, chunk.Hash(), v.Id)
	assert.Equal(t, "some text", v.Metadata[MetaChunk])
	assert.Equal(t, "u", v.Metadata[MetaSourceURL])
	assert.NotContains(t, chunk.Metadata, MetaChunk)
}

func TestChunk_HashFallsBackToContent(t *testing.T) {
	chunk := Chunk{Text: "abc"}
	assert.Equal(t, ContentHash("abc"), chunk.Hash())
}
