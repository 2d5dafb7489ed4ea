package splitter

import (
	"github.com/poiesic/sheetvec/core"
	"github.com/tmc/langchaingo/textsplitter"
)

// Structural splits along markdown structure (headings, lists, tables,
// paragraphs) and hands oversized paragraphs to the recursive splitter.
type Structural struct {
	chunkSize int
	fallback  *Recursive
	markdown  *textsplitter.MarkdownTextSplitter
}

func newStructural(chunkSize, chunkOverlap int) *Structural {
	fallback := newRecursive(chunkSize, chunkOverlap)
	return &Structural{
		chunkSize: chunkSize,
		fallback:  fallback,
		markdown: textsplitter.NewMarkdownTextSplitter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSecondSplitter(fallback),
			textsplitter.WithHeadingHierarchy(true),
			textsplitter.WithJoinTableRows(true),
		),
	}
}

// Method returns core.SplitStructural.
func (s *Structural) Method() core.SplittingMethod {
	return core.SplitStructural
}

// Split cuts doc.Text into chunks.
func (s *Structural) Split(doc core.Document) ([]core.Chunk, error) {
	pieces, err := s.SplitText(doc.Text)
	if err != nil {
		return nil, err
	}
	return toChunks(pieces, doc), nil
}

// SplitText cuts text along its structure. Text that already fits is
// returned unchanged as a single chunk.
func (s *Structural) SplitText(text string) ([]string, error) {
	if text == "" {
		return []string{}, nil
	}
	if runeLen(text) <= s.chunkSize {
		return []string{text}, nil
	}

	sections, err := s.markdown.SplitText(text)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(sections))
	for _, section := range sections {
		if isBlank(section) {
			continue
		}
		if runeLen(section) <= s.chunkSize {
			out = append(out, section)
			continue
		}
		pieces, err := s.fallback.SplitText(section)
		if err != nil {
			return nil, err
		}
		out = append(out, pieces...)
	}
	return out, nil
}
