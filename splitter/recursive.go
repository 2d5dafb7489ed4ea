package splitter

import (
	"strings"
	"unicode/utf8"

	"github.com/poiesic/sheetvec/core"
)

// defaultSeparators are tried in order, coarsest first. The empty separator
// falls back to cutting between runes.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Recursive splits on the coarsest separator present and recurses into
// pieces that are still too long. Separators stay attached to the text
// before them, so with no overlap the chunks concatenate back to the input.
type Recursive struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

func newRecursive(chunkSize, chunkOverlap int) *Recursive {
	return &Recursive{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}
}

// Method returns core.SplitRecursive.
func (r *Recursive) Method() core.SplittingMethod {
	return core.SplitRecursive
}

// Split cuts doc.Text into chunks.
func (r *Recursive) Split(doc core.Document) ([]core.Chunk, error) {
	pieces, err := r.SplitText(doc.Text)
	if err != nil {
		return nil, err
	}
	return toChunks(pieces, doc), nil
}

// SplitText cuts text into chunks of at most chunkSize runes. With a non-zero
// overlap every chunk after the first starts with the trailing chunkOverlap
// runes of the chunk before it.
func (r *Recursive) SplitText(text string) ([]string, error) {
	if text == "" {
		return []string{}, nil
	}
	if runeLen(text) <= r.chunkSize {
		return []string{text}, nil
	}

	pieces := splitPieces(text, r.separators, r.chunkSize-r.chunkOverlap)
	if r.chunkOverlap == 0 {
		return pieces, nil
	}

	chunks := make([]string, len(pieces))
	for i, p := range pieces {
		if i == 0 {
			chunks[i] = p
			continue
		}
		chunks[i] = tailRunes(chunks[i-1], r.chunkOverlap) + p
	}
	return chunks, nil
}

// splitPieces returns consecutive pieces of at most limit runes whose
// concatenation is text.
func splitPieces(text string, separators []string, limit int) []string {
	if runeLen(text) <= limit {
		return []string{text}
	}

	sep, rest := pickSeparator(text, separators)
	if sep == "" {
		return splitRunes(text, limit)
	}

	var (
		out     []string
		current strings.Builder
		curLen  int
	)
	flush := func() {
		if curLen > 0 {
			out = append(out, current.String())
			current.Reset()
			curLen = 0
		}
	}

	for _, part := range splitKeep(text, sep) {
		n := runeLen(part)
		if n > limit {
			flush()
			out = append(out, splitPieces(part, rest, limit)...)
			continue
		}
		if curLen+n > limit {
			flush()
		}
		current.WriteString(part)
		curLen += n
	}
	flush()
	return out
}

// pickSeparator returns the first separator found in text and the finer
// separators after it.
func pickSeparator(text string, separators []string) (string, []string) {
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			return sep, separators[i+1:]
		}
	}
	return "", nil
}

// splitKeep splits text after every occurrence of sep, keeping sep on the
// left-hand piece.
func splitKeep(text, sep string) []string {
	parts := strings.SplitAfter(text, sep)
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

func splitRunes(text string, limit int) []string {
	var out []string
	for len(text) > 0 {
		cut, count := 0, 0
		for cut < len(text) && count < limit {
			_, size := utf8.DecodeRuneInString(text[cut:])
			cut += size
			count++
		}
		out = append(out, text[:cut])
		text = text[cut:]
	}
	return out
}

func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	cut := len(s)
	for i := 0; i < n && cut > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(s[:cut])
		cut -= size
	}
	return s[cut:]
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
