package search

import (
	"strings"
	"unicode"
)

// Words too common to count toward a verbatim hit.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "be": {}, "is": {}, "are": {}, "was": {},
	"to": {}, "of": {}, "and": {}, "in": {}, "that": {}, "have": {}, "it": {},
	"for": {}, "not": {}, "on": {}, "with": {}, "as": {}, "you": {}, "do": {},
	"at": {}, "this": {}, "but": {}, "by": {}, "from": {}, "what": {}, "which": {},
}

// terms lowercases text and splits it on anything that is not a letter or
// digit, so "sku:B-2" yields "sku", "b", "2". Stop words are dropped.
func terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []string
	for _, f := range fields {
		if _, stop := stopWords[f]; !stop {
			out = append(out, f)
		}
	}
	return out
}

// coversQuery reports whether every query term appears in chunk.
// A query with no terms covers nothing.
func coversQuery(chunk, query string) bool {
	want := terms(query)
	if len(want) == 0 {
		return false
	}

	have := make(map[string]struct{})
	for _, t := range terms(chunk) {
		have[t] = struct{}{}
	}
	for _, t := range want {
		if _, ok := have[t]; !ok {
			return false
		}
	}
	return true
}
