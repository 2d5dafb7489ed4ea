package main

import (
	"fmt"
	"io"
	"time"

	"github.com/poiesic/sheetvec/core"
	"github.com/poiesic/sheetvec/search"
)

// explainMonitor prints each retrieval step for `query --explain`.
type explainMonitor struct {
	w     io.Writer
	start time.Time
}

var _ search.RetrievalMonitor = (*explainMonitor)(nil)

func (m *explainMonitor) Start(query string) {
	m.start = time.Now()
	fmt.Fprintf(m.w, "query: %q\n", query)
}

func (m *explainMonitor) AfterEmbedding(dimensions int) {
	fmt.Fprintf(m.w, "embedded into %d dimensions (%s)\n", dimensions, time.Since(m.start).Round(time.Millisecond))
}

func (m *explainMonitor) AfterQuery(matches []core.Match) {
	fmt.Fprintf(m.w, "%d matches above the minimum score\n", len(matches))
	for i, match := range matches {
		fmt.Fprintf(m.w, "  %d. [%0.3f] %s\n", i+1, match.Score, match.Vector.Id)
	}
}

func (m *explainMonitor) VerbatimHit(match core.Match) {
	fmt.Fprintf(m.w, "  verbatim: %s contains every query term\n", match.Vector.Id)
}

func (m *explainMonitor) Finish(context string) {
	fmt.Fprintf(m.w, "context: %d characters in %s\n\n", len([]rune(context)), time.Since(m.start).Round(time.Millisecond))
}
