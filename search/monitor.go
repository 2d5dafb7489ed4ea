package search

import "github.com/poiesic/sheetvec/core"

// RetrievalMonitor provides hooks to observe context retrieval.
// Implement this interface to track intermediate steps and results.
type RetrievalMonitor interface {
	Start(query string)
	AfterEmbedding(dimensions int)
	AfterQuery(matches []core.Match)
	VerbatimHit(match core.Match)
	Finish(context string)
}

// noopMonitor is a no-op implementation of RetrievalMonitor
type noopMonitor struct{}

var _ RetrievalMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)            {}
func (n *noopMonitor) AfterEmbedding(_ int)      {}
func (n *noopMonitor) AfterQuery(_ []core.Match) {}
func (n *noopMonitor) VerbatimHit(_ core.Match)  {}
func (n *noopMonitor) Finish(_ string)           {}
