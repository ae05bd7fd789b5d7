package search

import "github.com/keepsake-ai/keepsake/core"

// RetrievalMonitor provides hooks to observe the retrieval process.
// Implement this interface to track intermediate steps during retrieval,
// for example in a CLI verbose mode.
type RetrievalMonitor interface {
	Start(query string)
	AfterQueryEmbedding(vector []float32)
	AfterVectorSearch(matches []*core.SimilarityMatch)
	EntryIncluded(match *core.SimilarityMatch)
	EntrySkipped(match *core.SimilarityMatch)
	Finish(context string)
}

// noopMonitor is a no-op implementation of RetrievalMonitor.
type noopMonitor struct{}

var _ RetrievalMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                              {}
func (n *noopMonitor) AfterQueryEmbedding(_ []float32)             {}
func (n *noopMonitor) AfterVectorSearch(_ []*core.SimilarityMatch) {}
func (n *noopMonitor) EntryIncluded(_ *core.SimilarityMatch)       {}
func (n *noopMonitor) EntrySkipped(_ *core.SimilarityMatch)        {}
func (n *noopMonitor) Finish(_ string)                             {}
