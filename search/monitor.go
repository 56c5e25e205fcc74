package search

import "github.com/poiesic/pagewise/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string, topK int)
	AfterEmbedding(vector []float32)
	AfterSimilaritySearch(results []*core.SearchResult)
	KeywordHit(result *core.SearchResult)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ int)                       {}
func (n *noopMonitor) AfterEmbedding(_ []float32)                  {}
func (n *noopMonitor) AfterSimilaritySearch(_ []*core.SearchResult) {}
func (n *noopMonitor) KeywordHit(_ *core.SearchResult)              {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)                {}
