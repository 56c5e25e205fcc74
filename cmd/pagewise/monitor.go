package main

import (
	"fmt"
	"io"
	"time"

	"github.com/poiesic/pagewise/core"
	"github.com/poiesic/pagewise/search"
)

// verboseMonitor prints each search stage as it happens.
type verboseMonitor struct {
	out   io.Writer
	start time.Time
}

var _ search.SearchMonitor = (*verboseMonitor)(nil)

func newVerboseMonitor(out io.Writer) *verboseMonitor {
	return &verboseMonitor{out: out}
}

func (m *verboseMonitor) Start(query string, topK int) {
	m.start = time.Now()
	fmt.Fprintf(m.out, "query: %q top_k=%d\n", query, topK)
}

func (m *verboseMonitor) AfterEmbedding(vector []float32) {
	fmt.Fprintf(m.out, "embedded query: %d dimensions in %v\n", len(vector), m.elapsed())
}

func (m *verboseMonitor) AfterSimilaritySearch(results []*core.SearchResult) {
	fmt.Fprintf(m.out, "similarity search: %d candidates in %v\n", len(results), m.elapsed())
	for _, r := range results {
		fmt.Fprintf(m.out, "  %s [%0.3f]\n", r.Record.NodeID, r.Score)
	}
}

func (m *verboseMonitor) KeywordHit(result *core.SearchResult) {
	fmt.Fprintf(m.out, "keyword boost: %s -> %0.3f\n", result.Record.NodeID, result.Score)
}

func (m *verboseMonitor) Finish(results []*core.SearchResult) {
	fmt.Fprintf(m.out, "done: %d results in %v\n\n", len(results), m.elapsed())
}

func (m *verboseMonitor) elapsed() time.Duration {
	return time.Since(m.start).Round(time.Microsecond)
}
