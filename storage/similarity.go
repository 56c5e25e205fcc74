package storage

import (
	"cmp"
	"math"
	"slices"

	"github.com/poiesic/pagewise/core"
)

// Score compares two vectors with metric. Under cosine, vectors of different
// length score 0. The other metrics compare over the shorter length.
func Score(metric Metric, a, b []float32) float32 {
	switch metric {
	case MetricDot:
		return dotProduct(a, b)
	case MetricEuclidean:
		return float32(1 / (1 + euclidean(a, b)))
	default:
		return cosine(a, b)
	}
}

// Rank orders results by descending score, then node id ascending, and keeps topK.
// A non-positive topK keeps everything.
func Rank(results []*core.SearchResult, topK int) []*core.SearchResult {
	slices.SortFunc(results, func(a, b *core.SearchResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Record.NodeID, b.Record.NodeID)
	})
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}

// Collect scores one record and appends it to results when it passes filter.
func Collect(results []*core.SearchResult, metric Metric, query []float32, record *core.VectorRecord, filter *Filter) []*core.SearchResult {
	if record == nil || len(record.Vector) == 0 || !filter.Match(record) {
		return results
	}
	score := Score(metric, query, record.Vector)
	if !filter.Accept(score) {
		return results
	}
	return append(results, &core.SearchResult{Record: record, Score: score})
}

func dotProduct(a, b []float32) float32 {
	var sum float32
	for i := range min(len(a), len(b)) {
		sum += a[i] * b[i]
	}
	return sum
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range min(len(a), len(b)) {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
