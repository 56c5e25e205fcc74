package ai

import (
	"fmt"
	"math"

	"github.com/poiesic/pagewise/core"
)

// CheckEmbeddings verifies a backend response against the embedding contract:
// one vector per input, each of the configured dimension, all values finite.
// A dimension of 0 only requires the vectors to share a common length.
func CheckEmbeddings(expected int, dimension int, vectors [][]float32) error {
	if len(vectors) != expected {
		return fmt.Errorf("%w: embedding result mismatch. expected %d, received %d",
			core.ErrEmbeddingBackend, expected, len(vectors))
	}
	for i, vector := range vectors {
		if len(vector) == 0 {
			return fmt.Errorf("%w: empty embedding at position %d", core.ErrEmbeddingBackend, i)
		}
		want := dimension
		if want == 0 {
			want = len(vectors[0])
		}
		if len(vector) != want {
			return fmt.Errorf("%w: embedding at position %d has dimension %d, expected %d",
				core.ErrEmbeddingBackend, i, len(vector), want)
		}
		for _, v := range vector {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return fmt.Errorf("%w: non-numeric value in embedding at position %d",
					core.ErrEmbeddingBackend, i)
			}
		}
	}
	return nil
}
