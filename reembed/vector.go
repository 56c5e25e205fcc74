package reembed

import "math"

// NormalizeVector scales v to unit length so dot-product stores rank like cosine.
// Returns a new vector; a zero vector stays zero.
func NormalizeVector(v []float32) []float32 {
	result := make([]float32, len(v))
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	if sum == 0 {
		return result
	}
	magnitude := math.Sqrt(sum)
	for i, val := range v {
		result[i] = float32(float64(val) / magnitude)
	}
	return result
}
