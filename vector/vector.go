package vector

import (
	"context"
	"math"
)

// Embedder defines the interface for creating embeddings from text
type Embedder interface {
	// Embed converts text to a vector embedding
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts to embeddings in a single provider call.
	// Implementations return exactly one vector per input, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the number of embedding dimensions, or 0 when the
	// provider decides at request time.
	Dimension() int
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Mismatched lengths and zero-norm vectors yield 0. The result is clamped
// to [-1, 1] so rounding never leaks outside the valid range.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	switch {
	case math.IsNaN(sim):
		return 0
	case sim > 1:
		return 1
	case sim < -1:
		return -1
	}
	return sim
}

// Norm returns the L2 norm of vec.
func Norm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Normalize scales the vector to unit length (L2 norm) in place.
func Normalize(vec []float32) []float32 {
	n := Norm(vec)
	if n == 0 {
		return vec
	}
	inv := float32(1 / n)
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

// MeanPool averages token vectors into a single vector. Rows with a length
// different from the first row are rejected by returning nil.
func MeanPool(rows [][]float32) []float32 {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil
	}
	dim := len(rows[0])
	out := make([]float32, dim)
	for _, row := range rows {
		if len(row) != dim {
			return nil
		}
		for i, v := range row {
			out[i] += v
		}
	}
	n := float32(len(rows))
	for i := range out {
		out[i] /= n
	}
	return out
}
