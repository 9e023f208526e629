// Package embedding defines the vector contract used for semantic similarity.
// The memory graph never computes embeddings itself; a Provider supplies them
// and the retrieval engine only relies on fixed dimensionality and cosine
// similarity.
package embedding

import (
	"context"
	"errors"
	"math"
)

// ErrDimensionMismatch indicates two vectors of different lengths were compared.
var ErrDimensionMismatch = errors.New("embedding: dimension mismatch")

// Vector is a fixed-length numeric embedding.
type Vector []float32

// Provider computes embeddings for text. Implementations must be safe for
// concurrent use.
type Provider interface {
	// Embed returns the embedding for the given text. The returned vector
	// must always have Dimensions() elements.
	Embed(ctx context.Context, text string) (Vector, error)

	// Dimensions returns the fixed vector length this provider produces.
	Dimensions() int
}

// Cosine returns the cosine similarity of a and b in [-1, 1].
// Returns 0 for empty vectors and ErrDimensionMismatch for unequal lengths.
func Cosine(a, b Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	if len(a) == 0 {
		return 0, nil
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
