package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Local is a dependency-free token-hash embedder. Texts sharing tokens land
// near each other, which is enough for duplicate detection and coarse
// similarity ranking when no external model is configured.
type Local struct {
	Dim int // defaults to 16
}

// Compile-time interface check.
var _ Provider = (*Local)(nil)

// Dimensions implements Provider.
func (p *Local) Dimensions() int {
	if p.Dim <= 0 {
		return 16
	}
	return p.Dim
}

// Embed implements Provider. It never fails.
func (p *Local) Embed(_ context.Context, text string) (Vector, error) {
	dim := p.Dimensions()
	vec := make(Vector, dim)

	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		vec[int(h.Sum32())%dim]++
	}

	// Normalise so cosine similarity is well-behaved.
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}

	return vec, nil
}
