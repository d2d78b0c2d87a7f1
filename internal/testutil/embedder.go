package testutil

import (
	"context"
	"hash/fnv"
	"math"
)

// WordEmbedder is a deterministic embedder for tests that need semantic
// grouping without calling a real embedding API. Each word hashes to one
// vector dimension, so texts sharing words land near each other under
// cosine distance while unrelated texts stay far apart.
type WordEmbedder struct {
	// Dimension of produced vectors. Must match the embeddings schema.
	Dimension int
}

// EmbedText produces a normalized bag-of-words vector for text.
func (e *WordEmbedder) EmbedText(_ context.Context, text, _ string) ([]float32, error) {
	return e.embed([]byte(text)), nil
}

// EmbedImage produces a vector from the raw image bytes.
func (e *WordEmbedder) EmbedImage(_ context.Context, data []byte, _ string) ([]float32, error) {
	return e.embed(data), nil
}

func (e *WordEmbedder) embed(data []byte) []float32 {
	dim := e.Dimension
	if dim <= 0 {
		dim = 768
	}
	vec := make([]float32, dim)

	word := make([]byte, 0, 16)
	flush := func() {
		if len(word) == 0 {
			return
		}
		h := fnv.New32a()
		_, _ = h.Write(word)
		vec[int(h.Sum32())%dim]++
		word = word[:0]
	}
	for _, b := range data {
		if b == ' ' || b == '\n' || b == '\t' {
			flush()
			continue
		}
		word = append(word, b)
	}
	flush()

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
