package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const mockDims = 256

// MockEmbedder produces deterministic bag-of-words embeddings: each token
// hashes to a bucket, so texts sharing words land near each other under
// cosine similarity. Good enough for tests and offline development, useless
// for real semantics.
type MockEmbedder struct{}

func NewMock() *MockEmbedder {
	return &MockEmbedder{}
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, mockDims)

	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, tok := range tokens {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%mockDims] += 1
	}

	return normalize(vec), nil
}

func (m *MockEmbedder) Dimensions() int {
	return mockDims
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
