package adapter

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
)

// MockLLM is an offline LLM implementation. Embeddings are hash-seeded unit
// vectors, so identical input always yields identical output; expansion uses
// fixed templates. Used in tests and in --mock-llm mode.
type MockLLM struct {
	dimensions int
}

var expandTemplates = []string{
	"A detailed scene featuring %s, with rich colors and textures.",
	"An artistic visualization of %s, showcasing intricate details.",
	"A vivid depiction of %s, highlighting its key features.",
}

func NewMockLLM(dimensions int) *MockLLM {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockLLM{dimensions: dimensions}
}

func (m *MockLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, m.dimensions)
	for i := range vec {
		// LCG keeps the sequence deterministic per input text
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(vec), nil
}

func (m *MockLLM) ExpandPrompt(ctx context.Context, prompt string) (string, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(prompt))
	tmpl := expandTemplates[h.Sum32()%uint32(len(expandTemplates))]

	return fmt.Sprintf(tmpl, prompt), nil
}

func normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}

	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
