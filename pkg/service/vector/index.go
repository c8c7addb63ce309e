package vector

import (
	"math"
	"sort"
	"sync"

	"github.com/m-mizutani/fabrica/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

type entry struct {
	id  model.RecordID
	vec []float32
}

// Hit is one result of a similarity query.
type Hit struct {
	ID    model.RecordID
	Score float64
}

// Index is a brute-force cosine similarity index over record embeddings.
// The first inserted vector establishes the dimension; all later vectors
// must match it. Safe for concurrent use.
type Index struct {
	mu      sync.RWMutex
	dim     int
	entries []entry
}

func New() *Index {
	return &Index{}
}

// Insert appends a vector under the given record ID. A vector whose length
// differs from the established dimension is rejected and the index is left
// unchanged.
func (x *Index) Insert(id model.RecordID, vec []float32) error {
	if len(vec) == 0 {
		return goerr.Wrap(model.ErrDimensionMismatch, "empty vector", goerr.V("id", id))
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.dim == 0 {
		x.dim = len(vec)
	} else if len(vec) != x.dim {
		return goerr.Wrap(model.ErrDimensionMismatch, "vector does not match index dimension",
			goerr.V("id", id),
			goerr.V("expected", x.dim),
			goerr.V("actual", len(vec)),
		)
	}

	copied := make([]float32, len(vec))
	copy(copied, vec)
	x.entries = append(x.entries, entry{id: id, vec: copied})

	return nil
}

// Query returns the topK entries most similar to vec, ordered by descending
// cosine similarity. Ties keep insertion order. An empty index yields an
// empty result, topK larger than the index returns everything, and a query
// vector whose length differs from the index dimension yields an empty
// result rather than scoring against vector prefixes.
func (x *Index) Query(vec []float32, topK int) []Hit {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if topK <= 0 || len(x.entries) == 0 {
		return nil
	}
	if len(vec) != x.dim {
		return nil
	}

	hits := make([]Hit, 0, len(x.entries))
	for _, e := range x.entries {
		hits = append(hits, Hit{ID: e.id, Score: cosine(e.vec, vec)})
	}

	// SliceStable keeps insertion order among equal scores
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits
}

// Len returns the number of indexed vectors.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Dimension returns the established vector dimension, or 0 for an empty index.
func (x *Index) Dimension() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dim
}

// cosine computes cosine similarity in float64. A zero-norm vector on either
// side scores 0.0 instead of dividing by zero. Equal lengths are enforced by
// Insert and Query.
func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
