package vector_test

import (
	"errors"
	"math"
	"testing"

	"github.com/m-mizutani/fabrica/pkg/model"
	"github.com/m-mizutani/fabrica/pkg/service/vector"
	"github.com/m-mizutani/gt"
)

func TestQueryEmptyIndex(t *testing.T) {
	idx := vector.New()

	gt.A(t, idx.Query([]float32{1, 0, 0}, 5)).Length(0)
	gt.A(t, idx.Query([]float32{1, 0, 0}, 0)).Length(0)
}

func TestIdenticalVectorScoresOne(t *testing.T) {
	idx := vector.New()
	vec := []float32{0.3, -0.5, 0.8}
	gt.NoError(t, idx.Insert(model.RecordID("r1"), vec))

	hits := idx.Query(vec, 1)
	gt.A(t, hits).Length(1)
	gt.Equal(t, hits[0].ID, model.RecordID("r1"))
	gt.B(t, math.Abs(hits[0].Score-1.0) < 1e-6).True()
}

func TestQueryOrdering(t *testing.T) {
	idx := vector.New()
	gt.NoError(t, idx.Insert("far", []float32{-1, 0}))
	gt.NoError(t, idx.Insert("near", []float32{1, 0.1}))
	gt.NoError(t, idx.Insert("mid", []float32{0, 1}))

	hits := idx.Query([]float32{1, 0}, 10)
	gt.A(t, hits).Length(3)
	gt.Equal(t, hits[0].ID, model.RecordID("near"))
	gt.Equal(t, hits[1].ID, model.RecordID("mid"))
	gt.Equal(t, hits[2].ID, model.RecordID("far"))

	for i := 1; i < len(hits); i++ {
		gt.B(t, hits[i-1].Score >= hits[i].Score).True()
	}
}

func TestQueryTieBreakByInsertionOrder(t *testing.T) {
	idx := vector.New()
	// Same direction, different magnitude: cosine scores are equal
	gt.NoError(t, idx.Insert("first", []float32{1, 1}))
	gt.NoError(t, idx.Insert("second", []float32{2, 2}))

	hits := idx.Query([]float32{1, 1}, 2)
	gt.A(t, hits).Length(2)
	gt.Equal(t, hits[0].ID, model.RecordID("first"))
	gt.Equal(t, hits[1].ID, model.RecordID("second"))
}

func TestQueryTopKLargerThanIndex(t *testing.T) {
	idx := vector.New()
	gt.NoError(t, idx.Insert("a", []float32{1, 0}))
	gt.NoError(t, idx.Insert("b", []float32{0, 1}))

	gt.A(t, idx.Query([]float32{1, 0}, 100)).Length(2)
}

func TestQueryTopKLimits(t *testing.T) {
	idx := vector.New()
	gt.NoError(t, idx.Insert("a", []float32{1, 0}))
	gt.NoError(t, idx.Insert("b", []float32{0, 1}))
	gt.NoError(t, idx.Insert("c", []float32{1, 1}))

	gt.A(t, idx.Query([]float32{1, 0}, 2)).Length(2)
}

func TestInsertDimensionMismatch(t *testing.T) {
	idx := vector.New()
	gt.NoError(t, idx.Insert("a", []float32{1, 0, 0}))

	err := idx.Insert("b", []float32{1, 0, 0, 0, 0})
	gt.Error(t, err)
	gt.B(t, errors.Is(err, model.ErrDimensionMismatch)).True()

	// Index must be unchanged after the rejected insert
	gt.Equal(t, idx.Len(), 1)
	gt.Equal(t, idx.Dimension(), 3)
}

func TestInsertEmptyVector(t *testing.T) {
	idx := vector.New()
	err := idx.Insert("a", nil)
	gt.Error(t, err)
	gt.B(t, errors.Is(err, model.ErrDimensionMismatch)).True()
	gt.Equal(t, idx.Len(), 0)
}

func TestQueryDimensionMismatch(t *testing.T) {
	idx := vector.New()
	gt.NoError(t, idx.Insert("a", []float32{1, 0, 0}))

	// Neither a shorter nor a longer query may score against prefixes
	gt.A(t, idx.Query([]float32{1, 0}, 5)).Length(0)
	gt.A(t, idx.Query([]float32{1, 0, 0, 0}, 5)).Length(0)
}

func TestZeroNormQueryVector(t *testing.T) {
	idx := vector.New()
	gt.NoError(t, idx.Insert("a", []float32{1, 2, 3}))

	hits := idx.Query([]float32{0, 0, 0}, 1)
	gt.A(t, hits).Length(1)
	gt.Equal(t, hits[0].Score, 0.0)
}
