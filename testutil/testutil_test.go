package testutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloat64s(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.Float64s(32)

	assert.Len(t, v, 32)
	for _, x := range v {
		assert.GreaterOrEqual(t, x, 0.0)
		assert.Less(t, x, 1.0)
	}

	rng.Reset()
	assert.Equal(t, v, rng.Float64s(32))
	assert.Equal(t, int64(4711), rng.Seed())
}

func TestFillUniformRange(t *testing.T) {
	rng := NewRNG(4711)
	v := make([]float64, 16)
	rng.FillUniformRange(v, -2, -1)
	for _, x := range v {
		assert.GreaterOrEqual(t, x, -2.0)
		assert.Less(t, x, -1.0)
	}
}

func TestUnitVector(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UnitVector(32)

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-12)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, 0.5, MaxAbsDiff([]float64{1, 2}, []float64{1.5, 2}))
	assert.Panics(t, func() { MaxAbsDiff([]float64{1}, nil) })
}
