package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/spargo/space"
)

func TestLaplacian1DCOO(t *testing.T) {
	n := int64(5)
	k := Laplacian1DCOO(n, space.Float64)
	require.Equal(t, uint64(13), k.Space().Volume())

	line := space.Line(n)
	a := Dense(k, line, line)
	for i := range a {
		for j := range a[i] {
			want := 0.0
			switch {
			case i == j:
				want = 2
			case i-j == 1 || j-i == 1:
				want = -1
			}
			assert.Equal(t, want, a[i][j], "a[%d][%d]", i, j)
		}
	}
	// Original storage order: diagonal, then sub- and super-diagonal.
	assert.Equal(t, space.Pt(1), k.Points(FieldRow)[1])
	assert.Equal(t, space.Pt(0), k.Points(FieldCol)[1])
}

func TestLaplacian1DCSR(t *testing.T) {
	rows := space.Line(4)
	k, rp := Laplacian1DCSR(rows, space.Float32)
	ranges := rp.Rects(FieldRowPtr)
	assert.Equal(t, space.Rect1(0, 1), ranges[0])
	assert.Equal(t, space.Rect1(2, 4), ranges[1])
	assert.Equal(t, space.Rect1(8, 9), ranges[3])

	cols := k.Points(FieldCol)
	vals := Values(k, FieldEntry)
	assert.Equal(t, []space.Point{space.Pt(1), space.Pt(2), space.Pt(3)}, cols[5:8])
	assert.Equal(t, []float64{-1, 2, -1}, vals[5:8])

	assert.Panics(t, func() { Laplacian1DCSR(space.NewIndexSpace(space.NewRect(space.Pt(0, 0), space.Pt(1, 1))), space.Float64) })
}

func TestLaplacian2DCOO(t *testing.T) {
	k := Laplacian2DCOO(3, 2, space.Float64)
	grid := space.NewIndexSpace(space.NewRect(space.Pt(0, 0), space.Pt(2, 1)))
	a := Dense(k, grid, grid)
	for i := range a {
		var sum float64
		for _, v := range a[i] {
			sum += v
		}
		assert.Equal(t, 4.0, a[i][i])
		// Rows sum to the number of missing neighbours.
		assert.GreaterOrEqual(t, sum, 1.0)
	}
	assert.Equal(t, uint64(6+8+6), k.Space().Volume())
}

func TestVectors(t *testing.T) {
	r := space.NewRegion(space.Line(6), space.Scalar(0, space.Float64), space.Scalar(1, space.Float32))
	Fill(r, 1, 3)
	assert.Equal(t, []float64{3, 3, 3, 3, 3, 3}, Values(r, 1))

	BoundaryRHS(r, 0, -1, 2)
	assert.Equal(t, []float64{-1, 0, 0, 0, 0, 2}, Values(r, 0))
}
