package space

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRect(t *testing.T) {
	r := NewRect(Pt(0, 0), Pt(2, 3))
	assert.Equal(t, uint64(12), r.Volume())
	assert.True(t, r.Contains(Pt(2, 3)))
	assert.False(t, r.Contains(Pt(3, 0)))
	assert.False(t, r.Contains(Pt(1)))

	assert.True(t, Rect1(5, 4).Empty())
	assert.Equal(t, uint64(0), EmptyRect(3).Volume())

	in := r.Intersect(NewRect(Pt(1, 2), Pt(5, 5)))
	assert.Equal(t, NewRect(Pt(1, 2), Pt(2, 3)), in)
	assert.True(t, r.Intersect(NewRect(Pt(3, 0), Pt(4, 1))).Empty())

	u := Rect1(0, 1).Union(Rect1(4, 6))
	assert.Equal(t, Rect1(0, 6), u)
	assert.Equal(t, "[(0,0)..(2,3)]", r.String())
}

func TestPointPanics(t *testing.T) {
	assert.Panics(t, func() { Pt() })
	assert.Panics(t, func() { Pt(1, 2, 3, 4, 5, 6, 7, 8, 9, 10) })
	assert.Panics(t, func() { NewRect(Pt(0), Pt(0, 0)) })
}

func TestIndexSpace_Linearization(t *testing.T) {
	s := NewIndexSpace(NewRect(Pt(1, -1, 0), Pt(3, 1, 4)))
	require.Equal(t, uint64(45), s.Volume())

	seen := make(map[uint32]bool)
	for off := uint32(0); off < uint32(s.Volume()); off++ {
		p := s.Delinear(off)
		require.True(t, s.Contains(p), p.String())
		require.Equal(t, off, s.Linear(p))
		seen[off] = true
	}
	assert.Len(t, seen, 45)
	assert.Equal(t, uint32(0), s.Linear(Pt(1, -1, 0)))
	assert.Equal(t, uint32(1), s.Linear(Pt(1, -1, 1)))
	assert.Equal(t, uint32(5), s.Linear(Pt(1, 0, 0)))
}

func TestIndexSpace_LinearRange(t *testing.T) {
	s := NewIndexSpace(NewRect(Pt(0, 0), Pt(3, 3)))

	runs := s.LinearRange(NewRect(Pt(1, 1), Pt(2, 2)))
	assert.Equal(t, []Run{{Lo: 5, Hi: 7}, {Lo: 9, Hi: 11}}, runs)

	// Full rows coalesce into a single run.
	runs = s.LinearRange(NewRect(Pt(1, 0), Pt(2, 3)))
	assert.Equal(t, []Run{{Lo: 4, Hi: 12}}, runs)

	assert.Empty(t, s.LinearRange(NewRect(Pt(5, 5), Pt(6, 6))))

	line := Line(10)
	assert.Equal(t, []Run{{Lo: 8, Hi: 10}}, line.LinearRange(Rect1(8, 20)))
}

func TestIndexSpace_CoordWidth(t *testing.T) {
	assert.NotPanics(t, func() {
		NewIndexSpace(Rect1(0, 10), WithCoordWidth(Uint32))
	})
	assert.Panics(t, func() {
		NewIndexSpace(Rect1(-1, 10), WithCoordWidth(Uint32))
	})
	assert.Panics(t, func() {
		NewIndexSpace(Rect1(0, 1<<33), WithCoordWidth(Int32))
	})
	assert.Equal(t, "int32", Int32.String())
}

func TestRegion_Fields(t *testing.T) {
	s := Line(8)
	r := NewRegion(s,
		Scalar(1, Float64),
		Scalar(2, Float32),
		PointField(3, 2),
		RectField(4, 1),
	)

	assert.Len(t, r.Float64s(1), 8)
	assert.Len(t, Scalars[float32](r, 2), 8)
	assert.Equal(t, Origin(2), r.Points(3)[0])
	assert.True(t, r.Rects(4)[0].Empty())
	assert.Equal(t, int64(8*8+8*4+8*16+8*16), r.Bytes())

	r.SetScalar(2, Pt(3), 1.5)
	assert.InDelta(t, 1.5, r.ScalarAt(2, Pt(3)), 1e-7)

	ids := []FieldID{}
	for _, f := range r.Fields() {
		ids = append(ids, f.ID)
	}
	assert.Equal(t, []FieldID{1, 2, 3, 4}, ids)

	assert.Panics(t, func() { r.Float32s(1) })
	assert.Panics(t, func() { r.Float64s(99) })
	assert.Panics(t, func() { NewRegion(s, Scalar(1, Float64), Scalar(1, Float32)) })

	r.Destroy()
	assert.True(t, r.Destroyed())
	assert.Panics(t, func() { r.Float64s(1) })
}

type countingAccountant struct {
	limit, used int64
}

func (c *countingAccountant) Acquire(n int64) error {
	if c.used+n > c.limit {
		return assert.AnError
	}
	c.used += n
	return nil
}

func (c *countingAccountant) Release(n int64) { c.used -= n }

func TestRegion_Accounting(t *testing.T) {
	acct := &countingAccountant{limit: 100}
	r, err := NewAccountedRegion(acct, Line(10), Scalar(0, Float64))
	require.NoError(t, err)
	assert.Equal(t, int64(80), acct.used)

	_, err = NewAccountedRegion(acct, Line(10), Scalar(0, Float32))
	require.ErrorIs(t, err, assert.AnError)

	r.Destroy()
	r.Destroy()
	assert.Equal(t, int64(0), acct.used)
}

func TestEqualPartition(t *testing.T) {
	tests := []struct {
		n, colors int64
	}{
		{16, 4},
		{10, 3},
		{3, 5},
		{1, 1},
	}
	for _, tt := range tests {
		p := EqualPartition(Line(tt.n), Colors(int(tt.colors)))
		assert.True(t, p.Disjoint())
		assert.True(t, p.Complete())

		var lo, hi uint64 = uint64(tt.n), 0
		for i := 0; i < p.Colors(); i++ {
			c := p.SubAt(i).Cardinality()
			lo, hi = min(lo, c), max(hi, c)
			assert.LessOrEqual(t, len(p.SubAt(i).Runs()), 1)
		}
		assert.LessOrEqual(t, hi-lo, uint64(1))
	}
}

func TestEmptyPartition(t *testing.T) {
	p := EmptyPartition(Line(6), Colors(3))
	assert.Equal(t, 3, p.Colors())
	assert.True(t, p.Disjoint())
	assert.False(t, p.Complete())
	for i := range p.Colors() {
		assert.True(t, p.SubAt(i).Empty())
	}
}

func TestPartitionByFunc(t *testing.T) {
	s := Line(10)
	p := PartitionByFunc(s, Colors(2), func(pt Point) Point {
		if pt.At(0) == 9 {
			return Pt(7)
		}
		return Pt(pt.At(0) % 2)
	})
	assert.True(t, p.Disjoint())
	assert.False(t, p.Complete())
	assert.Equal(t, uint64(5), p.Sub(Pt(0)).Cardinality())
	assert.Equal(t, uint64(4), p.Sub(Pt(1)).Cardinality())
	assert.Equal(t, Rect1(1, 7), p.Sub(Pt(1)).Bounds())
	assert.Len(t, p.Sub(Pt(1)).Runs(), 4)
}

func TestSubspace_Bounds2D(t *testing.T) {
	s := NewIndexSpace(NewRect(Pt(0, 0), Pt(3, 3)))
	p := EqualPartition(s, Colors(3))
	// The first block covers offsets 0..5: row 0 and half of row 1.
	assert.Equal(t, NewRect(Pt(0, 0), Pt(1, 3)), p.SubAt(0).Bounds())
	for i := 0; i < p.Colors(); i++ {
		sub := p.SubAt(i)
		sub.Each(func(off uint32) {
			assert.True(t, sub.Bounds().Contains(s.Delinear(off)))
		})
	}
}

// laplacianCOO builds the kernel of the n-point 1D negative Laplacian.
func laplacianCOO(n int64) (*Region, *IndexSpace) {
	nnz := 3*n - 2
	ks := Line(nnz)
	k := NewRegion(ks, PointField(0, 1), PointField(1, 1))
	rows, cols := k.Points(0), k.Points(1)
	var e int
	for i := int64(0); i < n; i++ {
		rows[e], cols[e] = Pt(i), Pt(i)
		e++
		if i+1 < n {
			rows[e], cols[e] = Pt(i+1), Pt(i)
			e++
			rows[e], cols[e] = Pt(i), Pt(i+1)
			e++
		}
	}
	return k, ks
}

func TestPreimageImageRoundTrip(t *testing.T) {
	n := int64(16)
	k, ks := laplacianCOO(n)
	vec := Line(n)
	rangePart := EqualPartition(vec, Colors(4))

	kernel := ByPreimage(ks, rangePart, k, 0)
	assert.True(t, kernel.Disjoint())
	assert.True(t, kernel.Complete())

	back := ByImage(vec, kernel, k, 0)
	assert.True(t, back.Refines(rangePart))

	// Ghost (column) partition covers each row block plus its neighbours.
	ghost := ByImage(vec, kernel, k, 1)
	assert.False(t, ghost.Disjoint())
	assert.Equal(t, Rect1(0, 4), ghost.SubAt(0).Bounds())
	assert.Equal(t, Rect1(3, 8), ghost.SubAt(1).Bounds())
	assert.True(t, rangePart.Refines(ghost))
}

func TestPreimage_Overlapping(t *testing.T) {
	n := int64(6)
	k, ks := laplacianCOO(n)
	vec := Line(n)
	overlap := NewPartition(vec, Colors(2), bitmaps(
		[]uint32{0, 1, 2, 3},
		[]uint32{2, 3, 4, 5},
	))
	assert.False(t, overlap.Disjoint())

	kernel := ByPreimage(ks, overlap, k, 1)
	assert.False(t, kernel.Disjoint())
	assert.True(t, kernel.Complete())
	assert.True(t, ByImage(vec, kernel, k, 1).Refines(overlap))
}

func bitmaps(sets ...[]uint32) []*roaring.Bitmap {
	out := make([]*roaring.Bitmap, len(sets))
	for i, s := range sets {
		out[i] = roaring.BitmapOf(s...)
	}
	return out
}

func TestPreimageRange(t *testing.T) {
	// Rowptr-style rect field over 4 rows into an 8-entry kernel.
	rows := Line(4)
	rp := NewRegion(rows, RectField(0, 1))
	ranges := rp.Rects(0)
	ranges[0] = Rect1(0, 1)
	ranges[1] = Rect1(2, 4)
	ranges[2] = Rect1(5, 4) // empty row
	ranges[3] = Rect1(5, 7)

	kernel := Line(8)
	rowPart := EqualPartition(rows, Colors(2))
	kp := ByImageRange(kernel, rowPart, rp, 0)
	assert.Equal(t, uint64(5), kp.SubAt(0).Cardinality())
	assert.Equal(t, uint64(3), kp.SubAt(1).Cardinality())
	assert.True(t, kp.Disjoint())
	assert.True(t, kp.Complete())

	back := ByPreimageRange(rows, kp, rp, 0)
	// The empty row intersects nothing.
	assert.False(t, back.SubAt(1).ContainsLinear(2))
	assert.True(t, back.Refines(rowPart))
}

func TestImage_DropsOutOfBounds(t *testing.T) {
	ks := Line(3)
	k := NewRegion(ks, PointField(0, 1))
	pts := k.Points(0)
	pts[0], pts[1], pts[2] = Pt(0), Pt(42), Pt(-1)

	img := ByImage(Line(4), EqualPartition(ks, Colors(1)), k, 0)
	assert.Equal(t, []uint32{0}, img.SubAt(0).Offsets())
}

func TestDerivePanics(t *testing.T) {
	k, ks := laplacianCOO(4)
	vec := Line(4)
	p := EqualPartition(vec, Colors(2))
	assert.Panics(t, func() { ByImage(vec, p, k, 0) })
	assert.Panics(t, func() { ByPreimage(ks, p, k, 7) })
	assert.Panics(t, func() { ByPreimage(ks, EqualPartition(NewIndexSpace(NewRect(Pt(0, 0), Pt(1, 1))), Colors(2)), k, 0) })
}
