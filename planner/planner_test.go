package planner_test

import (
	"errors"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/hupe1980/spargo/planner"
	"github.com/hupe1980/spargo/sched"
	"github.com/hupe1980/spargo/space"
	"github.com/hupe1980/spargo/sparse"
	"github.com/hupe1980/spargo/systems"
	"github.com/hupe1980/spargo/testutil"
)

const (
	fidB space.FieldID = 0
	fidX space.FieldID = 1
	fidY space.FieldID = 2
)

func newRuntime(t *testing.T) *sched.Runtime {
	t.Helper()
	rt := sched.NewRuntime(sched.WithWorkers(4))
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

// laplacianPlanner builds a single-slot planner over the n-point Laplacian.
func laplacianPlanner(t *testing.T, rt *sched.Runtime, n int64, pieces int, entry space.EntryType) *planner.Planner {
	t.Helper()
	line := space.Line(n)
	rhs := space.NewRegion(line, space.Scalar(fidB, entry))
	systems.BoundaryRHS(rhs, fidB, 1, 2)

	p := planner.New(rt)
	s := p.AddRHS(rhs, fidB, space.EqualPartition(line, space.Colors(pieces)))
	p.AddCOOMatrix(sparse.Square(entry, 1), s, s,
		systems.Laplacian1DCOO(n, entry), systems.FieldRow, systems.FieldCol, systems.FieldEntry)
	return p
}

func workspace(t *testing.T, p *planner.Planner) []*space.Region {
	t.Helper()
	ws, err := p.NewWorkspace(fidX, fidY)
	require.NoError(t, err)
	t.Cleanup(func() { planner.DestroyWorkspace(ws) })
	return ws
}

func fence(t *testing.T, rt *sched.Runtime) {
	t.Helper()
	require.NoError(t, rt.Fence(t.Context()))
}

func TestCopyRHS(t *testing.T) {
	rt := newRuntime(t)
	p := laplacianPlanner(t, rt, 6, 3, space.Float64)
	ws := workspace(t, p)

	p.CopyRHS(fidX, ws)
	fence(t, rt)
	assert.Equal(t, []float64{1, 0, 0, 0, 0, 2}, ws[0].Float64s(fidX))
}

func TestZeroFill_Idempotent(t *testing.T) {
	rt := newRuntime(t)
	p := laplacianPlanner(t, rt, 10, 4, space.Float64)
	ws := workspace(t, p)
	copy(ws[0].Float64s(fidX), testutil.NewRNG(1).Float64s(10))

	p.ZeroFill(fidX, ws)
	fence(t, rt)
	once := systems.Values(ws[0], fidX)
	p.ZeroFill(fidX, ws)
	fence(t, rt)

	assert.Equal(t, make([]float64, 10), once)
	assert.Equal(t, once, systems.Values(ws[0], fidX))
}

func TestConstantFill(t *testing.T) {
	rt := newRuntime(t)
	for _, entry := range sparse.Entries {
		p := laplacianPlanner(t, rt, 7, 2, entry)
		ws := workspace(t, p)
		p.ConstantFill(fidY, 1.5, ws)
		fence(t, rt)
		assert.Equal(t, []float64{1.5, 1.5, 1.5, 1.5, 1.5, 1.5, 1.5}, systems.Values(ws[0], fidY), "entry=%s", entry)
	}
}

func TestDotProduct(t *testing.T) {
	rt := newRuntime(t)
	rng := testutil.NewRNG(2)

	for _, pieces := range []int{1, 3, 5} {
		p := laplacianPlanner(t, rt, 23, pieces, space.Float64)
		ws := workspace(t, p)
		x := rng.Gaussian(23)
		y := rng.Gaussian(23)
		copy(ws[0].Float64s(fidX), x)
		copy(ws[0].Float64s(fidY), y)

		xx, err := p.DotProduct(fidX, fidX, ws).Get(t.Context())
		require.NoError(t, err)
		xy, err := p.DotProduct(fidX, fidY, ws).Get(t.Context())
		require.NoError(t, err)

		assert.GreaterOrEqual(t, xx, 0.0)
		assert.InDelta(t, floats.Dot(x, x), xx, 1e-12)
		assert.InDelta(t, floats.Dot(x, y), xy, 1e-12)
	}
}

func TestDotProduct_Float32(t *testing.T) {
	rt := newRuntime(t)
	p := laplacianPlanner(t, rt, 9, 2, space.Float32)
	ws := workspace(t, p)
	systems.Fill(ws[0], fidX, 0.5)

	got, err := p.DotProduct(fidX, fidX, ws).Get(t.Context())
	require.NoError(t, err)
	assert.InDelta(t, 9*0.25, got, 1e-6)
}

func TestAxpy_RoundTrip(t *testing.T) {
	rt := newRuntime(t)
	rng := testutil.NewRNG(3)

	for _, entry := range sparse.Entries {
		p := laplacianPlanner(t, rt, 12, 4, entry)
		ws := workspace(t, p)
		for i, v := range rng.Float64s(12) {
			ws[0].SetScalar(fidX, space.Pt(int64(i)), v)
		}
		for i, v := range rng.Float64s(12) {
			ws[0].SetScalar(fidY, space.Pt(int64(i)), v)
		}
		before := systems.Values(ws[0], fidY)

		alpha := sched.FromValue(0.75)
		p.Axpy(fidY, alpha, fidX, ws)
		p.Axpy(fidY, rt.Negate(alpha), fidX, ws)
		fence(t, rt)

		tol := 1e-12
		if entry == space.Float32 {
			tol = 1e-6
		}
		assert.InDeltaSlice(t, before, systems.Values(ws[0], fidY), tol, "entry=%s", entry)
	}
}

func TestXpay(t *testing.T) {
	rt := newRuntime(t)
	for _, entry := range sparse.Entries {
		p := laplacianPlanner(t, rt, 5, 2, entry)
		ws := workspace(t, p)
		systems.Fill(ws[0], fidX, 1)
		systems.Fill(ws[0], fidY, 4)

		p.Xpay(fidY, sched.FromValue(0.5), fidX, ws)
		fence(t, rt)
		assert.Equal(t, []float64{3, 3, 3, 3, 3}, systems.Values(ws[0], fidY), "entry=%s", entry)
	}
}

func TestXpay_SameField(t *testing.T) {
	rt := newRuntime(t)
	for _, entry := range sparse.Entries {
		p := laplacianPlanner(t, rt, 4, 2, entry)
		ws := workspace(t, p)
		systems.Fill(ws[0], fidY, 2)

		p.Xpay(fidY, sched.FromValue(3.0), fidY, ws)
		p.Axpy(fidY, sched.FromValue(1.0), fidY, ws)
		fence(t, rt)
		assert.Equal(t, []float64{16, 16, 16, 16}, systems.Values(ws[0], fidY), "entry=%s", entry)
	}
}

func TestMatvec_OverwritesDestination(t *testing.T) {
	rt := newRuntime(t)
	p := laplacianPlanner(t, rt, 6, 3, space.Float64)
	ws := workspace(t, p)
	systems.Fill(ws[0], fidX, 1)
	systems.Fill(ws[0], fidY, 100)

	p.Matvec(fidY, fidX, ws)
	p.Matvec(fidY, fidX, ws)
	fence(t, rt)
	assert.Equal(t, []float64{1, 0, 0, 0, 0, 1}, ws[0].Float64s(fidY))
}

// identity builds a COO kernel with ones on the diagonal of an n-point line.
func identity(n int64) *space.Region {
	k := space.NewRegion(space.Line(n),
		space.PointField(systems.FieldRow, 1),
		space.PointField(systems.FieldCol, 1),
		space.Scalar(systems.FieldEntry, space.Float64),
	)
	rows, cols, vals := k.Points(systems.FieldRow), k.Points(systems.FieldCol), k.Float64s(systems.FieldEntry)
	for i := range rows {
		rows[i], cols[i], vals[i] = space.Pt(int64(i)), space.Pt(int64(i)), 1
	}
	return k
}

func TestMatvec_BlockCompositionOrder(t *testing.T) {
	rt := newRuntime(t)
	rng := testutil.NewRNG(4)
	n := int64(8)
	x0, x1 := make([]float64, n), make([]float64, n)
	for i := range x0 {
		x0[i], x1[i] = float64(rng.Intn(10)), float64(rng.Intn(10))
	}

	type op struct{ src, dst int }
	run := func(order []op) ([]float64, []float64) {
		p := planner.New(rt)
		var slots [2]int
		for i := range slots {
			line := space.Line(n)
			rhs := space.NewRegion(line, space.Scalar(fidB, space.Float64))
			slots[i] = p.AddRHS(rhs, fidB, space.EqualPartition(line, space.Colors(i+2)))
		}
		for _, o := range order {
			k := identity(n)
			if o.src == o.dst {
				k = systems.Laplacian1DCOO(n, space.Float64)
			}
			p.AddCOOMatrix(sparse.Square(space.Float64, 1), slots[o.src], slots[o.dst],
				k, systems.FieldRow, systems.FieldCol, systems.FieldEntry)
		}
		ws := workspace(t, p)
		copy(ws[0].Float64s(fidX), x0)
		copy(ws[1].Float64s(fidX), x1)
		p.Matvec(fidY, fidX, ws)
		fence(t, rt)
		return ws[0].Float64s(fidY), ws[1].Float64s(fidY)
	}

	a0, a1 := run([]op{{0, 0}, {1, 0}, {1, 1}})
	b0, b1 := run([]op{{1, 1}, {1, 0}, {0, 0}})
	assert.Equal(t, a0, b0)
	assert.Equal(t, a1, b1)

	lap := systems.Dense(systems.Laplacian1DCOO(n, space.Float64), space.Line(n), space.Line(n))
	for i := range a0 {
		var want0, want1 float64
		for j := range lap[i] {
			want0 += lap[i][j] * x0[j]
			want1 += lap[i][j] * x1[j]
		}
		assert.Equal(t, want0+x1[i], a0[i])
		assert.Equal(t, want1, a1[i])
	}
}

func TestCSROperator(t *testing.T) {
	rt := newRuntime(t)
	line := space.Line(9)
	rhs := space.NewRegion(line, space.Scalar(fidB, space.Float64))
	p := planner.New(rt)
	s := p.AddRHS(rhs, fidB, space.EqualPartition(line, space.Colors(3)))
	kernel, rowptr := systems.Laplacian1DCSR(line, space.Float64)
	p.AddCSRMatrix(sparse.Square(space.Float64, 1), s, s, kernel, systems.FieldCol, systems.FieldEntry, rowptr, systems.FieldRowPtr)
	require.Len(t, p.Blocks(), 1)

	ws := workspace(t, p)
	systems.Fill(ws[0], fidX, 1)
	p.Matvec(fidY, fidX, ws)
	fence(t, rt)
	assert.Equal(t, []float64{1, 0, 0, 0, 0, 0, 0, 0, 1}, ws[0].Float64s(fidY))
}

func TestPreconditions(t *testing.T) {
	rt := newRuntime(t)
	p := laplacianPlanner(t, rt, 4, 2, space.Float64)
	ws := workspace(t, p)

	assert.Panics(t, func() { p.ZeroFill(fidX, nil) })
	assert.Panics(t, func() { p.ZeroFill(fidX, append(ws, ws[0])) })
	assert.Panics(t, func() { p.DotProduct(fidX, 42, ws) })

	other := []*space.Region{space.NewRegion(space.Line(4), space.Scalar(fidX, space.Float64))}
	assert.Panics(t, func() { p.ZeroFill(fidX, other) })

	k := systems.Laplacian1DCOO(4, space.Float64)
	assert.Panics(t, func() {
		p.AddCOOMatrix(sparse.Square(space.Float64, 2), 0, 0, k, systems.FieldRow, systems.FieldCol, systems.FieldEntry)
	})
	assert.Panics(t, func() {
		p.AddCOOMatrix(sparse.Square(space.Float64, 1), 0, 1, k, systems.FieldRow, systems.FieldCol, systems.FieldEntry)
	})

	grid := space.NewIndexSpace(space.NewRect(space.Pt(0, 0), space.Pt(1, 1)))
	rhs := space.NewRegion(space.Line(4), space.Scalar(fidB, space.Float64))
	assert.Panics(t, func() { p.AddRHS(rhs, fidB, space.EqualPartition(grid, space.Colors(2))) })

	line := rhs.Space()
	overlapping := space.NewPartition(line, space.Colors(2), []*roaring.Bitmap{
		roaring.BitmapOf(0, 1, 2),
		roaring.BitmapOf(1, 2, 3),
	})
	assert.Panics(t, func() { p.AddRHS(rhs, fidB, overlapping) })

	incomplete := space.PartitionByFunc(line, space.Colors(2), func(pt space.Point) space.Point {
		if pt.At(0) == 3 {
			return space.Pt(7)
		}
		return space.Pt(pt.At(0) % 2)
	})
	assert.Panics(t, func() { p.AddRHS(rhs, fidB, incomplete) })
	assert.Equal(t, 1, p.NumSlots())
}

var errBudget = errors.New("budget exhausted")

type budget struct{ left int64 }

func (b *budget) Acquire(n int64) error {
	if n > b.left {
		return errBudget
	}
	b.left -= n
	return nil
}

func (b *budget) Release(n int64) { b.left += n }

func TestNewWorkspace_Accounting(t *testing.T) {
	rt := newRuntime(t)
	acct := &budget{left: 8 * 10}

	p := planner.New(rt, planner.WithAccountant(acct))
	for range 2 {
		line := space.Line(5)
		rhs := space.NewRegion(line, space.Scalar(fidB, space.Float64))
		p.AddRHS(rhs, fidB, space.EqualPartition(line, space.Colors(1)))
	}

	ws, err := p.NewWorkspace(fidX)
	require.NoError(t, err)
	assert.Equal(t, int64(0), acct.left)

	_, err = p.NewWorkspace(fidY)
	require.ErrorIs(t, err, errBudget)

	planner.DestroyWorkspace(ws)
	assert.Equal(t, int64(80), acct.left)
}
