package cg_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/spargo/cg"
	"github.com/hupe1980/spargo/planner"
	"github.com/hupe1980/spargo/sched"
	"github.com/hupe1980/spargo/space"
	"github.com/hupe1980/spargo/sparse"
	"github.com/hupe1980/spargo/systems"
	"github.com/hupe1980/spargo/testutil"
)

const fidB space.FieldID = 0

func newRuntime(t *testing.T, opts ...sched.Option) *sched.Runtime {
	t.Helper()
	rt := sched.NewRuntime(append([]sched.Option{sched.WithWorkers(4)}, opts...)...)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

// addLaplacian registers an n-point Dirichlet problem with boundary values
// 1 and 2 as a new slot with its own diagonal block.
func addLaplacian(p *planner.Planner, n int64, pieces int, entry space.EntryType, csr bool) int {
	line := space.Line(n)
	rhs := space.NewRegion(line, space.Scalar(fidB, entry))
	systems.BoundaryRHS(rhs, fidB, 1, 2)
	s := p.AddRHS(rhs, fidB, space.EqualPartition(line, space.Colors(pieces)))
	if csr {
		kernel, rowptr := systems.Laplacian1DCSR(line, entry)
		p.AddCSRMatrix(sparse.Square(entry, 1), s, s, kernel, systems.FieldCol, systems.FieldEntry, rowptr, systems.FieldRowPtr)
		return s
	}
	p.AddCOOMatrix(sparse.Square(entry, 1), s, s,
		systems.Laplacian1DCOO(n, entry), systems.FieldRow, systems.FieldCol, systems.FieldEntry)
	return s
}

// exact is the solution of the boundary problem: a straight line from 1 to 2.
func exact(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1 + float64(i+1)/float64(n+1)
	}
	return out
}

func TestSolve_Laplacian(t *testing.T) {
	for _, csr := range []bool{false, true} {
		rt := newRuntime(t)
		p := planner.New(rt)
		addLaplacian(p, 16, 4, space.Float64, csr)

		s, err := cg.New(p)
		require.NoError(t, err)
		s.Solve(17)
		assert.Equal(t, 17, s.Iterations())

		res, err := s.Residuals(t.Context())
		require.NoError(t, err)
		require.Len(t, res, 18)
		assert.Equal(t, 5.0, res[0])
		for _, r := range res {
			assert.False(t, math.IsNaN(r) || math.IsInf(r, 0))
			assert.GreaterOrEqual(t, r, 0.0)
		}
		assert.Less(t, res[17], 1e-20, "csr=%v", csr)

		x, err := s.Solution(t.Context(), 0)
		require.NoError(t, err)
		assert.Less(t, testutil.MaxAbsDiff(exact(16), x), 1e-10, "csr=%v", csr)
		require.NoError(t, s.Destroy())
	}
}

// onesRHS registers a 16-point Laplacian with an all-ones right-hand side.
// CG terminates exactly after 8 iterations; the next alpha is 0/0.
func onesRHS(p *planner.Planner) {
	line := space.Line(16)
	rhs := space.NewRegion(line, space.Scalar(fidB, space.Float64))
	systems.Fill(rhs, fidB, 1)
	s := p.AddRHS(rhs, fidB, space.EqualPartition(line, space.Colors(4)))
	p.AddCOOMatrix(sparse.Square(space.Float64, 1), s, s,
		systems.Laplacian1DCOO(16, space.Float64), systems.FieldRow, systems.FieldCol, systems.FieldEntry)
}

var onesResiduals = []float64{16, 112, 84, 60, 40, 24, 12, 4, 0}

func TestSolve_OnesRHS(t *testing.T) {
	t.Run("nan after convergence", func(t *testing.T) {
		p := planner.New(newRuntime(t))
		onesRHS(p)

		s, err := cg.New(p)
		require.NoError(t, err)
		s.Solve(17)

		res, err := s.Residuals(t.Context())
		require.NoError(t, err)
		require.Len(t, res, 18)
		for i, want := range onesResiduals {
			assert.InDelta(t, want, res[i], 1e-9, "i=%d", i)
		}
		assert.Equal(t, 0.0, res[8])
		for i := 9; i < len(res); i++ {
			assert.True(t, math.IsNaN(res[i]), "i=%d", i)
		}
		require.NoError(t, p.Runtime().Err())
		require.NoError(t, s.Destroy())
	})

	t.Run("breakdown check", func(t *testing.T) {
		p := planner.New(newRuntime(t))
		onesRHS(p)

		s, err := cg.New(p, cg.WithBreakdownCheck())
		require.NoError(t, err)
		s.Solve(17)

		res, err := s.Residuals(t.Context())
		require.ErrorIs(t, err, sched.ErrBreakdown)
		require.Len(t, res, len(onesResiduals))
		for i, want := range onesResiduals {
			assert.InDelta(t, want, res[i], 1e-9, "i=%d", i)
		}
		require.NoError(t, s.Destroy())
	})
}

func TestSolve_Float32(t *testing.T) {
	rt := newRuntime(t)
	p := planner.New(rt)
	addLaplacian(p, 16, 3, space.Float32, false)

	s, err := cg.New(p)
	require.NoError(t, err)
	s.Solve(16)

	x, err := s.Solution(t.Context(), 0)
	require.NoError(t, err)
	assert.Less(t, testutil.MaxAbsDiff(exact(16), x), 1e-3)
	require.NoError(t, s.Destroy())
}

func TestSolve_BlockDiagonal(t *testing.T) {
	rt := newRuntime(t)
	p := planner.New(rt)
	a := addLaplacian(p, 12, 2, space.Float64, false)
	b := addLaplacian(p, 12, 3, space.Float64, true)

	s, err := cg.New(p)
	require.NoError(t, err)
	s.Solve(12)

	res, err := s.Residuals(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 10.0, res[0])

	for _, slot := range []int{a, b} {
		x, err := s.Solution(t.Context(), slot)
		require.NoError(t, err)
		assert.Less(t, testutil.MaxAbsDiff(exact(12), x), 1e-10, "slot=%d", slot)
	}
	require.NoError(t, s.Destroy())
}

func TestStep_DoesNotBlock(t *testing.T) {
	rt := newRuntime(t)
	p := planner.New(rt)
	addLaplacian(p, 8, 2, space.Float64, false)

	s, err := cg.New(p)
	require.NoError(t, err)
	s.Solve(3)

	futures := s.ResidualNormSquared()
	assert.Len(t, futures, 4)
	res, err := s.Residuals(t.Context())
	require.NoError(t, err)
	for i, f := range futures {
		v, err := f.Get(t.Context())
		require.NoError(t, err)
		assert.Equal(t, res[i], v)
	}
	require.NoError(t, s.Destroy())
}

// zeroRHS registers a Laplacian slot whose right-hand side is zero, so the
// first alpha is 0/0.
func zeroRHS(p *planner.Planner) {
	line := space.Line(4)
	rhs := space.NewRegion(line, space.Scalar(fidB, space.Float64))
	s := p.AddRHS(rhs, fidB, space.EqualPartition(line, space.Colors(2)))
	p.AddCOOMatrix(sparse.Square(space.Float64, 1), s, s,
		systems.Laplacian1DCOO(4, space.Float64), systems.FieldRow, systems.FieldCol, systems.FieldEntry)
}

func TestBreakdown_PropagatesNaN(t *testing.T) {
	rt := newRuntime(t)
	p := planner.New(rt)
	zeroRHS(p)

	s, err := cg.New(p)
	require.NoError(t, err)
	s.Solve(2)

	res, err := s.Residuals(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 0.0, res[0])
	assert.True(t, math.IsNaN(res[1]))
	assert.True(t, math.IsNaN(res[2]))
	require.NoError(t, s.Destroy())
}

func TestBreakdown_Detected(t *testing.T) {
	for name, tc := range map[string]struct {
		rtOpts []sched.Option
		cgOpts []cg.Option
	}{
		"solver": {cgOpts: []cg.Option{cg.WithBreakdownCheck()}},
		"runtime": {rtOpts: []sched.Option{sched.WithBreakdownCheck(true)}},
	} {
		t.Run(name, func(t *testing.T) {
			rt := newRuntime(t, tc.rtOpts...)
			p := planner.New(rt)
			zeroRHS(p)

			s, err := cg.New(p, tc.cgOpts...)
			require.NoError(t, err)
			s.Solve(2)

			res, err := s.Residuals(t.Context())
			require.ErrorIs(t, err, sched.ErrBreakdown)
			assert.Equal(t, []float64{0}, res)

			_, err = s.Solution(t.Context(), 0)
			require.ErrorIs(t, err, sched.ErrBreakdown)
			require.NoError(t, s.Destroy())
		})
	}
}

func TestResume_MatchesUninterrupted(t *testing.T) {
	run := func(t *testing.T, n int) (*planner.Planner, *cg.Solver) {
		p := planner.New(newRuntime(t))
		addLaplacian(p, 16, 4, space.Float64, false)
		s, err := cg.New(p)
		require.NoError(t, err)
		s.Solve(n)
		return p, s
	}

	_, full := run(t, 10)
	want, err := full.Residuals(t.Context())
	require.NoError(t, err)

	hp, head := run(t, 4)
	res, err := head.Residuals(t.Context())
	require.NoError(t, err)
	require.NoError(t, hp.Runtime().Wait())

	tp, tail := run(t, 0)
	require.NoError(t, tp.Runtime().Wait())
	for i, r := range head.Workspace() {
		for _, fid := range []space.FieldID{cg.FieldX, cg.FieldR, cg.FieldP} {
			copy(tail.Workspace()[i].Float64s(fid), r.Float64s(fid))
		}
	}
	require.NoError(t, tail.Resume(4, res))
	assert.Equal(t, 4, tail.Iterations())
	tail.Solve(6)

	got, err := tail.Residuals(t.Context())
	require.NoError(t, err)
	require.Len(t, got, 11)
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-12*max(1, want[i]), "i=%d", i)
	}
	assert.Error(t, tail.Resume(3, res))

	for _, s := range []*cg.Solver{full, head, tail} {
		require.NoError(t, s.Destroy())
	}
}
