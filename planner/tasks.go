package planner

import (
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/floats"

	"github.com/hupe1980/spargo/sched"
	"github.com/hupe1980/spargo/space"
	"github.com/hupe1980/spargo/sparse"
)

const (
	opFill = "fill"
	opCopy = "copy"
	opDot  = "dot"
	opAxpy = "axpy"
	opXpay = "xpay"
)

func init() {
	reg := sched.DefaultRegistry()
	for op, fns := range map[string][2]sched.TaskFunc{
		opFill: {fillTask[float32], fillTask[float64]},
		opCopy: {copyTask[float32], copyTask[float64]},
		opDot:  {dot32, dot64},
		opAxpy: {axpy32, axpy64},
		opXpay: {xpay32, xpay64},
	} {
		sched.PreregisterRanks(reg, op, sparse.Entries, func(e space.EntryType) sched.TaskFunc {
			if e == space.Float32 {
				return fns[0]
			}
			return fns[1]
		})
	}
}

// Point tasks touch contiguous runs of their shard; the helpers below apply
// a kernel to each run.

func eachRun[T any](pr sched.PhysicalRegion, data []T, fn func(seg []T, lo uint32)) {
	for _, r := range pr.Runs() {
		fn(data[r.Lo:r.Hi], r.Lo)
	}
}

func fillTask[T space.Float](tc *sched.TaskContext) (float64, error) {
	dst := tc.Regions[0]
	v := T(tc.Arg.(float64))
	eachRun(dst, space.Scalars[T](dst.Region, dst.Field(0)), func(seg []T, _ uint32) {
		for i := range seg {
			seg[i] = v
		}
	})
	return 0, nil
}

func copyTask[T space.Float](tc *sched.TaskContext) (float64, error) {
	dst, src := tc.Regions[0], tc.Regions[1]
	in := space.Scalars[T](src.Region, src.Field(0))
	eachRun(dst, space.Scalars[T](dst.Region, dst.Field(0)), func(seg []T, lo uint32) {
		copy(seg, in[lo:lo+uint32(len(seg))])
	})
	return 0, nil
}

func dot64(tc *sched.TaskContext) (float64, error) {
	v, w := tc.Regions[0], tc.Regions[1]
	a, b := v.Region.Float64s(v.Field(0)), w.Region.Float64s(w.Field(0))
	var sum float64
	for _, r := range v.Runs() {
		sum += floats.Dot(a[r.Lo:r.Hi], b[r.Lo:r.Hi])
	}
	return sum, nil
}

func dot32(tc *sched.TaskContext) (float64, error) {
	v, w := tc.Regions[0], tc.Regions[1]
	a, b := v.Region.Float32s(v.Field(0)), w.Region.Float32s(w.Field(0))
	var sum float64
	for _, r := range v.Runs() {
		sum += float64(blas32.Dot(vec32(a[r.Lo:r.Hi]), vec32(b[r.Lo:r.Hi])))
	}
	return sum, nil
}

func vec32(s []float32) blas32.Vector {
	return blas32.Vector{N: len(s), Data: s, Inc: 1}
}

func axpy64(tc *sched.TaskContext) (float64, error) {
	y, x := tc.Regions[0], tc.Regions[1]
	alpha := tc.Futures[0]
	in := x.Region.Float64s(x.Field(0))
	eachRun(y, y.Region.Float64s(y.Field(0)), func(seg []float64, lo uint32) {
		floats.AddScaled(seg, alpha, in[lo:lo+uint32(len(seg))])
	})
	return 0, nil
}

func axpy32(tc *sched.TaskContext) (float64, error) {
	y, x := tc.Regions[0], tc.Regions[1]
	alpha := float32(tc.Futures[0])
	in := x.Region.Float32s(x.Field(0))
	eachRun(y, y.Region.Float32s(y.Field(0)), func(seg []float32, lo uint32) {
		blas32.Axpy(alpha, vec32(in[lo:lo+uint32(len(seg))]), vec32(seg))
	})
	return 0, nil
}

// aliased reports whether both requirements name the same field, in which
// case xpay reduces to y *= 1 + alpha.
func aliased(y, x sched.PhysicalRegion) bool {
	return y.Region == x.Region && y.Field(0) == x.Field(0)
}

func xpay64(tc *sched.TaskContext) (float64, error) {
	y, x := tc.Regions[0], tc.Regions[1]
	alpha := tc.Futures[0]
	in := x.Region.Float64s(x.Field(0))
	same := aliased(y, x)
	eachRun(y, y.Region.Float64s(y.Field(0)), func(seg []float64, lo uint32) {
		if same {
			floats.Scale(1+alpha, seg)
			return
		}
		floats.Scale(alpha, seg)
		floats.Add(seg, in[lo:lo+uint32(len(seg))])
	})
	return 0, nil
}

func xpay32(tc *sched.TaskContext) (float64, error) {
	y, x := tc.Regions[0], tc.Regions[1]
	alpha := float32(tc.Futures[0])
	in := x.Region.Float32s(x.Field(0))
	same := aliased(y, x)
	eachRun(y, y.Region.Float32s(y.Field(0)), func(seg []float32, lo uint32) {
		if same {
			blas32.Scal(1+alpha, vec32(seg))
			return
		}
		blas32.Scal(alpha, vec32(seg))
		blas32.Axpy(1, vec32(in[lo:lo+uint32(len(seg))]), vec32(seg))
	})
	return 0, nil
}
