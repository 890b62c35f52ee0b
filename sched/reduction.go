package sched

import (
	"math"
	"sync/atomic"
	"unsafe"

	"github.com/hupe1980/spargo/space"
)

// RedopID identifies a reduction operator for dependence analysis.
// Reductions with the same operator on the same field may run concurrently.
type RedopID uint32

const (
	// RedopNone marks requirements without a reduction.
	RedopNone RedopID = iota
	// RedopSum is floating-point addition.
	RedopSum
	// RedopMax keeps the larger value.
	RedopMax
)

// ReductionOp is an associative fold with an identity.
type ReductionOp[T any] struct {
	ID       RedopID
	Identity T
	Fold     func(acc, v T) T
}

// Sum returns the addition reduction.
func Sum[T space.Float]() ReductionOp[T] {
	return ReductionOp[T]{
		ID:       RedopSum,
		Identity: 0,
		Fold:     func(acc, v T) T { return acc + v },
	}
}

// Max returns the maximum reduction. Its identity is -Inf.
func Max[T space.Float]() ReductionOp[T] {
	return ReductionOp[T]{
		ID:       RedopMax,
		Identity: T(math.Inf(-1)),
		Fold:     func(acc, v T) T { return max(acc, v) },
	}
}

// ReductionAccessor folds values into a scalar field slice with a
// reduction operator. Folds are atomic, so point tasks with overlapping
// destinations may share it.
type ReductionAccessor[T space.Float] struct {
	data []T
	op   ReductionOp[T]
}

// NewReductionAccessor returns an accessor folding into data with op.
func NewReductionAccessor[T space.Float](data []T, op ReductionOp[T]) ReductionAccessor[T] {
	return ReductionAccessor[T]{data: data, op: op}
}

// NewSumAccessor returns an accessor adding into data.
func NewSumAccessor[T space.Float](data []T) ReductionAccessor[T] {
	return NewReductionAccessor(data, Sum[T]())
}

// Fold combines v into element i.
func (a ReductionAccessor[T]) Fold(i uint32, v T) {
	fold := a.op.Fold
	switch p := any(&a.data[i]).(type) {
	case *float64:
		AtomicFoldFloat64(p, float64(v), func(acc, x float64) float64 { return float64(fold(T(acc), T(x))) })
	case *float32:
		AtomicFoldFloat32(p, float32(v), func(acc, x float32) float32 { return float32(fold(T(acc), T(x))) })
	}
}

// AtomicFoldFloat64 replaces *p with fold(*p, v) in a compare-and-swap loop.
func AtomicFoldFloat64(p *float64, v float64, fold func(acc, v float64) float64) {
	u := (*uint64)(unsafe.Pointer(p))
	for {
		old := atomic.LoadUint64(u)
		next := math.Float64bits(fold(math.Float64frombits(old), v))
		if atomic.CompareAndSwapUint64(u, old, next) {
			return
		}
	}
}

// AtomicFoldFloat32 replaces *p with fold(*p, v) in a compare-and-swap loop.
func AtomicFoldFloat32(p *float32, v float32, fold func(acc, v float32) float32) {
	u := (*uint32)(unsafe.Pointer(p))
	for {
		old := atomic.LoadUint32(u)
		next := math.Float32bits(fold(math.Float32frombits(old), v))
		if atomic.CompareAndSwapUint32(u, old, next) {
			return
		}
	}
}

func add64(acc, v float64) float64 { return acc + v }
func add32(acc, v float32) float32 { return acc + v }

// AtomicAddFloat64 adds v to *p.
func AtomicAddFloat64(p *float64, v float64) { AtomicFoldFloat64(p, v, add64) }

// AtomicAddFloat32 adds v to *p.
func AtomicAddFloat32(p *float32, v float32) { AtomicFoldFloat32(p, v, add32) }
