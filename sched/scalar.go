package sched

import (
	"fmt"
	"math"
)

// Add returns a future resolving to a + b.
func (rt *Runtime) Add(a, b *Future[float64]) *Future[float64] {
	return Join(a, b, func(x, y float64) (float64, error) {
		return rt.checkFinite("add", x+y)
	})
}

// Sub returns a future resolving to a - b.
func (rt *Runtime) Sub(a, b *Future[float64]) *Future[float64] {
	return Join(a, b, func(x, y float64) (float64, error) {
		return rt.checkFinite("sub", x-y)
	})
}

// Divide returns a future resolving to a / b.
func (rt *Runtime) Divide(a, b *Future[float64]) *Future[float64] {
	return Join(a, b, func(x, y float64) (float64, error) {
		if rt.opts.breakdownCheck && y == 0 {
			return 0, fmt.Errorf("%w: division of %g by zero", ErrBreakdown, x)
		}
		return rt.checkFinite("divide", x/y)
	})
}

// Negate returns a future resolving to -a.
func (rt *Runtime) Negate(a *Future[float64]) *Future[float64] {
	return Then(a, func(x float64) (float64, error) { return -x, nil })
}

// Sum chains Add over fs starting from 0 in the given order.
func (rt *Runtime) Sum(fs ...*Future[float64]) *Future[float64] {
	acc := FromValue(0.0)
	for _, f := range fs {
		acc = rt.Add(acc, f)
	}
	return acc
}

func (rt *Runtime) checkFinite(op string, v float64) (float64, error) {
	if rt.opts.breakdownCheck && (math.IsNaN(v) || math.IsInf(v, 0)) {
		return 0, fmt.Errorf("%w: %s produced %g", ErrBreakdown, op, v)
	}
	return v, nil
}
