// Package testutil provides testing utilities for spargo.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, goroutine-safe random source and comparison helpers
// for vectors.
//
// # Random Vectors
//
//	rng := testutil.NewRNG(seed)
//	x := rng.Float64s(16)     // uniform [0, 1)
//	u := rng.UnitVector(16)   // L2-normalized
//
// # Comparisons
//
//	testutil.MaxAbsDiff(got, want)
package testutil
