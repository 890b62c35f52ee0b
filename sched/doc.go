// Package sched is an in-process task runtime over the regions and
// partitions of package space.
//
// Work is submitted as index launches: one point task per color of a launch
// domain, each seeing the subsets of its color in the partitions named by the
// launch's requirements. The runtime orders launches by the privileges they
// declare on region fields:
//
//   - readers wait for the preceding writers and reducers,
//   - reducers with the same operator run concurrently,
//   - writers wait for everything before them.
//
// Submission returns immediately with an Event or a Future. Scalar results
// (for example global dot products) are futures that can be combined with
// Add, Divide and Negate and passed to later launches without blocking the
// submitter. Only Future.Get blocks.
//
// Task bodies are preregistered per variant (operation, entry type, rank) in
// package init functions. The registry is sealed when the first Runtime is
// created, which assigns stable task IDs.
package sched
