// Package spargo solves sparse linear systems with conjugate gradients on a
// partitioned task runtime.
//
// The subpackages form layers:
//
//	space    index spaces, regions with typed fields, partitions
//	sched    deferred scalars, dependence tracking, index launches
//	sparse   COO and CSR operators with derived kernel/domain/range partitions
//	planner  slots, block operators and the vector operations of a solver
//	cg       the conjugate-gradient driver
//
// This package ties them into a Session configured from YAML, with logging,
// metrics and checkpoints:
//
//	cfg := config.Default()
//	cfg.Solver.N = 1000
//	cfg.Checkpoint.Target = "s3://my-bucket/cg/"
//	s, _ := spargo.Open(ctx, cfg, spargo.WithResume())
//	defer s.Close()
//	res, _ := s.Run(ctx)
//
// # Asynchrony
//
// Every solver operation returns immediately. Dot products yield futures
// that later launches consume without blocking the caller; only Run,
// Checkpoint and the result accessors wait.
package spargo
