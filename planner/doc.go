// Package planner assembles block systems out of distributed vectors and
// sparse operators and runs the collective vector operations an iterative
// solver needs.
//
// A Planner holds an ordered list of slots. Each slot is a vector space with
// a partition and a right-hand side. Operators map one slot into another;
// operators sharing a destination slot are summed by Matvec.
//
//	p := planner.New(rt)
//	s := p.AddRHS(rhs, fidB, part)
//	p.AddCOOMatrix(sparse.Square(space.Float64, 1), s, s, kernel, row, col, entry)
//
//	ws, _ := p.NewWorkspace(fidX, fidY)
//	p.CopyRHS(fidX, ws)
//	p.Matvec(fidY, fidX, ws)
//	dot := p.DotProduct(fidY, fidY, ws)
//
// Operations are deferred. Results become visible once the runtime's
// dependence tracking lets a later reader run, or after Runtime.Fence.
package planner
