package sparse

import (
	"fmt"

	"github.com/hupe1980/spargo/sched"
	"github.com/hupe1980/spargo/space"
)

// COO is a coordinate-format operator: one (row, col, entry) record per
// nonzero in no particular order.
type COO struct {
	rt     *sched.Runtime
	shape  Shape
	kernel *space.Region
	row    space.FieldID
	col    space.FieldID
	entry  space.FieldID
	task   sched.TaskID
}

var _ Operator = (*COO)(nil)

// NewCOO wraps a kernel region whose row field holds range points, col
// field holds domain points and entry field holds scalars.
// It panics if the fields do not match shape.
func NewCOO(rt *sched.Runtime, shape Shape, kernel *space.Region, row, col, entry space.FieldID) *COO {
	shape.validate()
	if kernel.Space().Rank() != shape.KernelRank {
		panic(fmt.Sprintf("sparse: kernel rank %d, shape %s", kernel.Space().Rank(), shape))
	}
	checkField(kernel, row, space.KindPoint, shape.RangeRank, "row")
	checkField(kernel, col, space.KindPoint, shape.DomainRank, "col")
	checkField(kernel, entry, shape.Entry.Kind(), 0, "entry")
	return &COO{
		rt:     rt,
		shape:  shape,
		kernel: kernel,
		row:    row,
		col:    col,
		entry:  entry,
		task:   rt.Lookup(sched.Variant{Op: opCOOMatvec, Entry: shape.Entry, Dim: shape.RangeRank}),
	}
}

// Shape implements Operator.
func (a *COO) Shape() Shape { return a.shape }

// KernelRegion implements Operator.
func (a *COO) KernelRegion() *space.Region { return a.kernel }

// KernelPartitionFromDomainPartition implements Operator.
func (a *COO) KernelPartitionFromDomainPartition(p *space.Partition) *space.Partition {
	if err := acquire(a.rt, a.kernel, a.col); err != nil {
		return space.EmptyPartition(a.kernel.Space(), p.ColorSpace())
	}
	return space.ByPreimage(a.kernel.Space(), p, a.kernel, a.col)
}

// KernelPartitionFromRangePartition implements Operator.
func (a *COO) KernelPartitionFromRangePartition(p *space.Partition) *space.Partition {
	if err := acquire(a.rt, a.kernel, a.row); err != nil {
		return space.EmptyPartition(a.kernel.Space(), p.ColorSpace())
	}
	return space.ByPreimage(a.kernel.Space(), p, a.kernel, a.row)
}

// DomainPartitionFromKernelPartition implements Operator.
func (a *COO) DomainPartitionFromKernelPartition(domain *space.IndexSpace, kp *space.Partition) *space.Partition {
	if err := acquire(a.rt, a.kernel, a.col); err != nil {
		return space.EmptyPartition(domain, kp.ColorSpace())
	}
	return space.ByImage(domain, kp, a.kernel, a.col)
}

// RangePartitionFromKernelPartition implements Operator.
func (a *COO) RangePartitionFromKernelPartition(rng *space.IndexSpace, kp *space.Partition) *space.Partition {
	if err := acquire(a.rt, a.kernel, a.row); err != nil {
		return space.EmptyPartition(rng, kp.ColorSpace())
	}
	return space.ByImage(rng, kp, a.kernel, a.row)
}

// Matvec implements Operator.
func (a *COO) Matvec(dst space.Vector, fidDst space.FieldID, src *space.Region, fidSrc space.FieldID,
	kernelPartition, ghostPartition *space.Partition) *sched.Event {
	checkMatvec(a.shape, dst, fidDst, src, fidSrc, kernelPartition, ghostPartition)
	return a.rt.ExecuteIndexSpace(sched.IndexLauncher{
		Task:   a.task,
		Domain: dst.Partition.ColorSpace(),
		Requirements: []sched.Requirement{
			{
				Region:    dst.Region,
				Partition: dst.Partition,
				Fields:    []space.FieldID{fidDst},
				Privilege: sched.Reduce,
				Redop:     sched.RedopSum,
			},
			{
				Region:    a.kernel,
				Partition: kernelPartition,
				Fields:    []space.FieldID{a.row, a.col, a.entry},
				Privilege: sched.ReadOnly,
			},
			{
				Region:    src,
				Partition: ghostPartition,
				Fields:    []space.FieldID{fidSrc},
				Privilege: sched.ReadOnly,
			},
		},
	})
}

// cooMatvec folds entry*src[col] into dst[row] for every nonzero of the
// kernel shard whose row and column lie in the destination and ghost shards.
func cooMatvec[T space.Float](tc *sched.TaskContext) (float64, error) {
	dst, k, src := tc.Regions[0], tc.Regions[1], tc.Regions[2]

	out := sched.NewSumAccessor(space.Scalars[T](dst.Region, dst.Field(0)))
	rows := k.Region.Points(k.Field(0))
	cols := k.Region.Points(k.Field(1))
	vals := space.Scalars[T](k.Region, k.Field(2))
	in := space.Scalars[T](src.Region, src.Field(0))

	dstSpace, srcSpace := dst.Region.Space(), src.Region.Space()
	rangeRect, domainRect := dst.Bounds(), src.Bounds()

	for _, run := range k.Runs() {
		for e := run.Lo; e < run.Hi; e++ {
			i, j := rows[e], cols[e]
			if !rangeRect.Contains(i) || !domainRect.Contains(j) {
				continue
			}
			di, sj := dstSpace.Linear(i), srcSpace.Linear(j)
			if !dst.ContainsLinear(di) || !src.ContainsLinear(sj) {
				continue
			}
			out.Fold(di, vals[e]*in[sj])
		}
	}
	return 0, nil
}
