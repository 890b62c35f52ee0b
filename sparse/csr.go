package sparse

import (
	"fmt"

	"github.com/hupe1980/spargo/sched"
	"github.com/hupe1980/spargo/space"
)

// CSR is a row-compressed operator. The kernel space is one-dimensional and
// holds (col, entry) pairs; the rowptr region lives on the range space and
// gives each row its contiguous run [lo, hi] of kernel indices. Rows without
// nonzeros have hi < lo.
type CSR struct {
	rt       *sched.Runtime
	shape    Shape
	kernel   *space.Region
	col      space.FieldID
	entry    space.FieldID
	rowptr   *space.Region
	rowRange space.FieldID
	task     sched.TaskID
}

var _ Operator = (*CSR)(nil)

// NewCSR wraps a CSR kernel and its rowptr region. Row-based partitions of
// the range space must partition rowptr's index space.
// It panics if the regions do not match shape.
func NewCSR(rt *sched.Runtime, shape Shape, kernel *space.Region, col, entry space.FieldID,
	rowptr *space.Region, rowRange space.FieldID) *CSR {
	shape.validate()
	if shape.KernelRank != 1 || kernel.Space().Rank() != 1 {
		panic(fmt.Sprintf("sparse: CSR kernel must be one-dimensional, shape %s", shape))
	}
	if rowptr.Space().Rank() != shape.RangeRank {
		panic(fmt.Sprintf("sparse: rowptr rank %d, shape %s", rowptr.Space().Rank(), shape))
	}
	checkField(kernel, col, space.KindPoint, shape.DomainRank, "col")
	checkField(kernel, entry, shape.Entry.Kind(), 0, "entry")
	checkField(rowptr, rowRange, space.KindRect, 1, "rowptr")
	return &CSR{
		rt:       rt,
		shape:    shape,
		kernel:   kernel,
		col:      col,
		entry:    entry,
		rowptr:   rowptr,
		rowRange: rowRange,
		task:     rt.Lookup(sched.Variant{Op: opCSRMatvec, Entry: shape.Entry, Dim: shape.RangeRank}),
	}
}

// Shape implements Operator.
func (a *CSR) Shape() Shape { return a.shape }

// KernelRegion implements Operator.
func (a *CSR) KernelRegion() *space.Region { return a.kernel }

// RowPtr returns the rowptr region.
func (a *CSR) RowPtr() *space.Region { return a.rowptr }

// KernelPartitionFromDomainPartition implements Operator.
func (a *CSR) KernelPartitionFromDomainPartition(p *space.Partition) *space.Partition {
	if err := acquire(a.rt, a.kernel, a.col); err != nil {
		return space.EmptyPartition(a.kernel.Space(), p.ColorSpace())
	}
	return space.ByPreimage(a.kernel.Space(), p, a.kernel, a.col)
}

// KernelPartitionFromRangePartition implements Operator. The kernel shard
// of a color is the union of its rows' ranges.
func (a *CSR) KernelPartitionFromRangePartition(p *space.Partition) *space.Partition {
	if err := acquire(a.rt, a.rowptr, a.rowRange); err != nil {
		return space.EmptyPartition(a.kernel.Space(), p.ColorSpace())
	}
	return space.ByImageRange(a.kernel.Space(), p, a.rowptr, a.rowRange)
}

// DomainPartitionFromKernelPartition implements Operator.
func (a *CSR) DomainPartitionFromKernelPartition(domain *space.IndexSpace, kp *space.Partition) *space.Partition {
	if err := acquire(a.rt, a.kernel, a.col); err != nil {
		return space.EmptyPartition(domain, kp.ColorSpace())
	}
	return space.ByImage(domain, kp, a.kernel, a.col)
}

// RangePartitionFromKernelPartition implements Operator. A row joins every
// color whose kernel shard intersects its range. rng must be the rowptr
// space.
func (a *CSR) RangePartitionFromKernelPartition(rng *space.IndexSpace, kp *space.Partition) *space.Partition {
	if err := acquire(a.rt, a.rowptr, a.rowRange); err != nil {
		return space.EmptyPartition(rng, kp.ColorSpace())
	}
	return space.ByPreimageRange(rng, kp, a.rowptr, a.rowRange)
}

// Matvec implements Operator.
func (a *CSR) Matvec(dst space.Vector, fidDst space.FieldID, src *space.Region, fidSrc space.FieldID,
	kernelPartition, ghostPartition *space.Partition) *sched.Event {
	checkMatvec(a.shape, dst, fidDst, src, fidSrc, kernelPartition, ghostPartition)
	if dst.Region.Space().Bounds() != a.rowptr.Space().Bounds() {
		panic(fmt.Sprintf("sparse: destination %s does not match rowptr %s",
			dst.Region.Space().Bounds(), a.rowptr.Space().Bounds()))
	}
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
				Fields:    []space.FieldID{a.col, a.entry},
				Privilege: sched.ReadOnly,
			},
			{
				Region:    src,
				Partition: ghostPartition,
				Fields:    []space.FieldID{fidSrc},
				Privilege: sched.ReadOnly,
			},
			{
				Region:    a.rowptr,
				Partition: dst.Partition,
				Fields:    []space.FieldID{a.rowRange},
				Privilege: sched.ReadOnly,
			},
		},
	})
}

// csrMatvec walks the rows of the destination shard, sums each row over the
// part of its kernel range inside the kernel shard, and folds the row sum.
func csrMatvec[T space.Float](tc *sched.TaskContext) (float64, error) {
	dst, k, src, rp := tc.Regions[0], tc.Regions[1], tc.Regions[2], tc.Regions[3]

	out := sched.NewSumAccessor(space.Scalars[T](dst.Region, dst.Field(0)))
	cols := k.Region.Points(k.Field(0))
	vals := space.Scalars[T](k.Region, k.Field(1))
	in := space.Scalars[T](src.Region, src.Field(0))
	ranges := rp.Region.Rects(rp.Field(0))

	kSpace, srcSpace := k.Region.Space(), src.Region.Space()
	kBounds, domainRect := k.Bounds(), src.Bounds()

	for _, run := range rp.Runs() {
		for row := run.Lo; row < run.Hi; row++ {
			if !dst.ContainsLinear(row) {
				continue
			}
			r := ranges[row].Intersect(kBounds)
			if r.Empty() {
				continue
			}
			var sum T
			var touched bool
			for e := r.Lo.At(0); e <= r.Hi.At(0); e++ {
				ke := kSpace.Linear(space.Pt(e))
				if !k.ContainsLinear(ke) {
					continue
				}
				j := cols[ke]
				if !domainRect.Contains(j) {
					continue
				}
				sj := srcSpace.Linear(j)
				if !src.ContainsLinear(sj) {
					continue
				}
				sum += vals[ke] * in[sj]
				touched = true
			}
			if touched {
				out.Fold(row, sum)
			}
		}
	}
	return 0, nil
}
