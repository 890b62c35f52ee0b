package sparse

import (
	"context"
	"fmt"

	"github.com/hupe1980/spargo/sched"
	"github.com/hupe1980/spargo/space"
)

// Shape is the static configuration of an operator: entry type and the
// ranks of its kernel, domain and range spaces.
type Shape struct {
	Entry      space.EntryType
	KernelRank int
	DomainRank int
	RangeRank  int
}

// Square returns the shape of an operator mapping a rank-dimensional space
// onto itself with a one-dimensional kernel.
func Square(entry space.EntryType, rank int) Shape {
	return Shape{Entry: entry, KernelRank: 1, DomainRank: rank, RangeRank: rank}
}

func (s Shape) String() string {
	return fmt.Sprintf("%s<k%d,d%d,r%d>", s.Entry, s.KernelRank, s.DomainRank, s.RangeRank)
}

func (s Shape) validate() {
	for _, r := range []int{s.KernelRank, s.DomainRank, s.RangeRank} {
		if r < 1 || r > space.MaxRank {
			panic(fmt.Sprintf("sparse: invalid shape %s", s))
		}
	}
}

// Operator is a sparse linear map from a domain space to a range space whose
// nonzeros live in a kernel space.
type Operator interface {
	// Shape returns the static configuration.
	Shape() Shape

	// KernelRegion returns the region holding the nonzeros.
	KernelRegion() *space.Region

	// KernelPartitionFromDomainPartition colors each nonzero like the
	// domain point its column references.
	KernelPartitionFromDomainPartition(p *space.Partition) *space.Partition

	// KernelPartitionFromRangePartition colors each nonzero like the range
	// point its row references.
	KernelPartitionFromRangePartition(p *space.Partition) *space.Partition

	// DomainPartitionFromKernelPartition returns, per color, the domain
	// points touched by that color's nonzeros.
	DomainPartitionFromKernelPartition(domain *space.IndexSpace, kp *space.Partition) *space.Partition

	// RangePartitionFromKernelPartition returns, per color, the range points
	// touched by that color's nonzeros.
	RangePartitionFromKernelPartition(rng *space.IndexSpace, kp *space.Partition) *space.Partition

	// Matvec accumulates A·src into the fidDst field of dst. One task runs
	// per color of dst's partition; it reads the kernel shard of the same
	// color and the ghost shard of src, and folds every product whose row
	// and column fall inside those shards into dst with a sum reduction.
	Matvec(dst space.Vector, fidDst space.FieldID, src *space.Region, fidSrc space.FieldID,
		kernelPartition, ghostPartition *space.Partition) *sched.Event
}

// RowPartitions derives the kernel and ghost partitions of a matvec whose
// destination is partitioned by rangePart: each nonzero follows its row,
// and the ghost shard of a color is every domain point its nonzeros read.
func RowPartitions(op Operator, rangePart *space.Partition, domain *space.IndexSpace) (kernel, ghost *space.Partition) {
	kernel = op.KernelPartitionFromRangePartition(rangePart)
	ghost = op.DomainPartitionFromKernelPartition(domain, kernel)
	return kernel, ghost
}

// acquire waits until pending launches writing the given fields finish so
// the host can read them. On failure the field data is not trusted: callers
// derive an empty partition instead, and the failure resurfaces from the
// launches consuming it.
func acquire(rt *sched.Runtime, r *space.Region, fids ...space.FieldID) error {
	if err := rt.WaitFor(context.Background(), r, fids...); err != nil {
		rt.Logger().Warn("sparse: partition derived without settled data",
			"bounds", r.Space().Bounds().String(), "fields", fids, "error", err)
		return err
	}
	return nil
}

func checkField(r *space.Region, fid space.FieldID, kind space.FieldKind, rank int, what string) {
	f, ok := r.Field(fid)
	if !ok {
		panic(fmt.Sprintf("sparse: %s field %d missing", what, fid))
	}
	if f.Kind != kind || (rank > 0 && f.Rank != rank) {
		panic(fmt.Sprintf("sparse: %s field %d is %s/%d, want %s/%d", what, fid, f.Kind, f.Rank, kind, rank))
	}
}

func checkMatvec(s Shape, dst space.Vector, fidDst space.FieldID, src *space.Region, fidSrc space.FieldID,
	kernelPartition, ghostPartition *space.Partition) {
	if dst.Region.Space().Rank() != s.RangeRank {
		panic(fmt.Sprintf("sparse: destination rank %d, operator %s", dst.Region.Space().Rank(), s))
	}
	if src.Space().Rank() != s.DomainRank {
		panic(fmt.Sprintf("sparse: source rank %d, operator %s", src.Space().Rank(), s))
	}
	checkField(dst.Region, fidDst, s.Entry.Kind(), 0, "destination")
	checkField(src, fidSrc, s.Entry.Kind(), 0, "source")
	n := dst.Partition.Colors()
	if kernelPartition.Colors() < n || ghostPartition.Colors() < n {
		panic(fmt.Sprintf("sparse: kernel/ghost partitions have %d/%d colors, destination %d",
			kernelPartition.Colors(), ghostPartition.Colors(), n))
	}
}
