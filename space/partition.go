package space

import (
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"
)

// Subspace is the subset of a parent space assigned to one color.
type Subspace struct {
	parent *IndexSpace
	color  Point
	bm     *roaring.Bitmap
	bounds Rect

	runsOnce sync.Once
	runs     []Run
}

func newSubspace(parent *IndexSpace, color Point, bm *roaring.Bitmap) *Subspace {
	bm.RunOptimize()
	s := &Subspace{parent: parent, color: color, bm: bm, bounds: EmptyRect(parent.Rank())}
	if bm.IsEmpty() {
		return s
	}
	if parent.Rank() == 1 {
		s.bounds = NewRect(parent.Delinear(bm.Minimum()), parent.Delinear(bm.Maximum()))
		return s
	}
	for _, r := range s.Runs() {
		s.bounds = s.bounds.Union(runBox(parent, r))
	}
	return s
}

// runBox returns a box covering the linear run r. Dimensions inner to the
// first one that varies across the run are widened to the parent bounds.
func runBox(parent *IndexSpace, r Run) Rect {
	lo, hi := parent.Delinear(r.Lo), parent.Delinear(r.Hi-1)
	b := parent.Bounds()
	k := 0
	for k < parent.Rank() && lo.c[k] == hi.c[k] {
		k++
	}
	for d := k + 1; d < parent.Rank(); d++ {
		lo.c[d], hi.c[d] = b.Lo.c[d], b.Hi.c[d]
	}
	return Rect{Lo: lo, Hi: hi}
}

// Parent returns the partitioned space.
func (s *Subspace) Parent() *IndexSpace { return s.parent }

// Color returns the color of the subset.
func (s *Subspace) Color() Point { return s.color }

// Bounds returns a box covering every member.
func (s *Subspace) Bounds() Rect { return s.bounds }

// Cardinality returns the number of members.
func (s *Subspace) Cardinality() uint64 { return s.bm.GetCardinality() }

// Empty reports whether the subset has no members.
func (s *Subspace) Empty() bool { return s.bm.IsEmpty() }

// Contains reports whether p is a member.
func (s *Subspace) Contains(p Point) bool {
	if !s.parent.Contains(p) {
		return false
	}
	return s.bm.Contains(s.parent.Linear(p))
}

// ContainsLinear reports whether the linear offset off is a member.
func (s *Subspace) ContainsLinear(off uint32) bool { return s.bm.Contains(off) }

// Each calls fn for every member offset in increasing order.
func (s *Subspace) Each(fn func(off uint32)) {
	s.bm.Iterate(func(x uint32) bool {
		fn(x)
		return true
	})
}

// Offsets returns the member offsets in increasing order.
func (s *Subspace) Offsets() []uint32 { return s.bm.ToArray() }

// Runs returns the members as maximal contiguous runs.
func (s *Subspace) Runs() []Run {
	s.runsOnce.Do(func() {
		s.bm.Iterate(func(x uint32) bool {
			if k := len(s.runs); k > 0 && s.runs[k-1].Hi == x {
				s.runs[k-1].Hi++
			} else {
				s.runs = append(s.runs, Run{Lo: x, Hi: x + 1})
			}
			return true
		})
	})
	return s.runs
}

// IntersectsRun reports whether any member falls in r.
func (s *Subspace) IntersectsRun(r Run) bool {
	if r.Hi <= r.Lo {
		return false
	}
	n := s.bm.Rank(r.Hi - 1)
	if r.Lo > 0 {
		n -= s.bm.Rank(r.Lo - 1)
	}
	return n > 0
}

// Bitmap returns the underlying membership set. Callers must not modify it.
func (s *Subspace) Bitmap() *roaring.Bitmap { return s.bm }

// Partition splits a parent space into colored subsets.
// Subsets may overlap and need not cover the parent.
type Partition struct {
	handle   Handle
	parent   *IndexSpace
	colors   *IndexSpace
	subs     []*Subspace
	disjoint bool
	complete bool
}

// NewPartition assembles a partition from one bitmap per color, indexed by
// the linear offset of the color in colors.
func NewPartition(parent, colors *IndexSpace, members []*roaring.Bitmap) *Partition {
	if uint64(len(members)) != colors.Volume() {
		panic(fmt.Sprintf("space: %d subsets for %d colors", len(members), colors.Volume()))
	}
	p := &Partition{
		handle: newHandle(),
		parent: parent,
		colors: colors,
		subs:   make([]*Subspace, len(members)),
	}
	for i, bm := range members {
		if bm == nil {
			bm = roaring.New()
		}
		p.subs[i] = newSubspace(parent, colors.Delinear(uint32(i)), bm)
	}
	p.analyze()
	return p
}

func (p *Partition) analyze() {
	seen := bitset.New(uint(p.parent.Volume()))
	disjoint := true
	for _, s := range p.subs {
		s.bm.Iterate(func(x uint32) bool {
			if seen.Test(uint(x)) {
				disjoint = false
			}
			seen.Set(uint(x))
			return true
		})
	}
	p.disjoint = disjoint
	p.complete = uint64(seen.Count()) == p.parent.Volume()
}

// Handle returns the identity of the partition.
func (p *Partition) Handle() Handle { return p.handle }

// Parent returns the partitioned space.
func (p *Partition) Parent() *IndexSpace { return p.parent }

// ColorSpace returns the space of colors.
func (p *Partition) ColorSpace() *IndexSpace { return p.colors }

// Colors returns the number of colors.
func (p *Partition) Colors() int { return len(p.subs) }

// Rank returns the rank of the parent space.
func (p *Partition) Rank() int { return p.parent.Rank() }

// Disjoint reports whether no point belongs to two colors.
func (p *Partition) Disjoint() bool { return p.disjoint }

// Complete reports whether every parent point belongs to some color.
func (p *Partition) Complete() bool { return p.complete }

// Sub returns the subset of color c.
func (p *Partition) Sub(c Point) *Subspace {
	if !p.colors.Contains(c) {
		panic(fmt.Sprintf("space: color %s outside %s", c, p.colors.Bounds()))
	}
	return p.subs[p.colors.Linear(c)]
}

// SubAt returns the subset at linear color index i.
func (p *Partition) SubAt(i int) *Subspace { return p.subs[i] }

// Refines reports whether every subset of p lies inside the same-colored
// subset of q. Both partitions must share a color space shape.
func (p *Partition) Refines(q *Partition) bool {
	if len(p.subs) != len(q.subs) {
		return false
	}
	for i, s := range p.subs {
		if !roaring.AndNot(s.bm, q.subs[i].bm).IsEmpty() {
			return false
		}
	}
	return true
}

func (p *Partition) String() string {
	return fmt.Sprintf("Partition#%d(%s by %s)", p.handle, p.parent.Bounds(), p.colors.Bounds())
}

// Colors returns a one-dimensional color space of n colors.
func Colors(n int) *IndexSpace {
	if n < 1 {
		panic(fmt.Sprintf("space: invalid color count %d", n))
	}
	return Line(int64(n))
}

// EqualPartition splits parent into contiguous linear blocks, one per color.
// Block sizes differ by at most one.
func EqualPartition(parent, colors *IndexSpace) *Partition {
	n := parent.Volume()
	c := colors.Volume()
	base, rem := n/c, n%c
	members := make([]*roaring.Bitmap, c)
	var lo uint64
	for i := uint64(0); i < c; i++ {
		size := base
		if i < rem {
			size++
		}
		bm := roaring.New()
		if size > 0 {
			bm.AddRange(lo, lo+size)
		}
		members[i] = bm
		lo += size
	}
	return NewPartition(parent, colors, members)
}

// EmptyPartition returns a partition of parent in which every color of
// colors is empty.
func EmptyPartition(parent, colors *IndexSpace) *Partition {
	return NewPartition(parent, colors, make([]*roaring.Bitmap, colors.Volume()))
}

// PartitionByFunc assigns every parent point to the color returned by
// colorOf. Points mapped outside the color space are left unassigned.
func PartitionByFunc(parent, colors *IndexSpace, colorOf func(Point) Point) *Partition {
	members := make([]*roaring.Bitmap, colors.Volume())
	for i := range members {
		members[i] = roaring.New()
	}
	for off := uint32(0); uint64(off) < parent.Volume(); off++ {
		c := colorOf(parent.Delinear(off))
		if colors.Contains(c) {
			members[colors.Linear(c)].Add(off)
		}
	}
	return NewPartition(parent, colors, members)
}

// Vector is a distributed vector: a region with scalar fields and the
// partition that splits it into pieces.
type Vector struct {
	Region    *Region
	Partition *Partition
}

// NewVector pairs a region with a partition of its space.
func NewVector(r *Region, p *Partition) Vector {
	if p.Parent().Handle() != r.Space().Handle() {
		panic("space: partition does not partition the region's space")
	}
	return Vector{Region: r, Partition: p}
}
