package space

import (
	"fmt"
	"math"
	"sync/atomic"
)

// Handle identifies an index space or region for the lifetime of the process.
type Handle uint64

var nextHandle atomic.Uint64

func newHandle() Handle { return Handle(nextHandle.Add(1)) }

// CoordWidth is the integer width used to store coordinates of a space.
// It only constrains which bounds are legal; coordinates are always
// handled as int64 in memory.
type CoordWidth uint8

const (
	// Int64 coordinates (default).
	Int64 CoordWidth = iota
	// Int32 coordinates.
	Int32
	// Uint32 coordinates.
	Uint32
)

func (w CoordWidth) String() string {
	switch w {
	case Int32:
		return "int32"
	case Uint32:
		return "uint32"
	case Int64:
		return "int64"
	default:
		return fmt.Sprintf("CoordWidth(%d)", uint8(w))
	}
}

func (w CoordWidth) admits(v int64) bool {
	switch w {
	case Int32:
		return v >= math.MinInt32 && v <= math.MaxInt32
	case Uint32:
		return v >= 0 && v <= math.MaxUint32
	default:
		return true
	}
}

// IndexSpace is an immutable dense box of points.
type IndexSpace struct {
	handle Handle
	bounds Rect
	width  CoordWidth
	// strides[d] is the linear distance between neighbours in dimension d.
	strides [MaxRank]uint64
	volume  uint64
}

// IndexSpaceOption configures NewIndexSpace.
type IndexSpaceOption func(*IndexSpace)

// WithCoordWidth sets the coordinate width of the space.
func WithCoordWidth(w CoordWidth) IndexSpaceOption {
	return func(s *IndexSpace) { s.width = w }
}

// NewIndexSpace creates a space over bounds.
// It panics if the bounds do not fit the coordinate width or the volume
// exceeds math.MaxUint32.
func NewIndexSpace(bounds Rect, opts ...IndexSpaceOption) *IndexSpace {
	checkRank(bounds.Rank())
	s := &IndexSpace{handle: newHandle(), bounds: bounds}
	for _, opt := range opts {
		opt(s)
	}
	if !bounds.Empty() {
		for d := 0; d < bounds.Rank(); d++ {
			if !s.width.admits(bounds.Lo.c[d]) || !s.width.admits(bounds.Hi.c[d]) {
				panic(fmt.Sprintf("space: bounds %s exceed %s coordinates", bounds, s.width))
			}
		}
	}
	s.volume = bounds.Volume()
	if s.volume > math.MaxUint32 {
		panic(fmt.Sprintf("space: volume %d of %s exceeds uint32", s.volume, bounds))
	}
	stride := uint64(1)
	for d := bounds.Rank() - 1; d >= 0; d-- {
		s.strides[d] = stride
		if !bounds.Empty() {
			stride *= uint64(bounds.Hi.c[d]-bounds.Lo.c[d]) + 1
		}
	}
	return s
}

// Line returns the one-dimensional space [0, n-1].
func Line(n int64) *IndexSpace {
	return NewIndexSpace(Rect1(0, n-1))
}

// Handle returns the identity of the space.
func (s *IndexSpace) Handle() Handle { return s.handle }

// Bounds returns the box covered by the space.
func (s *IndexSpace) Bounds() Rect { return s.bounds }

// Rank returns the dimensionality of the space.
func (s *IndexSpace) Rank() int { return s.bounds.Rank() }

// Width returns the coordinate width.
func (s *IndexSpace) Width() CoordWidth { return s.width }

// Volume returns the number of points.
func (s *IndexSpace) Volume() uint64 { return s.volume }

// Contains reports whether p is a point of the space.
func (s *IndexSpace) Contains(p Point) bool { return s.bounds.Contains(p) }

// Linear returns the row-major offset of p. The point must be contained.
func (s *IndexSpace) Linear(p Point) uint32 {
	var off uint64
	for d := 0; d < int(p.rank); d++ {
		off += uint64(p.c[d]-s.bounds.Lo.c[d]) * s.strides[d]
	}
	return uint32(off)
}

// Delinear is the inverse of Linear.
func (s *IndexSpace) Delinear(off uint32) Point {
	p := s.bounds.Lo
	rem := uint64(off)
	for d := 0; d < s.Rank(); d++ {
		p.c[d] += int64(rem / s.strides[d])
		rem %= s.strides[d]
	}
	return p
}

// LinearRange returns the linear offsets covered by the intersection of r
// with the space as a list of [lo, hi) runs.
func (s *IndexSpace) LinearRange(r Rect) []Run {
	r = r.Intersect(s.bounds)
	if r.Empty() {
		return nil
	}
	rank := s.Rank()
	last := rank - 1
	var runs []Run
	cur := r.Lo
	for {
		lo := s.Linear(cur)
		n := uint32(r.Hi.c[last]-r.Lo.c[last]) + 1
		if k := len(runs); k > 0 && runs[k-1].Hi == lo {
			runs[k-1].Hi = lo + n
		} else {
			runs = append(runs, Run{Lo: lo, Hi: lo + n})
		}
		// Odometer over the outer dimensions.
		d := last - 1
		for ; d >= 0; d-- {
			if cur.c[d] < r.Hi.c[d] {
				cur.c[d]++
				break
			}
			cur.c[d] = r.Lo.c[d]
		}
		if d < 0 {
			return runs
		}
	}
}

// Run is a half-open range [Lo, Hi) of linear offsets.
type Run struct {
	Lo, Hi uint32
}

// Len returns the number of offsets in the run.
func (r Run) Len() int { return int(r.Hi - r.Lo) }

func (s *IndexSpace) String() string {
	return fmt.Sprintf("IndexSpace#%d%s", s.handle, s.bounds)
}
