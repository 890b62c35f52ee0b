package space

import (
	"fmt"
	"strings"
)

// MaxRank is the largest supported number of dimensions of an index space.
const MaxRank = 9

// Point is a multi-dimensional integer coordinate.
// Points are values; the coordinates live in a fixed array so that
// point-valued fields do not allocate per element.
type Point struct {
	rank uint8
	c    [MaxRank]int64
}

// Pt returns the point with the given coordinates.
// It panics if the rank is outside [1, MaxRank].
func Pt(coords ...int64) Point {
	if len(coords) < 1 || len(coords) > MaxRank {
		panic(fmt.Sprintf("space: invalid point rank %d", len(coords)))
	}
	var p Point
	p.rank = uint8(len(coords))
	copy(p.c[:], coords)
	return p
}

// Origin returns the all-zero point of the given rank.
func Origin(rank int) Point {
	checkRank(rank)
	return Point{rank: uint8(rank)}
}

// Rank returns the number of dimensions.
func (p Point) Rank() int { return int(p.rank) }

// At returns the coordinate in dimension d.
func (p Point) At(d int) int64 { return p.c[d] }

// With returns a copy of p with dimension d set to v.
func (p Point) With(d int, v int64) Point {
	p.c[d] = v
	return p
}

// Coords returns a copy of the coordinates.
func (p Point) Coords() []int64 {
	out := make([]int64, p.rank)
	copy(out, p.c[:p.rank])
	return out
}

// Equal reports whether p and q have the same rank and coordinates.
func (p Point) Equal(q Point) bool {
	return p == q
}

func (p Point) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for d := 0; d < int(p.rank); d++ {
		if d > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", p.c[d])
	}
	sb.WriteByte(')')
	return sb.String()
}

func checkRank(rank int) {
	if rank < 1 || rank > MaxRank {
		panic(fmt.Sprintf("space: invalid rank %d", rank))
	}
}

// Rect is an inclusive box [Lo, Hi] of points.
// A Rect is empty when Hi < Lo in any dimension.
type Rect struct {
	Lo, Hi Point
}

// NewRect returns the box spanned by lo and hi.
// It panics if the ranks differ.
func NewRect(lo, hi Point) Rect {
	if lo.rank != hi.rank {
		panic(fmt.Sprintf("space: rect rank mismatch %d != %d", lo.rank, hi.rank))
	}
	checkRank(lo.Rank())
	return Rect{Lo: lo, Hi: hi}
}

// Rect1 is shorthand for the one-dimensional box [lo, hi].
func Rect1(lo, hi int64) Rect {
	return Rect{Lo: Pt(lo), Hi: Pt(hi)}
}

// EmptyRect returns an empty box of the given rank.
func EmptyRect(rank int) Rect {
	checkRank(rank)
	lo := Point{rank: uint8(rank)}
	hi := Point{rank: uint8(rank)}
	for d := 0; d < rank; d++ {
		lo.c[d] = 0
		hi.c[d] = -1
	}
	return Rect{Lo: lo, Hi: hi}
}

// Rank returns the number of dimensions.
func (r Rect) Rank() int { return r.Lo.Rank() }

// Empty reports whether the box contains no points.
func (r Rect) Empty() bool {
	for d := 0; d < r.Rank(); d++ {
		if r.Hi.c[d] < r.Lo.c[d] {
			return true
		}
	}
	return false
}

// Volume returns the number of points in the box.
func (r Rect) Volume() uint64 {
	if r.Empty() {
		return 0
	}
	v := uint64(1)
	for d := 0; d < r.Rank(); d++ {
		v *= uint64(r.Hi.c[d]-r.Lo.c[d]) + 1
	}
	return v
}

// Contains reports whether p lies inside the box.
// Points of a different rank are never contained.
func (r Rect) Contains(p Point) bool {
	if p.rank != r.Lo.rank {
		return false
	}
	for d := 0; d < int(p.rank); d++ {
		if p.c[d] < r.Lo.c[d] || p.c[d] > r.Hi.c[d] {
			return false
		}
	}
	return true
}

// Intersect returns the overlap of r and o.
func (r Rect) Intersect(o Rect) Rect {
	out := r
	for d := 0; d < r.Rank(); d++ {
		out.Lo.c[d] = max(r.Lo.c[d], o.Lo.c[d])
		out.Hi.c[d] = min(r.Hi.c[d], o.Hi.c[d])
	}
	return out
}

// Union returns the smallest box covering r and o.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	out := r
	for d := 0; d < r.Rank(); d++ {
		out.Lo.c[d] = min(r.Lo.c[d], o.Lo.c[d])
		out.Hi.c[d] = max(r.Hi.c[d], o.Hi.c[d])
	}
	return out
}

func (r Rect) String() string {
	return fmt.Sprintf("[%s..%s]", r.Lo, r.Hi)
}
