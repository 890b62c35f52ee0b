package space

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// FieldID names a field of a region.
type FieldID uint32

// FieldKind is the element type of a field.
type FieldKind uint8

const (
	// KindFloat32 fields hold float32 scalars.
	KindFloat32 FieldKind = iota + 1
	// KindFloat64 fields hold float64 scalars.
	KindFloat64
	// KindPoint fields hold points of FieldSpec.Rank dimensions.
	KindPoint
	// KindRect fields hold boxes of FieldSpec.Rank dimensions.
	KindRect
)

func (k FieldKind) String() string {
	switch k {
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindPoint:
		return "point"
	case KindRect:
		return "rect"
	default:
		return fmt.Sprintf("FieldKind(%d)", uint8(k))
	}
}

// EntryType is the scalar type of vector and matrix entries.
type EntryType uint8

const (
	// Float64 entries (default).
	Float64 EntryType = iota
	// Float32 entries.
	Float32
)

// Kind returns the field kind that stores entries of this type.
func (e EntryType) Kind() FieldKind {
	if e == Float32 {
		return KindFloat32
	}
	return KindFloat64
}

// Size returns the byte size of one entry.
func (e EntryType) Size() int {
	if e == Float32 {
		return 4
	}
	return 8
}

func (e EntryType) String() string {
	switch e {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("EntryType(%d)", uint8(e))
	}
}

// FieldSpec declares one field of a region.
type FieldSpec struct {
	ID   FieldID
	Kind FieldKind
	// Rank is the dimensionality of point and rect fields.
	Rank int
}

// Scalar declares a scalar field of the given entry type.
func Scalar(id FieldID, e EntryType) FieldSpec {
	return FieldSpec{ID: id, Kind: e.Kind()}
}

// PointField declares a field of rank-dimensional points.
func PointField(id FieldID, rank int) FieldSpec {
	return FieldSpec{ID: id, Kind: KindPoint, Rank: rank}
}

// RectField declares a field of rank-dimensional boxes.
func RectField(id FieldID, rank int) FieldSpec {
	return FieldSpec{ID: id, Kind: KindRect, Rank: rank}
}

// ByteSize returns the serialized size of one element.
func (f FieldSpec) ByteSize() int {
	switch f.Kind {
	case KindFloat32:
		return 4
	case KindFloat64:
		return 8
	case KindPoint:
		return 8 * f.Rank
	case KindRect:
		return 16 * f.Rank
	default:
		return 0
	}
}

func (f FieldSpec) validate() {
	switch f.Kind {
	case KindFloat32, KindFloat64:
	case KindPoint, KindRect:
		checkRank(f.Rank)
	default:
		panic(fmt.Sprintf("space: field %d has invalid kind %s", f.ID, f.Kind))
	}
}

// Accountant charges region memory against a budget.
type Accountant interface {
	Acquire(bytes int64) error
	Release(bytes int64)
}

// Region is an index space together with a set of typed fields.
// Field storage is indexed by the linear offset of a point in the space.
type Region struct {
	handle    Handle
	space     *IndexSpace
	specs     map[FieldID]FieldSpec
	data      map[FieldID]any
	bytes     int64
	acct      Accountant
	destroyed atomic.Bool
}

// NewRegion allocates a region with the given fields, zero-initialized.
// It panics on duplicate field IDs or invalid specs.
func NewRegion(s *IndexSpace, specs ...FieldSpec) *Region {
	r, err := NewAccountedRegion(nil, s, specs...)
	if err != nil {
		panic(err)
	}
	return r
}

// NewAccountedRegion is NewRegion with the field memory charged to acct.
// The charge is returned on Destroy.
func NewAccountedRegion(acct Accountant, s *IndexSpace, specs ...FieldSpec) (*Region, error) {
	r := &Region{
		handle: newHandle(),
		space:  s,
		specs:  make(map[FieldID]FieldSpec, len(specs)),
		data:   make(map[FieldID]any, len(specs)),
		acct:   acct,
	}
	n := int(s.Volume())
	for _, f := range specs {
		f.validate()
		if _, dup := r.specs[f.ID]; dup {
			panic(fmt.Sprintf("space: duplicate field %d", f.ID))
		}
		r.specs[f.ID] = f
		r.bytes += int64(n) * int64(f.ByteSize())
	}
	if acct != nil && r.bytes > 0 {
		if err := acct.Acquire(r.bytes); err != nil {
			return nil, fmt.Errorf("space: allocate region over %s: %w", s.Bounds(), err)
		}
	}
	for _, f := range specs {
		switch f.Kind {
		case KindFloat32:
			r.data[f.ID] = make([]float32, n)
		case KindFloat64:
			r.data[f.ID] = make([]float64, n)
		case KindPoint:
			ps := make([]Point, n)
			o := Origin(f.Rank)
			for i := range ps {
				ps[i] = o
			}
			r.data[f.ID] = ps
		case KindRect:
			rs := make([]Rect, n)
			e := EmptyRect(f.Rank)
			for i := range rs {
				rs[i] = e
			}
			r.data[f.ID] = rs
		}
	}
	return r, nil
}

// Handle returns the identity of the region.
func (r *Region) Handle() Handle { return r.handle }

// Space returns the index space of the region.
func (r *Region) Space() *IndexSpace { return r.space }

// Bytes returns the memory held by the region's fields.
func (r *Region) Bytes() int64 { return r.bytes }

// Field returns the spec of fid and whether it exists.
func (r *Region) Field(fid FieldID) (FieldSpec, bool) {
	f, ok := r.specs[fid]
	return f, ok
}

// Fields returns all field specs ordered by ID.
func (r *Region) Fields() []FieldSpec {
	out := make([]FieldSpec, 0, len(r.specs))
	for _, f := range r.specs {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HasField reports whether fid exists.
func (r *Region) HasField(fid FieldID) bool {
	_, ok := r.specs[fid]
	return ok
}

// Destroy releases the region's storage. Later accesses panic.
func (r *Region) Destroy() {
	if !r.destroyed.CompareAndSwap(false, true) {
		return
	}
	r.data = nil
	if r.acct != nil && r.bytes > 0 {
		r.acct.Release(r.bytes)
	}
}

// Destroyed reports whether Destroy has been called.
func (r *Region) Destroyed() bool { return r.destroyed.Load() }

func (r *Region) raw(fid FieldID, kind FieldKind) any {
	if r.destroyed.Load() {
		panic(fmt.Sprintf("space: region #%d used after destroy", r.handle))
	}
	f, ok := r.specs[fid]
	if !ok {
		panic(fmt.Sprintf("space: region #%d has no field %d", r.handle, fid))
	}
	if f.Kind != kind {
		panic(fmt.Sprintf("space: field %d is %s, not %s", fid, f.Kind, kind))
	}
	return r.data[fid]
}

// Float64s returns the storage of a float64 field.
func (r *Region) Float64s(fid FieldID) []float64 {
	return r.raw(fid, KindFloat64).([]float64)
}

// Float32s returns the storage of a float32 field.
func (r *Region) Float32s(fid FieldID) []float32 {
	return r.raw(fid, KindFloat32).([]float32)
}

// Points returns the storage of a point field.
func (r *Region) Points(fid FieldID) []Point {
	return r.raw(fid, KindPoint).([]Point)
}

// Rects returns the storage of a rect field.
func (r *Region) Rects(fid FieldID) []Rect {
	return r.raw(fid, KindRect).([]Rect)
}

// Float is the set of supported scalar entry types.
type Float interface {
	float32 | float64
}

// Scalars returns the storage of a scalar field as []T.
// It panics if T does not match the field kind.
func Scalars[T Float](r *Region, fid FieldID) []T {
	var zero T
	switch any(zero).(type) {
	case float32:
		return any(r.Float32s(fid)).([]T)
	default:
		return any(r.Float64s(fid)).([]T)
	}
}

// EntryOf returns the EntryType corresponding to T.
func EntryOf[T Float]() EntryType {
	var zero T
	if _, ok := any(zero).(float32); ok {
		return Float32
	}
	return Float64
}

// ScalarAt reads a scalar field element as float64 regardless of kind.
func (r *Region) ScalarAt(fid FieldID, p Point) float64 {
	i := r.space.Linear(p)
	f, ok := r.specs[fid]
	if ok && f.Kind == KindFloat32 {
		return float64(r.Float32s(fid)[i])
	}
	return r.Float64s(fid)[i]
}

// SetScalar writes a scalar field element regardless of kind.
func (r *Region) SetScalar(fid FieldID, p Point, v float64) {
	i := r.space.Linear(p)
	f, ok := r.specs[fid]
	if ok && f.Kind == KindFloat32 {
		r.Float32s(fid)[i] = float32(v)
		return
	}
	r.Float64s(fid)[i] = v
}
