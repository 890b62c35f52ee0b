package sched

import (
	"fmt"

	"github.com/hupe1980/spargo/space"
)

// Privilege declares how a task accesses the fields of a requirement.
type Privilege uint8

const (
	// ReadOnly access.
	ReadOnly Privilege = iota
	// ReadWrite access.
	ReadWrite
	// WriteDiscard overwrites every accessed element without reading it.
	WriteDiscard
	// Reduce folds contributions with a reduction operator.
	Reduce
)

func (p Privilege) String() string {
	switch p {
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	case WriteDiscard:
		return "write-discard"
	case Reduce:
		return "reduce"
	default:
		return fmt.Sprintf("Privilege(%d)", uint8(p))
	}
}

// Requirement names the fields of a region a task touches.
//
// With a partition, point task c sees only the subset of color c. Without
// one, every point task sees the whole region.
type Requirement struct {
	Region    *space.Region
	Partition *space.Partition
	Fields    []space.FieldID
	Privilege Privilege
	// Redop identifies the reduction operator for Reduce privileges.
	Redop RedopID
}

// PhysicalRegion is the view of one requirement inside a point task.
type PhysicalRegion struct {
	Region    *space.Region
	Sub       *space.Subspace
	Fields    []space.FieldID
	Privilege Privilege
}

// Bounds returns a box covering the accessible points.
func (pr PhysicalRegion) Bounds() space.Rect {
	if pr.Sub == nil {
		return pr.Region.Space().Bounds()
	}
	return pr.Sub.Bounds()
}

// Contains reports whether p is accessible.
func (pr PhysicalRegion) Contains(p space.Point) bool {
	if pr.Sub == nil {
		return pr.Region.Space().Contains(p)
	}
	return pr.Sub.Contains(p)
}

// ContainsLinear reports whether the linear offset off is accessible.
func (pr PhysicalRegion) ContainsLinear(off uint32) bool {
	if pr.Sub == nil {
		return uint64(off) < pr.Region.Space().Volume()
	}
	return pr.Sub.ContainsLinear(off)
}

// Runs returns the accessible linear offsets as contiguous runs.
func (pr PhysicalRegion) Runs() []space.Run {
	if pr.Sub == nil {
		n := uint32(pr.Region.Space().Volume())
		if n == 0 {
			return nil
		}
		return []space.Run{{Lo: 0, Hi: n}}
	}
	return pr.Sub.Runs()
}

// Field returns the i-th field ID of the requirement.
func (pr PhysicalRegion) Field(i int) space.FieldID { return pr.Fields[i] }

// TaskContext is passed to every point task.
type TaskContext struct {
	// Color is the launch point of this task.
	Color space.Point
	// Index is the linear offset of Color in the launch domain.
	Index   int
	Regions []PhysicalRegion
	// Futures holds the resolved values of the launcher's future arguments.
	Futures []float64
	Arg     any
}

// TaskFunc is the body of a task variant. The returned scalar is only used
// by reducing launches.
type TaskFunc func(tc *TaskContext) (float64, error)

// IndexLauncher describes one task per point of Domain.
type IndexLauncher struct {
	Task         TaskID
	Domain       *space.IndexSpace
	Requirements []Requirement
	Futures      []*Future[float64]
	Arg          any
}
