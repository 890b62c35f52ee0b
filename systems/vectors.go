package systems

import (
	"github.com/hupe1980/spargo/space"
)

// Fill sets every element of a scalar field to v.
func Fill(r *space.Region, fid space.FieldID, v float64) {
	f, _ := r.Field(fid)
	if f.Kind == space.KindFloat32 {
		data := r.Float32s(fid)
		for i := range data {
			data[i] = float32(v)
		}
		return
	}
	data := r.Float64s(fid)
	for i := range data {
		data[i] = v
	}
}

// BoundaryRHS zeroes a one-dimensional field and sets its first and last
// elements, the right-hand side of a Dirichlet problem with boundary values
// left and right.
func BoundaryRHS(r *space.Region, fid space.FieldID, left, right float64) {
	Fill(r, fid, 0)
	b := r.Space().Bounds()
	r.SetScalar(fid, b.Lo, left)
	r.SetScalar(fid, b.Hi, right)
}

// Values returns a scalar field as float64 regardless of its entry type.
func Values(r *space.Region, fid space.FieldID) []float64 {
	f, _ := r.Field(fid)
	if f.Kind == space.KindFloat32 {
		src := r.Float32s(fid)
		out := make([]float64, len(src))
		for i, v := range src {
			out[i] = float64(v)
		}
		return out
	}
	return append([]float64(nil), r.Float64s(fid)...)
}

// Dense returns the operator stored in a COO kernel as a dense row-major
// matrix over linearized range and domain offsets.
func Dense(kernel *space.Region, rng, domain *space.IndexSpace) [][]float64 {
	out := make([][]float64, rng.Volume())
	for i := range out {
		out[i] = make([]float64, domain.Volume())
	}
	rows, cols := kernel.Points(FieldRow), kernel.Points(FieldCol)
	vals := Values(kernel, FieldEntry)
	for e := range rows {
		if !rng.Contains(rows[e]) || !domain.Contains(cols[e]) {
			continue
		}
		out[rng.Linear(rows[e])][domain.Linear(cols[e])] += vals[e]
	}
	return out
}
