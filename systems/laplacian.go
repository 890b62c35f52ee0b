package systems

import (
	"fmt"

	"github.com/hupe1980/spargo/space"
)

// Field IDs of the kernel and rowptr regions built by this package.
const (
	FieldRow    space.FieldID = 0
	FieldCol    space.FieldID = 1
	FieldEntry  space.FieldID = 2
	FieldRowPtr space.FieldID = 0
)

// Laplacian1DNonzeros returns the number of nonzeros of the n-point
// negative Laplacian.
func Laplacian1DNonzeros(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return 3*n - 2
}

// Laplacian1DCOO builds the kernel of the tridiagonal n-point negative
// Laplacian (2 on the diagonal, -1 beside it) in coordinate format.
// Nonzeros are stored row by row: the diagonal of row i, then (i+1, i) and
// (i, i+1).
func Laplacian1DCOO(n int64, entry space.EntryType) *space.Region {
	if n < 1 {
		panic(fmt.Sprintf("systems: invalid size %d", n))
	}
	ks := space.Line(Laplacian1DNonzeros(n))
	k := space.NewRegion(ks,
		space.PointField(FieldRow, 1),
		space.PointField(FieldCol, 1),
		space.Scalar(FieldEntry, entry),
	)
	rows, cols := k.Points(FieldRow), k.Points(FieldCol)
	e := int64(0)
	put := func(i, j int64, v float64) {
		rows[e], cols[e] = space.Pt(i), space.Pt(j)
		k.SetScalar(FieldEntry, space.Pt(e), v)
		e++
	}
	for i := int64(0); i < n; i++ {
		put(i, i, 2)
		if i+1 < n {
			put(i+1, i, -1)
			put(i, i+1, -1)
		}
	}
	return k
}

// Laplacian1DCSR builds the same operator in row-compressed format. The
// rowptr region is created over rows, which must be one-dimensional.
func Laplacian1DCSR(rows *space.IndexSpace, entry space.EntryType) (kernel, rowptr *space.Region) {
	if rows.Rank() != 1 {
		panic(fmt.Sprintf("systems: rows must be one-dimensional, got rank %d", rows.Rank()))
	}
	n := int64(rows.Volume())
	lo := rows.Bounds().Lo.At(0)
	kernel = space.NewRegion(space.Line(Laplacian1DNonzeros(n)),
		space.PointField(FieldCol, 1),
		space.Scalar(FieldEntry, entry),
	)
	rowptr = space.NewRegion(rows, space.RectField(FieldRowPtr, 1))
	cols := kernel.Points(FieldCol)
	ranges := rowptr.Rects(FieldRowPtr)
	e := int64(0)
	for i := int64(0); i < n; i++ {
		start := e
		for j := i - 1; j <= i+1; j++ {
			if j < 0 || j >= n {
				continue
			}
			cols[e] = space.Pt(lo + j)
			v := -1.0
			if j == i {
				v = 2
			}
			kernel.SetScalar(FieldEntry, space.Pt(e), v)
			e++
		}
		ranges[i] = space.Rect1(start, e-1)
	}
	return kernel, rowptr
}

// Laplacian2DCOO builds the five-point negative Laplacian on an nx by ny
// grid: 4 on the diagonal and -1 for each grid neighbour.
func Laplacian2DCOO(nx, ny int64, entry space.EntryType) *space.Region {
	if nx < 1 || ny < 1 {
		panic(fmt.Sprintf("systems: invalid grid %dx%d", nx, ny))
	}
	nnz := nx*ny + 2*(nx-1)*ny + 2*nx*(ny-1)
	k := space.NewRegion(space.Line(nnz),
		space.PointField(FieldRow, 2),
		space.PointField(FieldCol, 2),
		space.Scalar(FieldEntry, entry),
	)
	rows, cols := k.Points(FieldRow), k.Points(FieldCol)
	e := int64(0)
	put := func(r, c space.Point, v float64) {
		rows[e], cols[e] = r, c
		k.SetScalar(FieldEntry, space.Pt(e), v)
		e++
	}
	for x := int64(0); x < nx; x++ {
		for y := int64(0); y < ny; y++ {
			p := space.Pt(x, y)
			put(p, p, 4)
			for _, d := range [][2]int64{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
				qx, qy := x+d[0], y+d[1]
				if qx < 0 || qx >= nx || qy < 0 || qy >= ny {
					continue
				}
				put(p, space.Pt(qx, qy), -1)
			}
		}
	}
	return k
}
