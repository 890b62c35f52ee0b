package space

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
)

func checkFieldSource(p *Partition, r *Region, fid FieldID, kind FieldKind) FieldSpec {
	if p.Parent().Handle() != r.Space().Handle() {
		panic(fmt.Sprintf("space: %s does not partition the space of region #%d", p, r.Handle()))
	}
	f, ok := r.Field(fid)
	if !ok {
		panic(fmt.Sprintf("space: region #%d has no field %d", r.Handle(), fid))
	}
	if f.Kind != kind {
		panic(fmt.Sprintf("space: field %d is %s, not %s", fid, f.Kind, kind))
	}
	return f
}

func checkTargetRank(target *IndexSpace, f FieldSpec) {
	if target.Rank() != f.Rank {
		panic(fmt.Sprintf("space: field %d has rank %d, target space has rank %d", f.ID, f.Rank, target.Rank()))
	}
}

// ByImage partitions target by following the point field fid of region.
// Color c receives every target point referenced from src's color c subset.
// References outside target are dropped.
func ByImage(target *IndexSpace, src *Partition, region *Region, fid FieldID) *Partition {
	f := checkFieldSource(src, region, fid, KindPoint)
	checkTargetRank(target, f)
	pts := region.Points(fid)
	members := make([]*roaring.Bitmap, src.Colors())
	for i, sub := range src.subs {
		bm := roaring.New()
		for _, r := range sub.Runs() {
			for off := r.Lo; off < r.Hi; off++ {
				if p := pts[off]; target.Contains(p) {
					bm.Add(target.Linear(p))
				}
			}
		}
		members[i] = bm
	}
	return NewPartition(target, src.ColorSpace(), members)
}

// ByImageRange is ByImage for a rect field: color c receives the union of
// all ranges referenced from src's color c subset.
func ByImageRange(target *IndexSpace, src *Partition, region *Region, fid FieldID) *Partition {
	f := checkFieldSource(src, region, fid, KindRect)
	checkTargetRank(target, f)
	rects := region.Rects(fid)
	members := make([]*roaring.Bitmap, src.Colors())
	for i, sub := range src.subs {
		bm := roaring.New()
		for _, r := range sub.Runs() {
			for off := r.Lo; off < r.Hi; off++ {
				for _, run := range target.LinearRange(rects[off]) {
					bm.AddRange(uint64(run.Lo), uint64(run.Hi))
				}
			}
		}
		members[i] = bm
	}
	return NewPartition(target, src.ColorSpace(), members)
}

// ByPreimage partitions source, the space of region, by the point field fid:
// a source point joins every color of target whose subset contains the
// point it references.
func ByPreimage(source *IndexSpace, target *Partition, region *Region, fid FieldID) *Partition {
	if region.Space().Handle() != source.Handle() {
		panic(fmt.Sprintf("space: region #%d is not over %s", region.Handle(), source))
	}
	f, ok := region.Field(fid)
	if !ok || f.Kind != KindPoint {
		panic(fmt.Sprintf("space: region #%d has no point field %d", region.Handle(), fid))
	}
	checkTargetRank(target.Parent(), f)
	pts := region.Points(fid)
	members := make([]*roaring.Bitmap, target.Colors())
	for i := range members {
		members[i] = roaring.New()
	}
	tp := target.Parent()
	if target.Disjoint() {
		owner := ownerTable(target)
		for off := range pts {
			if p := pts[off]; tp.Contains(p) {
				if c := owner[tp.Linear(p)]; c >= 0 {
					members[c].Add(uint32(off))
				}
			}
		}
	} else {
		for off := range pts {
			p := pts[off]
			if !tp.Contains(p) {
				continue
			}
			l := tp.Linear(p)
			for c, sub := range target.subs {
				if sub.bm.Contains(l) {
					members[c].Add(uint32(off))
				}
			}
		}
	}
	return NewPartition(source, target.ColorSpace(), members)
}

// ByPreimageRange partitions source by the rect field fid: a source point
// joins every color of target whose subset intersects its range.
func ByPreimageRange(source *IndexSpace, target *Partition, region *Region, fid FieldID) *Partition {
	if region.Space().Handle() != source.Handle() {
		panic(fmt.Sprintf("space: region #%d is not over %s", region.Handle(), source))
	}
	f, ok := region.Field(fid)
	if !ok || f.Kind != KindRect {
		panic(fmt.Sprintf("space: region #%d has no rect field %d", region.Handle(), fid))
	}
	checkTargetRank(target.Parent(), f)
	rects := region.Rects(fid)
	members := make([]*roaring.Bitmap, target.Colors())
	for i := range members {
		members[i] = roaring.New()
	}
	tp := target.Parent()
	for off := range rects {
		runs := tp.LinearRange(rects[off])
		for c, sub := range target.subs {
			for _, run := range runs {
				if sub.IntersectsRun(run) {
					members[c].Add(uint32(off))
					break
				}
			}
		}
	}
	return NewPartition(source, target.ColorSpace(), members)
}

// ownerTable maps each linear offset of a disjoint partition's parent to
// its color index, or -1 when unassigned.
func ownerTable(p *Partition) []int32 {
	owner := make([]int32, p.parent.Volume())
	for i := range owner {
		owner[i] = -1
	}
	for c, sub := range p.subs {
		sub.Each(func(off uint32) { owner[off] = int32(c) })
	}
	return owner
}
