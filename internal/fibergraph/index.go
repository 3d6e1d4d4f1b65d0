package fibergraph

import (
	"math"

	"github.com/dhconnelly/rtreego"

	"fibermap/core-go/internal/geo"
)

const (
	rtreeMinChildren = 25
	rtreeMaxChildren = 50

	// boxMarginDeg pads query boxes against rounding at the box edge.
	boxMarginDeg = 1e-9
)

type indexedSegment struct {
	pos  int
	rect rtreego.Rect
}

func (s *indexedSegment) Bounds() rtreego.Rect {
	return s.rect
}

// segmentIndex is an R-tree over segment bounding boxes in (lat, lon) degrees.
type segmentIndex struct {
	tree    *rtreego.Rtree
	entries map[int]*indexedSegment
}

func newSegmentIndex(segments []Segment) *segmentIndex {
	idx := &segmentIndex{entries: make(map[int]*indexedSegment, len(segments))}
	objs := make([]rtreego.Spatial, 0, len(segments))
	for i, seg := range segments {
		e := &indexedSegment{pos: i, rect: segmentRect(seg)}
		idx.entries[i] = e
		objs = append(objs, e)
	}
	idx.tree = rtreego.NewTree(2, rtreeMinChildren, rtreeMaxChildren, objs...)
	return idx
}

func segmentRect(seg Segment) rtreego.Rect {
	r, _ := rtreego.NewRectFromPoints(
		rtreego.Point{math.Min(seg.A.Lat, seg.B.Lat), math.Min(seg.A.Lon, seg.B.Lon)},
		rtreego.Point{math.Max(seg.A.Lat, seg.B.Lat), math.Max(seg.A.Lon, seg.B.Lon)},
	)
	return r
}

// candidates returns positions of segments whose box meets the square of
// half-width maxM around q. The square is derived from the same local frame
// the snap distance uses, so no segment within maxM is missed. ok is false when
// the frame degenerates (poles) and a full scan is required.
func (idx *segmentIndex) candidates(q geo.Point, maxM float64) ([]int, bool) {
	cos := math.Cos(q.Lat * math.Pi / 180)
	if cos < 1e-6 || math.IsInf(maxM, 0) || math.IsNaN(maxM) {
		return nil, false
	}
	dLat := maxM/geo.EarthRadiusM*180/math.Pi + boxMarginDeg
	dLon := maxM/(geo.EarthRadiusM*cos)*180/math.Pi + boxMarginDeg

	box, err := rtreego.NewRectFromPoints(
		rtreego.Point{q.Lat - dLat, q.Lon - dLon},
		rtreego.Point{q.Lat + dLat, q.Lon + dLon},
	)
	if err != nil {
		return nil, false
	}

	hits := idx.tree.SearchIntersect(box)
	out := make([]int, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*indexedSegment).pos)
	}
	return out, true
}

func (idx *segmentIndex) add(pos int, seg Segment) {
	e := &indexedSegment{pos: pos, rect: segmentRect(seg)}
	idx.entries[pos] = e
	idx.tree.Insert(e)
}

func (idx *segmentIndex) replace(pos int, seg Segment) {
	if old, ok := idx.entries[pos]; ok {
		idx.tree.Delete(old)
	}
	idx.add(pos, seg)
}
