package fibergraph

import (
	"fmt"
	"math"
	"sort"

	"fibermap/core-go/internal/geo"
)

// SnapResult is the node a query coordinate was merged into.
type SnapResult struct {
	Node      geo.NodeKey
	Point     geo.Point
	DistanceM float64
}

// SnapError reports a failed snap. When HasCandidate is set, BestDistanceM is
// the distance to the nearest segment that was rejected by the tolerance.
type SnapError struct {
	Query         geo.Point
	MaxM          float64
	HasCandidate  bool
	BestDistanceM float64
}

func (e *SnapError) Error() string {
	if !e.HasCandidate {
		return "no fiber segments to snap to"
	}
	return fmt.Sprintf("nearest fiber is %.1f m away, outside %.1f m tolerance", e.BestDistanceM, e.MaxM)
}

// Snap projects q onto the closest cable segment. If the projected point is not
// already a node it is spliced into this graph instance, connected to both ends
// of the winning segment.
func (g *Graph) Snap(q geo.Point, maxM float64) (SnapResult, error) {
	if g.edgeCount == 0 || len(g.segments) == 0 {
		return SnapResult{}, &SnapError{Query: q, MaxM: maxM}
	}

	pos, proj, dist := g.nearestSegment(q, maxM)
	if dist > maxM {
		return SnapResult{}, &SnapError{Query: q, MaxM: maxM, HasCandidate: true, BestDistanceM: dist}
	}

	k := geo.KeyOf(proj)
	if p, ok := g.points[k]; ok {
		return SnapResult{Node: k, Point: p, DistanceM: dist}, nil
	}

	seg := g.segments[pos]
	g.AddEdge(proj, seg.A, geo.HaversineM(proj, seg.A))
	g.AddEdge(proj, seg.B, geo.HaversineM(proj, seg.B))
	g.splitSegment(pos, proj)

	return SnapResult{Node: k, Point: proj, DistanceM: dist}, nil
}

// nearestSegment returns the winning segment position, projection and distance.
// Ties go to the segment seen first.
func (g *Graph) nearestSegment(q geo.Point, maxM float64) (int, geo.Point, float64) {
	if g.indexThreshold > 0 && len(g.segments) >= g.indexThreshold {
		if g.index == nil {
			g.index = newSegmentIndex(g.segments)
		}
		if candidates, ok := g.index.candidates(q, maxM); ok && len(candidates) > 0 {
			sort.Ints(candidates)
			pos, proj, dist := g.scan(q, candidates)
			if dist <= maxM {
				return pos, proj, dist
			}
		}
	}
	return g.scan(q, nil)
}

// scan walks the given segment positions, or all segments when positions is nil.
func (g *Graph) scan(q geo.Point, positions []int) (int, geo.Point, float64) {
	bestPos := -1
	bestDist := math.Inf(1)
	var bestProj geo.Point

	visit := func(i int) {
		seg := g.segments[i]
		p, d := geo.ClosestPointOnSegment(q.Lat, q, seg.A, seg.B)
		if d < bestDist {
			bestPos, bestProj, bestDist = i, p, d
		}
	}

	if positions == nil {
		for i := range g.segments {
			visit(i)
		}
	} else {
		for _, i := range positions {
			visit(i)
		}
	}
	return bestPos, bestProj, bestDist
}

// splitSegment replaces segment pos (A, B) with (A, p) and appends (p, B) so a
// later snap on the same span lands on the correct side of p.
func (g *Graph) splitSegment(pos int, p geo.Point) {
	old := g.segments[pos]
	head := Segment{A: old.A, B: p}
	tail := Segment{A: p, B: old.B}

	g.segments[pos] = head
	g.segments = append(g.segments, tail)

	if g.index != nil {
		g.index.replace(pos, head)
		g.index.add(len(g.segments)-1, tail)
	}
}
