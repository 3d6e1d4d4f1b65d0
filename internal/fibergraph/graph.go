package fibergraph

import (
	"fibermap/core-go/internal/geo"
)

// DefaultIndexThreshold is the segment count from which snapping consults an
// R-tree instead of scanning every segment.
const DefaultIndexThreshold = 2048

// Edge is one directed adjacency entry. Every inserted edge has a mirror entry.
type Edge struct {
	To      geo.NodeKey
	WeightM float64
}

// Segment is a cable span in original, unrounded coordinates.
type Segment struct {
	A geo.Point
	B geo.Point
}

// Graph is an undirected weighted fiber graph keyed by rounded coordinates.
// A Graph is built per request and is not safe for concurrent use.
type Graph struct {
	adj       map[geo.NodeKey][]Edge
	points    map[geo.NodeKey]geo.Point
	segments  []Segment
	edgeCount int

	indexThreshold int
	index          *segmentIndex
}

func New() *Graph {
	return &Graph{
		adj:            make(map[geo.NodeKey][]Edge),
		points:         make(map[geo.NodeKey]geo.Point),
		indexThreshold: DefaultIndexThreshold,
	}
}

// Build turns the active cable routes into a graph. Inactive routes and routes
// without geometry are ignored.
func Build(routes []CableRoute) *Graph {
	g := New()
	for _, r := range routes {
		if !r.Active || r.Geometry == nil {
			continue
		}
		for _, line := range r.Geometry.Polylines() {
			for i := 0; i+1 < len(line); i++ {
				g.AddSegment(line[i], line[i+1])
			}
		}
	}
	return g
}

// SetIndexThreshold changes when the snap index kicks in; n <= 0 disables it.
func (g *Graph) SetIndexThreshold(n int) {
	g.indexThreshold = n
	g.index = nil
}

// AddSegment inserts a cable span weighted by its great-circle length and keeps
// it for snapping. Spans whose ends share a node key are skipped.
func (g *Graph) AddSegment(a, b geo.Point) bool {
	if !g.AddEdge(a, b, geo.HaversineM(a, b)) {
		return false
	}
	g.segments = append(g.segments, Segment{A: a, B: b})
	g.index = nil
	return true
}

// AddEdge inserts a bidirectional edge. Parallel edges accumulate.
func (g *Graph) AddEdge(a, b geo.Point, weightM float64) bool {
	ka := geo.KeyOf(a)
	kb := geo.KeyOf(b)
	if ka == kb || !(weightM > 0) {
		return false
	}
	g.touch(ka, a)
	g.touch(kb, b)
	g.adj[ka] = append(g.adj[ka], Edge{To: kb, WeightM: weightM})
	g.adj[kb] = append(g.adj[kb], Edge{To: ka, WeightM: weightM})
	g.edgeCount++
	return true
}

// touch records the first coordinate seen for a key.
func (g *Graph) touch(k geo.NodeKey, p geo.Point) {
	if _, ok := g.points[k]; !ok {
		g.points[k] = p
	}
}

func (g *Graph) HasNode(k geo.NodeKey) bool {
	_, ok := g.points[k]
	return ok
}

// Point returns the exact coordinate a node was created from.
func (g *Graph) Point(k geo.NodeKey) (geo.Point, bool) {
	p, ok := g.points[k]
	return p, ok
}

// Neighbors returns the adjacency list of k. Lists are not deduplicated.
func (g *Graph) Neighbors(k geo.NodeKey) []Edge {
	return g.adj[k]
}

func (g *Graph) NodeCount() int    { return len(g.points) }
func (g *Graph) EdgeCount() int    { return g.edgeCount }
func (g *Graph) SegmentCount() int { return len(g.segments) }

func (g *Graph) Segments() []Segment {
	out := make([]Segment, len(g.segments))
	copy(out, g.segments)
	return out
}
