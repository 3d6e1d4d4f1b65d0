package fibergraph

import (
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"fibermap/core-go/internal/geo"
)

// GeometryKind tags the shape stored in a Geometry.
type GeometryKind int

const (
	KindLine GeometryKind = iota + 1
	KindMultiLine
)

// Geometry is a cable route shape: a single polyline or a set of polylines.
type Geometry struct {
	Kind  GeometryKind
	lines [][]geo.Point
}

func Line(points []geo.Point) *Geometry {
	return &Geometry{Kind: KindLine, lines: [][]geo.Point{points}}
}

func MultiLine(lines [][]geo.Point) *Geometry {
	return &Geometry{Kind: KindMultiLine, lines: lines}
}

// Polylines flattens the variant; polylines with fewer than two vertices are dropped.
func (g *Geometry) Polylines() [][]geo.Point {
	if g == nil {
		return nil
	}
	out := make([][]geo.Point, 0, len(g.lines))
	for _, line := range g.lines {
		if len(line) < 2 {
			continue
		}
		out = append(out, line)
	}
	return out
}

var ErrUnsupportedGeometry = errors.New("unsupported cable geometry")

// ParseGeoJSON decodes a GeoJSON LineString or MultiLineString (as produced by
// ST_AsGeoJSON) into a Geometry. GeoJSON positions are [lon, lat].
func ParseGeoJSON(data []byte) (*Geometry, error) {
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("decode route geojson: %w", err)
	}

	switch shape := g.Geometry().(type) {
	case orb.LineString:
		return Line(lineFromOrb(shape)), nil
	case orb.MultiLineString:
		lines := make([][]geo.Point, 0, len(shape))
		for _, ls := range shape {
			lines = append(lines, lineFromOrb(ls))
		}
		return MultiLine(lines), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGeometry, g.Type)
	}
}

func lineFromOrb(ls orb.LineString) []geo.Point {
	out := make([]geo.Point, 0, len(ls))
	for _, p := range ls {
		out = append(out, geo.NewPoint(p.Lat(), p.Lon()))
	}
	return out
}

// CableRoute is a fiber cable record as read from the asset store.
type CableRoute struct {
	ID        string
	Name      string
	CableType string
	Active    bool
	Geometry  *Geometry
	UpdatedAt time.Time
}
