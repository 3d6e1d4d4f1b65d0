package geo

import (
	"fmt"
	"math"
)

// EarthRadiusM is the mean Earth radius used for every distance in the service.
const EarthRadiusM = 6_371_000.0

// keyScale converts degrees to integer micro-degrees (6 decimal places, ~0.11 m).
const keyScale = 1e6

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func NewPoint(lat, lon float64) Point {
	return Point{Lat: lat, Lon: lon}
}

func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsNaN(p.Lon) &&
		p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

func radToDeg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// HaversineM returns the great-circle distance between a and b in meters.
func HaversineM(a, b Point) float64 {
	lat1 := degToRad(a.Lat)
	lat2 := degToRad(b.Lat)
	dLat := lat2 - lat1
	dLon := degToRad(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusM * math.Asin(math.Sqrt(h))
}

// ToLocalMeters projects p onto an equirectangular plane scaled at originLat.
// Only meaningful over a few kilometers.
func ToLocalMeters(originLat float64, p Point) (x, y float64) {
	x = degToRad(p.Lon) * EarthRadiusM * math.Cos(degToRad(originLat))
	y = degToRad(p.Lat) * EarthRadiusM
	return x, y
}

// FromLocalMeters is the inverse of ToLocalMeters.
func FromLocalMeters(originLat, x, y float64) Point {
	lat := radToDeg(y / EarthRadiusM)
	cos := math.Cos(degToRad(originLat))
	if cos == 0 {
		return Point{Lat: lat}
	}
	lon := radToDeg(x / (EarthRadiusM * cos))
	return Point{Lat: lat, Lon: lon}
}

// ClosestPointOnSegment returns the point of segment (a, b) nearest to q and
// its planar distance to q, measured in the local frame around originLat.
func ClosestPointOnSegment(originLat float64, q, a, b Point) (Point, float64) {
	qx, qy := ToLocalMeters(originLat, q)
	ax, ay := ToLocalMeters(originLat, a)
	bx, by := ToLocalMeters(originLat, b)

	dx := bx - ax
	dy := by - ay
	lenSq := dx*dx + dy*dy
	if a == b || lenSq == 0 {
		return a, math.Hypot(qx-ax, qy-ay)
	}

	t := ((qx-ax)*dx + (qy-ay)*dy) / lenSq
	switch {
	case t <= 0:
		return a, math.Hypot(qx-ax, qy-ay)
	case t >= 1:
		return b, math.Hypot(qx-bx, qy-by)
	}

	px := ax + t*dx
	py := ay + t*dy
	return FromLocalMeters(originLat, px, py), math.Hypot(qx-px, qy-py)
}

// NodeKey identifies a graph node: a coordinate rounded to 6 decimal places,
// held as integer micro-degrees so map lookups never compare floats.
type NodeKey struct {
	Lat int64
	Lon int64
}

// KeyOf is the single normalisation applied wherever a coordinate becomes a key.
func KeyOf(p Point) NodeKey {
	return NodeKey{
		Lat: int64(math.Round(p.Lat * keyScale)),
		Lon: int64(math.Round(p.Lon * keyScale)),
	}
}

// Point returns the rounded coordinate the key stands for.
func (k NodeKey) Point() Point {
	return Point{Lat: float64(k.Lat) / keyScale, Lon: float64(k.Lon) / keyScale}
}

func (k NodeKey) String() string {
	p := k.Point()
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lon)
}

// FormatDistance renders meters the way the map UI shows them.
func FormatDistance(m float64) string {
	if m < 1000 {
		return fmt.Sprintf("%.0f m", m)
	}
	return fmt.Sprintf("%.2f km", m/1000)
}
