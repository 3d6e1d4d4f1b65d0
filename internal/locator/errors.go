package locator

import (
	"errors"
	"fmt"
)

var (
	ErrNoCabinetsInRadius = errors.New("no cabinets within radius")
	ErrNoFiberRoute       = errors.New("no fiber route found")
	ErrNoCableGeometry    = errors.New("no active cable geometry")
	ErrCabinetNotFound    = errors.New("cabinet not found")
	ErrInvalidRadius      = errors.New("search radius must be greater than zero")
	ErrInvalidPoint       = errors.New("coordinate out of range")
)

// SnapSide is the best-effort snap outcome for one end of a route request.
// DistanceM is nil when the graph had nothing to snap to.
type SnapSide struct {
	Snapped   bool     `json:"snapped"`
	DistanceM *float64 `json:"distance_m"`
}

func (s SnapSide) String() string {
	switch {
	case s.Snapped:
		return fmt.Sprintf("snapped at %.1f m", *s.DistanceM)
	case s.DistanceM == nil:
		return "no fiber nearby"
	default:
		return fmt.Sprintf("nearest fiber %.1f m away", *s.DistanceM)
	}
}

// UnableToSnapError reports that the query or the cabinet (or both) lies
// outside the snap tolerance.
type UnableToSnapError struct {
	MaxM    float64
	Query   SnapSide
	Cabinet SnapSide
}

func (e *UnableToSnapError) Error() string {
	return fmt.Sprintf("unable to snap to fiber network within %.0f m (query: %s, cabinet: %s)", e.MaxM, e.Query, e.Cabinet)
}
