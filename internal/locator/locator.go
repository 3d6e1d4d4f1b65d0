package locator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/twpayne/go-polyline"

	"fibermap/core-go/internal/fibergraph"
	"fibermap/core-go/internal/geo"
	"fibermap/core-go/internal/metrics"
	"fibermap/core-go/internal/routecache"
	"fibermap/core-go/internal/sqlcgen"
)

// Store is the read-only slice of the asset database the locator needs.
type Store interface {
	ListActiveCableRoutes(ctx context.Context) ([]sqlcgen.CableRoute, error)
	ListCabinetsInBox(ctx context.Context, arg sqlcgen.ListCabinetsInBoxParams) ([]sqlcgen.Cabinet, error)
	GetCabinet(ctx context.Context, id string) (sqlcgen.Cabinet, error)
	GetMapSettings(ctx context.Context) (sqlcgen.MapSettingsRow, error)
}

// Cache holds finished route results keyed by a plant fingerprint.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any) error
}

type PathType string

const (
	PathFiber    PathType = "fiber"
	PathStraight PathType = "straight"
)

type Cabinet struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Code string  `json:"code,omitempty"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

func (c Cabinet) Point() geo.Point {
	return geo.NewPoint(c.Lat, c.Lon)
}

type NearestResult struct {
	Cabinet         Cabinet     `json:"cabinet"`
	DistanceM       float64     `json:"distance_m"`
	DistanceDisplay string      `json:"distance_display"`
	Path            []geo.Point `json:"path,omitempty"`
	EncodedPath     string      `json:"encoded_path,omitempty"`
	PathType        PathType    `json:"path_type"`
}

type Option struct {
	Cabinet         Cabinet `json:"cabinet"`
	DistanceM       float64 `json:"distance_m"`
	DistanceDisplay string  `json:"distance_display"`
}

type RouteResult struct {
	Cabinet         Cabinet     `json:"cabinet"`
	DistanceM       float64     `json:"distance_m"`
	DistanceDisplay string      `json:"distance_display"`
	Path            []geo.Point `json:"path"`
	EncodedPath     string      `json:"encoded_path"`
	QuerySnapM      float64     `json:"query_snap_m"`
	CabinetSnapM    float64     `json:"cabinet_snap_m"`
}

type Options struct {
	Defaults Settings
	Metrics  *metrics.Metrics
	Cache    Cache
}

type Service struct {
	log      zerolog.Logger
	store    Store
	defaults Settings
	metrics  *metrics.Metrics
	cache    Cache
}

func New(log zerolog.Logger, store Store, opts Options) *Service {
	defaults := opts.Defaults
	if defaults == (Settings{}) {
		defaults = DefaultSettings()
	}
	return &Service{
		log:      log,
		store:    store,
		defaults: defaults.sanitize(),
		metrics:  opts.Metrics,
		cache:    opts.Cache,
	}
}

// NearestCabinet finds the closest active cabinet inside the search box and,
// when the plant allows it, replaces the straight-line distance with the routed
// fiber distance.
func (s *Service) NearestCabinet(ctx context.Context, q geo.Point, radiusKm *float64) (NearestResult, error) {
	res, err := s.nearestCabinet(ctx, q, radiusKm)
	s.count("nearest", res.PathType, err)
	return res, err
}

func (s *Service) nearestCabinet(ctx context.Context, q geo.Point, radiusKm *float64) (NearestResult, error) {
	if !q.Valid() {
		return NearestResult{}, ErrInvalidPoint
	}
	settings, err := s.loadSettings(ctx)
	if err != nil {
		return NearestResult{}, fmt.Errorf("load map settings: %w", err)
	}
	radius, err := settings.ResolveRadius(radiusKm)
	if err != nil {
		return NearestResult{}, err
	}

	ranked, err := s.rankedCabinets(ctx, q, radius)
	if err != nil {
		return NearestResult{}, err
	}
	if len(ranked) == 0 {
		return NearestResult{}, ErrNoCabinetsInRadius
	}
	best := ranked[0]

	routes, err := s.store.ListActiveCableRoutes(ctx)
	if err != nil {
		return NearestResult{}, fmt.Errorf("list cable routes: %w", err)
	}

	key := s.cacheKey("nearest", routes, best.Cabinet, q, settings)
	var cached NearestResult
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	res := NearestResult{
		Cabinet:   best.Cabinet,
		DistanceM: best.DistanceM,
		PathType:  PathStraight,
	}

	path, _, _, rerr := s.route(routes, q, best.Cabinet, settings.SnapMaxM)
	switch {
	case rerr == nil:
		res.DistanceM = path.DistanceM
		res.Path = path.Points
		res.EncodedPath = encodePath(path.Points)
		res.PathType = PathFiber
	case settings.AllowStraightlineFallback:
		s.log.Debug().Err(rerr).Str("cabinet_id", best.Cabinet.ID).Msg("fiber route unavailable; using straight line")
	case errors.Is(rerr, ErrNoCableGeometry):
		return NearestResult{}, ErrNoCableGeometry
	default:
		s.log.Debug().Err(rerr).Str("cabinet_id", best.Cabinet.ID).Msg("fiber route unavailable")
		return NearestResult{}, ErrNoFiberRoute
	}
	res.DistanceDisplay = geo.FormatDistance(res.DistanceM)

	s.cacheSet(ctx, key, res)
	return res, nil
}

// PlanOptions lists up to ten cabinets in the search box ordered by
// straight-line distance. No routing is attempted.
func (s *Service) PlanOptions(ctx context.Context, q geo.Point, radiusKm *float64) ([]Option, error) {
	opts, err := s.planOptions(ctx, q, radiusKm)
	outcome := "ok"
	if err == nil && len(opts) == 0 {
		outcome = "empty"
	}
	s.countOutcome("options", outcome, err)
	return opts, err
}

func (s *Service) planOptions(ctx context.Context, q geo.Point, radiusKm *float64) ([]Option, error) {
	if !q.Valid() {
		return nil, ErrInvalidPoint
	}
	settings, err := s.loadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load map settings: %w", err)
	}
	radius, err := settings.ResolveRadius(radiusKm)
	if err != nil {
		return nil, err
	}
	ranked, err := s.rankedCabinets(ctx, q, radius)
	if err != nil {
		return nil, err
	}
	if len(ranked) > maxPlanOptions {
		ranked = ranked[:maxPlanOptions]
	}
	out := make([]Option, 0, len(ranked))
	for _, r := range ranked {
		r.DistanceDisplay = geo.FormatDistance(r.DistanceM)
		out = append(out, r)
	}
	return out, nil
}

// PlanRoute routes from q to a caller-chosen cabinet. It never falls back to a
// straight line.
func (s *Service) PlanRoute(ctx context.Context, q geo.Point, cabinetID string) (RouteResult, error) {
	res, err := s.planRoute(ctx, q, cabinetID)
	s.countOutcome("route", "fiber", err)
	return res, err
}

func (s *Service) planRoute(ctx context.Context, q geo.Point, cabinetID string) (RouteResult, error) {
	if !q.Valid() {
		return RouteResult{}, ErrInvalidPoint
	}
	settings, err := s.loadSettings(ctx)
	if err != nil {
		return RouteResult{}, fmt.Errorf("load map settings: %w", err)
	}

	row, err := s.store.GetCabinet(ctx, cabinetID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RouteResult{}, ErrCabinetNotFound
		}
		return RouteResult{}, fmt.Errorf("get cabinet: %w", err)
	}
	cab := cabinetFromRow(row)

	routes, err := s.store.ListActiveCableRoutes(ctx)
	if err != nil {
		return RouteResult{}, fmt.Errorf("list cable routes: %w", err)
	}

	key := s.cacheKey("route", routes, cab, q, settings)
	var cached RouteResult
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	path, qs, cs, err := s.route(routes, q, cab, settings.SnapMaxM)
	if err != nil {
		return RouteResult{}, err
	}
	res := RouteResult{
		Cabinet:         cab,
		DistanceM:       path.DistanceM,
		DistanceDisplay: geo.FormatDistance(path.DistanceM),
		Path:            path.Points,
		EncodedPath:     encodePath(path.Points),
		QuerySnapM:      qs.DistanceM,
		CabinetSnapM:    cs.DistanceM,
	}
	s.cacheSet(ctx, key, res)
	return res, nil
}

// rankedCabinets applies the degree-box pre-filter and sorts survivors by exact
// distance. Equal distances keep store order.
func (s *Service) rankedCabinets(ctx context.Context, q geo.Point, radiusKm float64) ([]Option, error) {
	d := radiusKm / kmPerDegree
	rows, err := s.store.ListCabinetsInBox(ctx, sqlcgen.ListCabinetsInBoxParams{
		MinLat: q.Lat - d,
		MaxLat: q.Lat + d,
		MinLon: q.Lon - d,
		MaxLon: q.Lon + d,
	})
	if err != nil {
		return nil, fmt.Errorf("list cabinets: %w", err)
	}

	out := make([]Option, 0, len(rows))
	for _, row := range rows {
		c := cabinetFromRow(row)
		out = append(out, Option{Cabinet: c, DistanceM: geo.HaversineM(q, c.Point())})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceM < out[j].DistanceM })
	return out, nil
}

// route builds a fresh graph, snaps both ends and runs the router.
func (s *Service) route(routes []sqlcgen.CableRoute, q geo.Point, cab Cabinet, snapMaxM float64) (fibergraph.Path, fibergraph.SnapResult, fibergraph.SnapResult, error) {
	var none fibergraph.SnapResult
	g := s.buildGraph(routes)
	if g.EdgeCount() == 0 {
		return fibergraph.Path{}, none, none, ErrNoCableGeometry
	}

	qs, qerr := g.Snap(q, snapMaxM)
	cs, cerr := g.Snap(cab.Point(), snapMaxM)
	if qerr != nil || cerr != nil {
		if qerr != nil {
			s.metrics.IncSnapFailure()
		}
		if cerr != nil {
			s.metrics.IncSnapFailure()
		}
		return fibergraph.Path{}, none, none, &UnableToSnapError{
			MaxM:    snapMaxM,
			Query:   snapSide(qs, qerr),
			Cabinet: snapSide(cs, cerr),
		}
	}

	path, err := g.ShortestPath(qs.Node, cs.Node)
	if err != nil {
		return fibergraph.Path{}, none, none, ErrNoFiberRoute
	}
	return path, qs, cs, nil
}

func (s *Service) buildGraph(rows []sqlcgen.CableRoute) *fibergraph.Graph {
	start := time.Now()
	routes := make([]fibergraph.CableRoute, 0, len(rows))
	for _, row := range rows {
		r := fibergraph.CableRoute{
			ID:        row.ID,
			Name:      row.Name,
			Active:    row.Active,
			UpdatedAt: row.UpdatedAt,
		}
		if row.CableType != nil {
			r.CableType = *row.CableType
		}
		if row.RouteGeoJSON != nil {
			geom, err := fibergraph.ParseGeoJSON([]byte(*row.RouteGeoJSON))
			if err != nil {
				s.log.Warn().Err(err).Str("cable_route_id", row.ID).Msg("skipping cable route with unreadable geometry")
				continue
			}
			r.Geometry = geom
		}
		routes = append(routes, r)
	}
	g := fibergraph.Build(routes)
	s.metrics.ObserveGraphBuild(time.Since(start))
	return g
}

func snapSide(res fibergraph.SnapResult, err error) SnapSide {
	if err == nil {
		d := res.DistanceM
		return SnapSide{Snapped: true, DistanceM: &d}
	}
	var se *fibergraph.SnapError
	if errors.As(err, &se) && se.HasCandidate {
		d := se.BestDistanceM
		return SnapSide{DistanceM: &d}
	}
	return SnapSide{}
}

func cabinetFromRow(row sqlcgen.Cabinet) Cabinet {
	c := Cabinet{ID: row.ID, Name: row.Name, Lat: row.Lat, Lon: row.Lon}
	if row.Code != nil {
		c.Code = *row.Code
	}
	return c
}

func encodePath(points []geo.Point) string {
	coords := make([][]float64, 0, len(points))
	for _, p := range points {
		coords = append(coords, []float64{p.Lat, p.Lon})
	}
	return string(polyline.EncodeCoords(coords))
}

// cacheKey fingerprints everything a routed answer depends on. Any cable write
// bumps updated_at and so changes the key.
func (s *Service) cacheKey(op string, routes []sqlcgen.CableRoute, cab Cabinet, q geo.Point, settings Settings) string {
	parts := make([]string, 0, len(routes)+6)
	parts = append(parts,
		op,
		geo.KeyOf(q).String(),
		cab.ID+"@"+geo.KeyOf(cab.Point()).String(),
		strconv.FormatFloat(settings.SnapMaxM, 'f', -1, 64),
		strconv.FormatBool(settings.AllowStraightlineFallback),
	)
	for _, r := range routes {
		parts = append(parts, r.ID+"@"+strconv.FormatInt(r.UpdatedAt.UnixNano(), 10))
	}
	return routecache.Fingerprint(parts...)
}

func (s *Service) cacheGet(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		s.log.Warn().Err(err).Msg("route cache read failed")
		return false
	}
	return ok
}

func (s *Service) cacheSet(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, v); err != nil {
		s.log.Warn().Err(err).Msg("route cache write failed")
	}
}

func (s *Service) count(op string, pt PathType, err error) {
	s.countOutcome(op, string(pt), err)
}

func (s *Service) countOutcome(op, success string, err error) {
	s.metrics.IncRouteRequest(op, outcomeOf(success, err))
}

func outcomeOf(success string, err error) string {
	var snapErr *UnableToSnapError
	switch {
	case err == nil:
		return success
	case errors.Is(err, ErrNoCabinetsInRadius):
		return "no_cabinets"
	case errors.Is(err, ErrNoFiberRoute):
		return "no_route"
	case errors.Is(err, ErrNoCableGeometry):
		return "no_geometry"
	case errors.Is(err, ErrCabinetNotFound):
		return "not_found"
	case errors.As(err, &snapErr):
		return "unable_to_snap"
	case errors.Is(err, ErrInvalidRadius), errors.Is(err, ErrInvalidPoint):
		return "invalid"
	default:
		return "error"
	}
}
