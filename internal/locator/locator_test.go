package locator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fibermap/core-go/internal/geo"
	"fibermap/core-go/internal/sqlcgen"
)

type fakeStore struct {
	routes   []sqlcgen.CableRoute
	cabinets []sqlcgen.Cabinet
	settings sqlcgen.MapSettingsRow

	boxes     []sqlcgen.ListCabinetsInBoxParams
	routesErr error
}

func (f *fakeStore) ListActiveCableRoutes(context.Context) ([]sqlcgen.CableRoute, error) {
	return f.routes, f.routesErr
}

func (f *fakeStore) ListCabinetsInBox(_ context.Context, arg sqlcgen.ListCabinetsInBoxParams) ([]sqlcgen.Cabinet, error) {
	f.boxes = append(f.boxes, arg)
	var out []sqlcgen.Cabinet
	for _, c := range f.cabinets {
		if c.Lat >= arg.MinLat && c.Lat <= arg.MaxLat && c.Lon >= arg.MinLon && c.Lon <= arg.MaxLon {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) GetCabinet(_ context.Context, id string) (sqlcgen.Cabinet, error) {
	for _, c := range f.cabinets {
		if c.ID == id {
			return c, nil
		}
	}
	return sqlcgen.Cabinet{}, pgx.ErrNoRows
}

func (f *fakeStore) GetMapSettings(context.Context) (sqlcgen.MapSettingsRow, error) {
	return f.settings, nil
}

type mapCache struct {
	data map[string][]byte
	hits int
}

func (c *mapCache) Get(_ context.Context, key string, dst any) (bool, error) {
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(b, dst)
}

func (c *mapCache) Set(_ context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.data[key] = b
	return nil
}

func strPtr(s string) *string   { return &s }
func f64Ptr(v float64) *float64 { return &v }

func cabinet(id string, lat, lon float64) sqlcgen.Cabinet {
	return sqlcgen.Cabinet{ID: id, Name: "Cabinet " + id, Code: strPtr("ODC-" + id), Lat: lat, Lon: lon, Active: true}
}

// lineRoute builds a LineString row from (lat, lon) pairs.
func lineRoute(id string, pts ...geo.Point) sqlcgen.CableRoute {
	coords := "["
	for i, p := range pts {
		if i > 0 {
			coords += ","
		}
		coords += fmt.Sprintf("[%g,%g]", p.Lon, p.Lat)
	}
	coords += "]"
	gj := `{"type":"LineString","coordinates":` + coords + `}`
	return sqlcgen.CableRoute{
		ID:           id,
		Name:         "cable " + id,
		CableType:    strPtr("distribution"),
		Active:       true,
		RouteGeoJSON: &gj,
		UpdatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newService(store Store, cache Cache) *Service {
	return New(zerolog.Nop(), store, Options{Cache: cache})
}

func TestNearestCabinet_RadiusFiltersFarCabinet(t *testing.T) {
	store := &fakeStore{
		cabinets: []sqlcgen.Cabinet{
			cabinet("far", 0.072, 0),
			cabinet("near", 0.018, 0),
		},
		settings: sqlcgen.MapSettingsRow{AllowStraightlineFallback: strPtr("true")},
	}
	svc := newService(store, nil)

	res, err := svc.NearestCabinet(context.Background(), geo.NewPoint(0, 0), f64Ptr(5))
	require.NoError(t, err)
	assert.Equal(t, "near", res.Cabinet.ID)
	assert.Equal(t, PathStraight, res.PathType)
	assert.InDelta(t, 2001.5, res.DistanceM, 1)
	assert.Equal(t, "2.00 km", res.DistanceDisplay)
	assert.Nil(t, res.Path)

	require.Len(t, store.boxes, 1)
	assert.InDelta(t, 5.0/111.0, store.boxes[0].MaxLat, 1e-12)
	assert.InDelta(t, 5.0/111.0, store.boxes[0].MaxLon, 1e-12)

	opts, err := svc.PlanOptions(context.Background(), geo.NewPoint(0, 0), f64Ptr(5))
	require.NoError(t, err)
	require.Len(t, opts, 1)
	assert.Equal(t, "near", opts[0].Cabinet.ID)

	opts, err = svc.PlanOptions(context.Background(), geo.NewPoint(0, 0), f64Ptr(10))
	require.NoError(t, err)
	require.Len(t, opts, 2)
	assert.Equal(t, "near", opts[0].Cabinet.ID)
	assert.Equal(t, "far", opts[1].Cabinet.ID)
	assert.InDelta(t, 8006, opts[1].DistanceM, 1)
	assert.Equal(t, "8.01 km", opts[1].DistanceDisplay)
}

func TestNearestCabinet_FiberRoute(t *testing.T) {
	store := &fakeStore{
		routes: []sqlcgen.CableRoute{
			lineRoute("c1", geo.NewPoint(0, 0), geo.NewPoint(0.009, 0), geo.NewPoint(0.018, 0)),
		},
		cabinets: []sqlcgen.Cabinet{cabinet("near", 0.018, 0)},
	}
	svc := newService(store, nil)

	res, err := svc.NearestCabinet(context.Background(), geo.NewPoint(0, 0.0001), nil)
	require.NoError(t, err)
	assert.Equal(t, PathFiber, res.PathType)
	require.Len(t, res.Path, 3)
	assert.Equal(t, geo.NewPoint(0, 0), res.Path[0])
	assert.Equal(t, geo.NewPoint(0.018, 0), res.Path[2])
	assert.InDelta(t, 2001.5, res.DistanceM, 1)
	assert.GreaterOrEqual(t, res.DistanceM, geo.HaversineM(res.Path[0], res.Path[2])-1e-6)
	assert.NotEmpty(t, res.EncodedPath)

	require.Len(t, store.boxes, 1)
	assert.InDelta(t, DefaultNearestSearchMaxKm/111.0, store.boxes[0].MaxLat, 1e-12)
}

func TestNearestCabinet_NoRouteWithoutFallback(t *testing.T) {
	store := &fakeStore{
		routes: []sqlcgen.CableRoute{
			lineRoute("a", geo.NewPoint(0, 0), geo.NewPoint(0.002, 0)),
			lineRoute("b", geo.NewPoint(0.016, 0), geo.NewPoint(0.018, 0)),
		},
		cabinets: []sqlcgen.Cabinet{cabinet("near", 0.018, 0)},
	}
	svc := newService(store, nil)

	_, err := svc.NearestCabinet(context.Background(), geo.NewPoint(0, 0), nil)
	assert.True(t, errors.Is(err, ErrNoFiberRoute), "got %v", err)

	store.settings.AllowStraightlineFallback = strPtr("yes")
	res, err := svc.NearestCabinet(context.Background(), geo.NewPoint(0, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, PathStraight, res.PathType)
}

func TestNearestCabinet_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("no geometry", func(t *testing.T) {
		svc := newService(&fakeStore{cabinets: []sqlcgen.Cabinet{cabinet("x", 0.001, 0)}}, nil)
		_, err := svc.NearestCabinet(ctx, geo.NewPoint(0, 0), nil)
		assert.True(t, errors.Is(err, ErrNoCableGeometry))
	})

	t.Run("empty box", func(t *testing.T) {
		svc := newService(&fakeStore{}, nil)
		_, err := svc.NearestCabinet(ctx, geo.NewPoint(0, 0), nil)
		assert.True(t, errors.Is(err, ErrNoCabinetsInRadius))
	})

	t.Run("radius must be positive", func(t *testing.T) {
		svc := newService(&fakeStore{}, nil)
		_, err := svc.NearestCabinet(ctx, geo.NewPoint(0, 0), f64Ptr(0))
		assert.True(t, errors.Is(err, ErrInvalidRadius))
		_, err = svc.PlanOptions(ctx, geo.NewPoint(0, 0), f64Ptr(-2))
		assert.True(t, errors.Is(err, ErrInvalidRadius))
	})

	t.Run("radius clamped to stored maximum", func(t *testing.T) {
		store := &fakeStore{
			cabinets: []sqlcgen.Cabinet{cabinet("near", 0.018, 0)},
			settings: sqlcgen.MapSettingsRow{NearestSearchMaxKm: strPtr("1")},
		}
		svc := newService(store, nil)
		_, err := svc.NearestCabinet(ctx, geo.NewPoint(0, 0), f64Ptr(5))
		assert.True(t, errors.Is(err, ErrNoCabinetsInRadius))
		assert.InDelta(t, 1.0/111.0, store.boxes[0].MaxLat, 1e-12)
	})

	t.Run("invalid point", func(t *testing.T) {
		svc := newService(&fakeStore{}, nil)
		_, err := svc.NearestCabinet(ctx, geo.NewPoint(91, 0), nil)
		assert.True(t, errors.Is(err, ErrInvalidPoint))
	})

	t.Run("store failure", func(t *testing.T) {
		store := &fakeStore{
			cabinets:  []sqlcgen.Cabinet{cabinet("near", 0.018, 0)},
			routesErr: errors.New("connection reset"),
		}
		svc := newService(store, nil)
		_, err := svc.NearestCabinet(ctx, geo.NewPoint(0, 0), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestPlanOptions_CapsAtTen(t *testing.T) {
	store := &fakeStore{}
	for i := 12; i >= 1; i-- {
		store.cabinets = append(store.cabinets, cabinet(fmt.Sprintf("c%02d", i), float64(i)*0.001, 0))
	}
	svc := newService(store, nil)

	opts, err := svc.PlanOptions(context.Background(), geo.NewPoint(0, 0), nil)
	require.NoError(t, err)
	require.Len(t, opts, 10)
	assert.Equal(t, "c01", opts[0].Cabinet.ID)
	assert.Equal(t, "c10", opts[9].Cabinet.ID)
	for i := 1; i < len(opts); i++ {
		assert.LessOrEqual(t, opts[i-1].DistanceM, opts[i].DistanceM)
	}
}

func TestPlanRoute(t *testing.T) {
	store := &fakeStore{
		routes: []sqlcgen.CableRoute{
			lineRoute("c1", geo.NewPoint(0, 0), geo.NewPoint(0.009, 0), geo.NewPoint(0.018, 0)),
		},
		cabinets: []sqlcgen.Cabinet{
			cabinet("on-fiber", 0.018, 0.0005),
			cabinet("off-fiber", 0.018, 0.05),
		},
		settings: sqlcgen.MapSettingsRow{AllowStraightlineFallback: strPtr("true")},
	}
	svc := newService(store, nil)
	ctx := context.Background()

	res, err := svc.PlanRoute(ctx, geo.NewPoint(0.0045, 0.0002), "on-fiber")
	require.NoError(t, err)
	assert.Equal(t, "on-fiber", res.Cabinet.ID)
	assert.Equal(t, "ODC-on-fiber", res.Cabinet.Code)
	assert.InDelta(t, 22.2, res.QuerySnapM, 0.1)
	assert.InDelta(t, 55.6, res.CabinetSnapM, 0.1)
	assert.InDelta(t, 1501.1, res.DistanceM, 1)
	require.NotEmpty(t, res.Path)

	_, err = svc.PlanRoute(ctx, geo.NewPoint(0.0045, 0.0002), "missing")
	assert.True(t, errors.Is(err, ErrCabinetNotFound))

	// fallback never applies to explicit routes
	_, err = svc.PlanRoute(ctx, geo.NewPoint(0.0045, 0.0002), "off-fiber")
	var snapErr *UnableToSnapError
	require.True(t, errors.As(err, &snapErr), "got %v", err)
	assert.True(t, snapErr.Query.Snapped)
	assert.False(t, snapErr.Cabinet.Snapped)
	require.NotNil(t, snapErr.Cabinet.DistanceM)
	assert.Greater(t, *snapErr.Cabinet.DistanceM, DefaultSnapMaxM)
	assert.Equal(t, DefaultSnapMaxM, snapErr.MaxM)
}

func TestPlanRoute_NoGeometry(t *testing.T) {
	svc := newService(&fakeStore{cabinets: []sqlcgen.Cabinet{cabinet("x", 0, 0)}}, nil)
	_, err := svc.PlanRoute(context.Background(), geo.NewPoint(0, 0), "x")
	assert.True(t, errors.Is(err, ErrNoCableGeometry))
}

func TestMalformedGeometryIsSkipped(t *testing.T) {
	bad := `{"type":"LineString","coordinates":`
	store := &fakeStore{
		routes: []sqlcgen.CableRoute{
			{ID: "broken", Active: true, RouteGeoJSON: &bad},
			lineRoute("ok", geo.NewPoint(0, 0), geo.NewPoint(0.018, 0)),
		},
		cabinets: []sqlcgen.Cabinet{cabinet("near", 0.018, 0)},
	}
	res, err := newService(store, nil).NearestCabinet(context.Background(), geo.NewPoint(0, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, PathFiber, res.PathType)
}

func TestRouteCache(t *testing.T) {
	store := &fakeStore{
		routes: []sqlcgen.CableRoute{
			lineRoute("c1", geo.NewPoint(0, 0), geo.NewPoint(0.018, 0)),
		},
		cabinets: []sqlcgen.Cabinet{cabinet("near", 0.018, 0)},
	}
	cache := &mapCache{data: map[string][]byte{}}
	svc := newService(store, cache)
	ctx := context.Background()

	first, err := svc.NearestCabinet(ctx, geo.NewPoint(0, 0), nil)
	require.NoError(t, err)
	second, err := svc.NearestCabinet(ctx, geo.NewPoint(0, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, first, second)

	store.routes[0].UpdatedAt = store.routes[0].UpdatedAt.Add(time.Second)
	_, err = svc.NearestCabinet(ctx, geo.NewPoint(0, 0), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)
	assert.Len(t, cache.data, 2)
}

func TestLoadSettings(t *testing.T) {
	store := &fakeStore{settings: sqlcgen.MapSettingsRow{
		NearestSearchMaxKm:        strPtr("not-a-number"),
		SnapMaxM:                  strPtr(" 120 "),
		AllowStraightlineFallback: strPtr("maybe"),
	}}
	svc := New(zerolog.Nop(), store, Options{Defaults: Settings{NearestSearchMaxKm: 30, SnapMaxM: 90, AllowStraightlineFallback: true}})

	got, err := svc.loadSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Settings{NearestSearchMaxKm: 30, SnapMaxM: 120, AllowStraightlineFallback: true}, got)
}

func TestResolveRadius(t *testing.T) {
	s := DefaultSettings()
	r, err := s.ResolveRadius(nil)
	require.NoError(t, err)
	assert.Equal(t, 50.0, r)

	r, err = s.ResolveRadius(f64Ptr(80))
	require.NoError(t, err)
	assert.Equal(t, 50.0, r)

	r, err = s.ResolveRadius(f64Ptr(2.5))
	require.NoError(t, err)
	assert.Equal(t, 2.5, r)
}
