package sqlcgen

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const listActiveCableRoutes = `-- name: ListActiveCableRoutes :many
SELECT c.id::text,
       c.name,
       c.cable_type,
       c.active,
       ST_AsGeoJSON(c.route)::text AS route_geojson,
       c.updated_at
FROM cable_routes c
WHERE c.active
  AND c.route IS NOT NULL
ORDER BY c.id
`

func (q *Queries) ListActiveCableRoutes(ctx context.Context) ([]CableRoute, error) {
	rows, err := q.db.Query(ctx, listActiveCableRoutes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CableRoute
	for rows.Next() {
		var i CableRoute
		if err := rows.Scan(&i.ID, &i.Name, &i.CableType, &i.Active, &i.RouteGeoJSON, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listCabinetsInBox = `-- name: ListCabinetsInBox :many
SELECT id::text,
       name,
       code,
       latitude,
       longitude,
       active
FROM cabinets
WHERE active
  AND latitude BETWEEN $1 AND $2
  AND longitude BETWEEN $3 AND $4
ORDER BY id
`

type ListCabinetsInBoxParams struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

func (q *Queries) ListCabinetsInBox(ctx context.Context, arg ListCabinetsInBoxParams) ([]Cabinet, error) {
	rows, err := q.db.Query(ctx, listCabinetsInBox, arg.MinLat, arg.MaxLat, arg.MinLon, arg.MaxLon)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Cabinet
	for rows.Next() {
		var i Cabinet
		if err := rows.Scan(&i.ID, &i.Name, &i.Code, &i.Lat, &i.Lon, &i.Active); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getCabinet = `-- name: GetCabinet :one
SELECT id::text,
       name,
       code,
       latitude,
       longitude,
       active
FROM cabinets
WHERE id = $1::uuid
  AND active
`

func (q *Queries) GetCabinet(ctx context.Context, id string) (Cabinet, error) {
	row := q.db.QueryRow(ctx, getCabinet, id)
	var i Cabinet
	err := row.Scan(&i.ID, &i.Name, &i.Code, &i.Lat, &i.Lon, &i.Active)
	return i, err
}

const getMapSettings = `-- name: GetMapSettings :one
SELECT
  (SELECT value FROM app_settings WHERE key = 'map_nearest_search_max_km') AS nearest_search_max_km,
  (SELECT value FROM app_settings WHERE key = 'map_snap_max_m') AS snap_max_m,
  (SELECT value FROM app_settings WHERE key = 'map_allow_straightline_fallback') AS allow_straightline_fallback
`

func (q *Queries) GetMapSettings(ctx context.Context) (MapSettingsRow, error) {
	row := q.db.QueryRow(ctx, getMapSettings)
	var i MapSettingsRow
	err := row.Scan(&i.NearestSearchMaxKm, &i.SnapMaxM, &i.AllowStraightlineFallback)
	return i, err
}

const listActiveDevices = `-- name: ListActiveDevices :many
SELECT d.id::text,
       d.name,
       d.parent_device_id::text,
       d.role,
       host(d.mgmt_ip),
       d.uplink_if_index,
       d.uplink_if_name,
       d.latitude,
       d.longitude
FROM network_devices d
WHERE d.active
ORDER BY d.name, d.id
`

func (q *Queries) ListActiveDevices(ctx context.Context) ([]TopologyDevice, error) {
	rows, err := q.db.Query(ctx, listActiveDevices)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TopologyDevice
	for rows.Next() {
		var i TopologyDevice
		if err := rows.Scan(&i.ID, &i.Name, &i.ParentDeviceID, &i.Role, &i.MgmtIP, &i.UplinkIfIndex, &i.UplinkIfName, &i.Lat, &i.Lon); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listLatestDeviceSamples = `-- name: ListLatestDeviceSamples :many
SELECT DISTINCT ON (s.device_id)
       s.device_id::text,
       s.peer_device_id::text,
       s.rx_bps,
       s.tx_bps,
       s.sampled_at
FROM bandwidth_samples s
WHERE s.peer_device_id IS NULL
  AND s.sampled_at >= $1
ORDER BY s.device_id, s.sampled_at DESC
`

func (q *Queries) ListLatestDeviceSamples(ctx context.Context, since time.Time) ([]BandwidthSample, error) {
	return q.listSamples(ctx, listLatestDeviceSamples, since)
}

const listLatestLinkSamples = `-- name: ListLatestLinkSamples :many
SELECT DISTINCT ON (s.peer_device_id, s.device_id)
       s.device_id::text,
       s.peer_device_id::text,
       s.rx_bps,
       s.tx_bps,
       s.sampled_at
FROM bandwidth_samples s
WHERE s.peer_device_id IS NOT NULL
  AND s.sampled_at >= $1
ORDER BY s.peer_device_id, s.device_id, s.sampled_at DESC
`

// ListLatestLinkSamples returns the newest sample per directed link; PeerDeviceID
// is the parent and DeviceID the child.
func (q *Queries) ListLatestLinkSamples(ctx context.Context, since time.Time) ([]BandwidthSample, error) {
	return q.listSamples(ctx, listLatestLinkSamples, since)
}

func (q *Queries) listSamples(ctx context.Context, sql string, since time.Time) ([]BandwidthSample, error) {
	rows, err := q.db.Query(ctx, sql, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BandwidthSample
	for rows.Next() {
		var i BandwidthSample
		if err := rows.Scan(&i.DeviceID, &i.PeerDeviceID, &i.RxBps, &i.TxBps, &i.SampledAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const insertBandwidthSample = `-- name: InsertBandwidthSample :exec
INSERT INTO bandwidth_samples (
  device_id,
  peer_device_id,
  rx_bps,
  tx_bps,
  sampled_at
)
VALUES ($1::uuid, $2::uuid, $3, $4, $5)
`

type InsertBandwidthSampleParams struct {
	DeviceID     string
	PeerDeviceID *string
	RxBps        int64
	TxBps        int64
	SampledAt    time.Time
}

func (q *Queries) InsertBandwidthSample(ctx context.Context, arg InsertBandwidthSampleParams) error {
	_, err := q.db.Exec(ctx, insertBandwidthSample, arg.DeviceID, arg.PeerDeviceID, arg.RxBps, arg.TxBps, arg.SampledAt)
	return err
}
