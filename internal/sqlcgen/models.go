package sqlcgen

import "time"

type CableRoute struct {
	ID           string
	Name         string
	CableType    *string
	Active       bool
	RouteGeoJSON *string
	UpdatedAt    time.Time
}

type Cabinet struct {
	ID     string
	Name   string
	Code   *string
	Lat    float64
	Lon    float64
	Active bool
}

// MapSettingsRow holds the raw app_settings values; nil when a key is unset.
type MapSettingsRow struct {
	NearestSearchMaxKm        *string
	SnapMaxM                  *string
	AllowStraightlineFallback *string
}

type TopologyDevice struct {
	ID             string
	Name           string
	ParentDeviceID *string
	Role           *string
	MgmtIP         *string
	UplinkIfIndex  *int32
	UplinkIfName   *string
	Lat            *float64
	Lon            *float64
}

type BandwidthSample struct {
	DeviceID     string
	PeerDeviceID *string
	RxBps        int64
	TxBps        int64
	SampledAt    time.Time
}
