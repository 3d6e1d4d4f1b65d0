package topology

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fibermap/core-go/internal/sqlcgen"
)

type fakeStore struct {
	devices []sqlcgen.TopologyDevice
	devErr  error
	samples []sqlcgen.BandwidthSample
	links   []sqlcgen.BandwidthSample
	since   []time.Time
}

func (f *fakeStore) ListActiveDevices(context.Context) ([]sqlcgen.TopologyDevice, error) {
	return f.devices, f.devErr
}

func (f *fakeStore) ListLatestDeviceSamples(_ context.Context, since time.Time) ([]sqlcgen.BandwidthSample, error) {
	f.since = append(f.since, since)
	return f.samples, nil
}

func (f *fakeStore) ListLatestLinkSamples(_ context.Context, since time.Time) ([]sqlcgen.BandwidthSample, error) {
	f.since = append(f.since, since)
	return f.links, nil
}

func strPtr(s string) *string   { return &s }
func f64Ptr(v float64) *float64 { return &v }

func TestLoad_MapsRowsAndSamples(t *testing.T) {
	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	since := at.Add(-15 * time.Minute)
	s := &fakeStore{
		devices: []sqlcgen.TopologyDevice{
			{ID: "core", Name: "Core", Role: strPtr("router"), Lat: f64Ptr(-33.86), Lon: f64Ptr(151.2)},
			{ID: "olt", Name: "OLT 1", ParentDeviceID: strPtr("core"), Lat: f64Ptr(-33.87)},
			{ID: "bad", Name: "Bad", Lat: f64Ptr(120), Lon: f64Ptr(0)},
		},
		samples: []sqlcgen.BandwidthSample{
			{DeviceID: "core", RxBps: 10, TxBps: 20, SampledAt: at},
		},
		links: []sqlcgen.BandwidthSample{
			{DeviceID: "olt", PeerDeviceID: strPtr("core"), RxBps: 300, TxBps: 400, SampledAt: at},
			{DeviceID: "stray", RxBps: 1, SampledAt: at},
		},
	}

	devices, m, err := LoadFromStore(context.Background(), s, since)
	require.NoError(t, err)
	require.Len(t, devices, 3)

	assert.Equal(t, "router", devices[0].Role)
	require.NotNil(t, devices[0].Location)
	assert.InDelta(t, 151.2, devices[0].Location.Lon, 1e-9)
	assert.Equal(t, "core", devices[1].ParentID)
	assert.Nil(t, devices[1].Location, "half a coordinate is no location")
	assert.Nil(t, devices[2].Location, "out of range coordinates are dropped")

	assert.Equal(t, Sample{RxBps: 10, TxBps: 20, SampledAt: at}, m.Devices["core"])
	require.Len(t, m.Links, 1)
	assert.Equal(t, int64(700), int64(m.Links[LinkKey{Parent: "core", Child: "olt"}].TotalBps()))
	assert.Equal(t, []time.Time{since, since}, s.since)
}

func TestLoad_PropagatesStoreError(t *testing.T) {
	s := &fakeStore{devErr: errors.New("db down")}
	_, _, err := LoadFromStore(context.Background(), s, time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list devices")
}
