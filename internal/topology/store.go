package topology

import (
	"context"
	"fmt"
	"time"

	"fibermap/core-go/internal/geo"
	"fibermap/core-go/internal/sqlcgen"
)

// Store reads the device tree and the latest bandwidth samples.
// *sqlcgen.Queries satisfies this.
type Store interface {
	ListActiveDevices(ctx context.Context) ([]sqlcgen.TopologyDevice, error)
	ListLatestDeviceSamples(ctx context.Context, since time.Time) ([]sqlcgen.BandwidthSample, error)
	ListLatestLinkSamples(ctx context.Context, since time.Time) ([]sqlcgen.BandwidthSample, error)
}

// LoadFromStore reads active devices plus every sample taken at or after since.
func LoadFromStore(ctx context.Context, s Store, since time.Time) ([]Device, Metrics, error) {
	rows, err := s.ListActiveDevices(ctx)
	if err != nil {
		return nil, Metrics{}, fmt.Errorf("list devices: %w", err)
	}
	devSamples, err := s.ListLatestDeviceSamples(ctx, since)
	if err != nil {
		return nil, Metrics{}, fmt.Errorf("list device samples: %w", err)
	}
	linkSamples, err := s.ListLatestLinkSamples(ctx, since)
	if err != nil {
		return nil, Metrics{}, fmt.Errorf("list link samples: %w", err)
	}
	return DevicesFromRows(rows), MetricsFromSamples(devSamples, linkSamples), nil
}

func DevicesFromRows(rows []sqlcgen.TopologyDevice) []Device {
	out := make([]Device, 0, len(rows))
	for _, r := range rows {
		d := Device{ID: r.ID, Name: r.Name}
		if r.ParentDeviceID != nil {
			d.ParentID = *r.ParentDeviceID
		}
		if r.Role != nil {
			d.Role = *r.Role
		}
		if r.Lat != nil && r.Lon != nil {
			p := geo.NewPoint(*r.Lat, *r.Lon)
			if p.Valid() {
				d.Location = &p
			}
		}
		out = append(out, d)
	}
	return out
}

// MetricsFromSamples indexes device samples by device id and link samples by
// (peer, device), the peer being the parent end of the uplink.
func MetricsFromSamples(devices, links []sqlcgen.BandwidthSample) Metrics {
	m := Metrics{
		Devices: make(map[string]Sample, len(devices)),
		Links:   make(map[LinkKey]Sample, len(links)),
	}
	for _, s := range devices {
		if s.PeerDeviceID != nil {
			continue
		}
		m.Devices[s.DeviceID] = sampleFromRow(s)
	}
	for _, s := range links {
		if s.PeerDeviceID == nil {
			continue
		}
		m.Links[LinkKey{Parent: *s.PeerDeviceID, Child: s.DeviceID}] = sampleFromRow(s)
	}
	return m
}

func sampleFromRow(s sqlcgen.BandwidthSample) Sample {
	return Sample{RxBps: s.RxBps, TxBps: s.TxBps, SampledAt: s.SampledAt}
}
