package topology

import "fibermap/core-go/internal/geo"

// Input is the JSON form of a layout request: a device list plus optional
// traffic, as posted to the layout endpoint or read from a file by the CLI.
type Input struct {
	Devices []InputDevice `json:"devices" validate:"dive"`
	Metrics InputMetrics  `json:"metrics"`
}

type InputDevice struct {
	ID       string     `json:"id" validate:"required"`
	Name     string     `json:"name"`
	ParentID string     `json:"parent_id,omitempty"`
	Role     string     `json:"role,omitempty"`
	Location *geo.Point `json:"location,omitempty"`
}

type InputRate struct {
	RxBps int64 `json:"rx_bps" validate:"min=0"`
	TxBps int64 `json:"tx_bps" validate:"min=0"`
}

type InputLink struct {
	ParentID string `json:"parent_id" validate:"required"`
	ChildID  string `json:"child_id" validate:"required"`
	RxBps    int64  `json:"rx_bps" validate:"min=0"`
	TxBps    int64  `json:"tx_bps" validate:"min=0"`
}

type InputMetrics struct {
	Devices map[string]InputRate `json:"devices" validate:"dive"`
	Links   []InputLink          `json:"links" validate:"dive"`
}

// Build converts the input into Layout arguments. Out of range locations are
// dropped.
func (in Input) Build() ([]Device, Metrics) {
	devices := make([]Device, 0, len(in.Devices))
	for _, d := range in.Devices {
		dev := Device{ID: d.ID, Name: d.Name, ParentID: d.ParentID, Role: d.Role}
		if d.Location != nil && d.Location.Valid() {
			loc := *d.Location
			dev.Location = &loc
		}
		devices = append(devices, dev)
	}
	m := Metrics{
		Devices: make(map[string]Sample, len(in.Metrics.Devices)),
		Links:   make(map[LinkKey]Sample, len(in.Metrics.Links)),
	}
	for id, s := range in.Metrics.Devices {
		m.Devices[id] = Sample{RxBps: s.RxBps, TxBps: s.TxBps}
	}
	for _, l := range in.Metrics.Links {
		m.Links[LinkKey{Parent: l.ParentID, Child: l.ChildID}] = Sample{RxBps: l.RxBps, TxBps: l.TxBps}
	}
	return devices, m
}
