package topology

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInput_Build(t *testing.T) {
	raw := `{
		"devices": [
			{"id": "core", "name": "Core"},
			{"id": "olt", "name": "OLT", "parent_id": "core", "location": {"lat": -33.9, "lon": 151.2}},
			{"id": "lost", "name": "Lost", "location": {"lat": 95, "lon": 0}}
		],
		"metrics": {
			"devices": {"olt": {"rx_bps": 5, "tx_bps": 6}},
			"links": [{"parent_id": "core", "child_id": "olt", "rx_bps": 1, "tx_bps": 2}]
		}
	}`
	var in Input
	require.NoError(t, json.Unmarshal([]byte(raw), &in))

	devices, m := in.Build()
	require.Len(t, devices, 3)
	assert.Equal(t, "core", devices[1].ParentID)
	require.NotNil(t, devices[1].Location)
	assert.Nil(t, devices[2].Location)

	assert.Equal(t, Sample{RxBps: 5, TxBps: 6}, m.Devices["olt"])
	assert.Equal(t, Sample{RxBps: 1, TxBps: 2}, m.Links[LinkKey{Parent: "core", Child: "olt"}])

	res := Layout(devices, m, Options{})
	assert.Equal(t, 3, res.Stats.NodeCount)
}

func TestInput_BuildEmpty(t *testing.T) {
	devices, m := Input{}.Build()
	assert.Empty(t, devices)
	assert.NotNil(t, m.Devices)
	assert.NotNil(t, m.Links)
}
