package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fibermap/core-go/internal/topology"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATABASE_URL", "")
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLayout_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plant.json")
	doc := `{
		"devices": [
			{"id": "core", "name": "Core"},
			{"id": "olt-2", "name": "OLT", "parent_id": "core"},
			{"id": "olt-1", "name": "OLT", "parent_id": "core"}
		],
		"metrics": {"devices": {"olt-1": {"rx_bps": 150000000, "tx_bps": 0}}}
	}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	out, err := run(t, "layout", "--file", path)
	require.NoError(t, err)

	var res topology.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Nodes, 3)
	assert.Equal(t, "olt-1", res.Nodes[1].ID, "equal names order by id")
	assert.Equal(t, topology.LoadModerate, res.Nodes[1].Load)
	assert.Equal(t, 2, res.Stats.LinkCount)
}

func TestLayout_RejectsDeviceWithoutID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plant.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"devices": [{"name": "anon"}]}`), 0o600))

	_, err := run(t, "layout", "-f", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid")
}

func TestRoute_RejectsBadCabinetID(t *testing.T) {
	_, err := run(t, "route", "--lat", "1", "--lon", "2", "--cabinet", "cab-7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cab-7")
}

func TestNearest_RejectsOutOfRangePoint(t *testing.T) {
	_, err := run(t, "nearest", "--lat", "91", "--lon", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestOptions_NeedsDatabase(t *testing.T) {
	_, err := run(t, "options", "--lat", "1", "--lon", "2")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no database configured"), err.Error())
}

func TestNearest_RequiresCoordinates(t *testing.T) {
	_, err := run(t, "nearest", "--lat", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lon")
}
