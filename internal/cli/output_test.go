package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hifibridge/internal/api"
	"hifibridge/internal/orchestrator"
	"hifibridge/internal/zone"
)

func sampleZones() []zone.Zone {
	return []zone.Zone{
		{ID: "sim:living", Name: "Living Room", State: zone.StatePlaying, Source: "sim",
			Volume:        &zone.VolumeControl{Value: 35, Scale: zone.ScalePercentage},
			NowPlaying:    &zone.NowPlaying{Title: "So What", Artist: "Miles Davis"},
			IsPlayAllowed: true, IsNextAllowed: true},
		{ID: "sim:study", Name: "Study", State: zone.StateStopped},
	}
}

func TestParseOutputFormat(t *testing.T) {
	for _, in := range []string{"table", "JSON", "yaml"} {
		_, err := ParseOutputFormat(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseOutputFormat("xml")
	assert.Error(t, err)
}

func TestPrinter_ZonesTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter("", &buf).Zones(sampleZones()))

	out := buf.String()
	assert.Contains(t, out, "sim:living")
	assert.Contains(t, out, "So What - Miles Davis")
	assert.Contains(t, out, "Study")
}

func TestPrinter_ZonesEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(OutputFormatTable, &buf).Zones(nil))
	assert.Contains(t, buf.String(), "No zones found")
}

func TestPrinter_ZonesJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(OutputFormatJSON, &buf).Zones(sampleZones()))

	var got []zone.Zone
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "sim:living", got[0].ID)
}

func TestPrinter_YAMLUsesAPIKeys(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(OutputFormatYAML, &buf).Adapters([]orchestrator.AdapterStatus{
		{Name: "sim", Enabled: true, CanStart: true},
	}))
	assert.Contains(t, buf.String(), "can_start: true")
	assert.Contains(t, buf.String(), "name: sim")
}

func TestPrinter_ZoneDetail(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(OutputFormatTable, &buf).Zone(sampleZones()[0]))
	assert.Contains(t, buf.String(), "play, next")
}

func TestPrinter_CommandResponse(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(OutputFormatTable, &buf)
	require.NoError(t, p.CommandResponse("sim:living", zone.CommandResponse{OK: true, Message: "play"}))
	require.NoError(t, p.CommandResponse("sim:living", zone.CommandResponse{OK: false, Message: "unknown zone"}))
	assert.Contains(t, buf.String(), "sim:living: play")
	assert.Contains(t, buf.String(), "sim:living: unknown zone")
}

func TestPrinter_Bus(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPrinter(OutputFormatTable, &buf).Bus(api.BusStats{Capacity: 1024, Published: 7}))
	assert.Contains(t, buf.String(), "capacity")
	assert.Contains(t, buf.String(), "1024")
}
