// Package cli renders API results for the hifibridge client commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"hifibridge/internal/api"
	"hifibridge/internal/orchestrator"
	"hifibridge/internal/zone"
)

// OutputFormat represents the output format for CLI commands
type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

// ParseOutputFormat validates a --output value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unsupported output format %q (want table, json or yaml)", s)
}

// Printer writes results in one format.
type Printer struct {
	Format OutputFormat
	Out    io.Writer
}

// NewPrinter creates a printer. An empty format means table.
func NewPrinter(format OutputFormat, out io.Writer) *Printer {
	if format == "" {
		format = OutputFormatTable
	}
	return &Printer{Format: format, Out: out}
}

// structured handles json and yaml; it reports false for table output.
func (p *Printer) structured(v any) (bool, error) {
	switch p.Format {
	case OutputFormatJSON:
		enc := json.NewEncoder(p.Out)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case OutputFormatYAML:
		// Round trip through JSON so the yaml keys match the API.
		data, err := json.Marshal(v)
		if err != nil {
			return true, err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return true, err
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return true, fmt.Errorf("failed to convert to YAML: %w", err)
		}
		_, err = p.Out.Write(out)
		return true, err
	}
	return false, nil
}

func (p *Printer) newTable(headers ...string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.Out)
	t.SetStyle(table.StyleRounded)
	row := make(table.Row, len(headers))
	for i, h := range headers {
		row[i] = text.FgHiCyan.Sprint(strings.ToUpper(h))
	}
	t.AppendHeader(row)
	return t
}

// Zones prints a zone list.
func (p *Printer) Zones(zones []zone.Zone) error {
	if ok, err := p.structured(zones); ok {
		return err
	}
	if len(zones) == 0 {
		fmt.Fprintln(p.Out, text.FgYellow.Sprint("No zones found"))
		return nil
	}
	t := p.newTable("id", "name", "state", "volume", "now playing")
	for _, z := range zones {
		t.AppendRow(table.Row{z.ID, z.Name, stateCell(z.State), volumeCell(z.Volume), nowPlayingCell(z.NowPlaying)})
	}
	t.Render()
	return nil
}

// Zone prints one zone as key/value pairs.
func (p *Printer) Zone(z zone.Zone) error {
	if ok, err := p.structured(z); ok {
		return err
	}
	t := p.newTable("field", "value")
	t.AppendRows([]table.Row{
		{"id", z.ID},
		{"name", z.Name},
		{"source", z.Source},
		{"state", stateCell(z.State)},
		{"volume", volumeCell(z.Volume)},
		{"now playing", nowPlayingCell(z.NowPlaying)},
		{"controls", controls(z)},
		{"last updated", z.LastUpdated.Format("2006-01-02 15:04:05")},
	})
	t.Render()
	return nil
}

// Adapters prints adapter status rows.
func (p *Printer) Adapters(statuses []orchestrator.AdapterStatus) error {
	if ok, err := p.structured(statuses); ok {
		return err
	}
	if len(statuses) == 0 {
		fmt.Fprintln(p.Out, text.FgYellow.Sprint("No adapters configured"))
		return nil
	}
	t := p.newTable("name", "enabled", "running", "state", "last error")
	for _, s := range statuses {
		t.AppendRow(table.Row{s.Name, boolCell(s.Enabled), boolCell(s.Running), string(s.State), dash(s.LastError)})
	}
	t.Render()
	return nil
}

// Adapter prints the status returned by an adapter action.
func (p *Printer) Adapter(s orchestrator.AdapterStatus) error {
	return p.Adapters([]orchestrator.AdapterStatus{s})
}

// CommandResponse prints the outcome of a zone command.
func (p *Printer) CommandResponse(zoneID string, resp zone.CommandResponse) error {
	if ok, err := p.structured(resp); ok {
		return err
	}
	if resp.OK {
		fmt.Fprintf(p.Out, "%s %s: %s\n", text.FgGreen.Sprint("✓"), zoneID, resp.Message)
		return nil
	}
	fmt.Fprintf(p.Out, "%s %s: %s\n", text.FgRed.Sprint("✗"), zoneID, resp.Message)
	return nil
}

// Bus prints bus counters.
func (p *Printer) Bus(stats api.BusStats) error {
	if ok, err := p.structured(stats); ok {
		return err
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	t := p.newTable("metric", "value")
	for _, k := range sortedKeys(fields) {
		t.AppendRow(table.Row{k, fields[k]})
	}
	t.Render()
	return nil
}

func stateCell(s zone.PlaybackState) string {
	switch s {
	case zone.StatePlaying:
		return text.FgGreen.Sprint(s)
	case zone.StatePaused, zone.StateLoading:
		return text.FgYellow.Sprint(s)
	}
	return text.FgHiBlack.Sprint(s)
}

func volumeCell(v *zone.VolumeControl) string {
	if v == nil {
		return text.FgHiBlack.Sprint("-")
	}
	if v.IsMuted {
		return text.FgYellow.Sprint("muted")
	}
	if v.Scale == zone.ScaleDecibel {
		return fmt.Sprintf("%.1f dB", v.Value)
	}
	return fmt.Sprintf("%.0f", v.Value)
}

func nowPlayingCell(np *zone.NowPlaying) string {
	if np == nil || np.Title == "" {
		return text.FgHiBlack.Sprint("-")
	}
	s := np.Title
	if np.Artist != "" {
		s += " - " + np.Artist
	}
	return s
}

func controls(z zone.Zone) string {
	var allowed []string
	if z.IsPlayAllowed {
		allowed = append(allowed, "play")
	}
	if z.IsPauseAllowed {
		allowed = append(allowed, "pause")
	}
	if z.IsNextAllowed {
		allowed = append(allowed, "next")
	}
	if z.IsPreviousAllowed {
		allowed = append(allowed, "previous")
	}
	if len(allowed) == 0 {
		return "-"
	}
	return strings.Join(allowed, ", ")
}

func boolCell(b bool) string {
	if b {
		return text.FgGreen.Sprint("yes")
	}
	return text.FgHiBlack.Sprint("no")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
