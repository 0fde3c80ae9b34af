package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"hifibridge/internal/adapters"
	"hifibridge/internal/orchestrator"
	"hifibridge/internal/zone"
	"hifibridge/pkg/logging"
)

// Fixed column widths; Now Playing takes the rest.
const (
	colZone     = 18
	colState    = 9
	colVolume   = 8
	colPosition = 13
	minNowPlay  = 16
)

func columnsFor(width int) []table.Column {
	np := width - colZone - colState - colVolume - colPosition - 10
	if np < minNowPlay {
		np = minNowPlay
	}
	return []table.Column{
		{Title: "Zone", Width: colZone},
		{Title: "State", Width: colState},
		{Title: "Volume", Width: colVolume},
		{Title: "Now Playing", Width: np},
		{Title: "Position", Width: colPosition},
	}
}

func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colorBorder).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#FFFFFF"}).
		Background(colorPrimary).
		Bold(false)
	return s
}

func zoneRow(z zone.Zone) table.Row {
	return table.Row{
		z.Name,
		string(z.State),
		formatVolume(z.Volume),
		formatNowPlaying(z.NowPlaying),
		formatPosition(z.NowPlaying),
	}
}

func formatVolume(v *zone.VolumeControl) string {
	if v == nil {
		return "-"
	}
	if v.IsMuted {
		return "muted"
	}
	if v.Scale == zone.ScaleDecibel {
		return fmt.Sprintf("%.1fdB", v.Value)
	}
	return fmt.Sprintf("%.0f", v.Value)
}

func formatNowPlaying(np *zone.NowPlaying) string {
	if np == nil || np.Title == "" {
		return "-"
	}
	if np.Artist == "" {
		return np.Title
	}
	return np.Title + " · " + np.Artist
}

func formatPosition(np *zone.NowPlaying) string {
	if np == nil {
		return "-"
	}
	if np.Duration <= 0 {
		return clock(np.SeekPosition)
	}
	return clock(np.SeekPosition) + " / " + clock(np.Duration)
}

func clock(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	width := m.width
	if width <= 0 {
		width = 80
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("hifibridge"))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  %d zone(s)", len(m.zoneIDs))))
	b.WriteString("\n")
	b.WriteString(panelStyle.Width(width - 2).Render(m.table.View()))
	b.WriteString("\n")
	b.WriteString(fitWidth(m.renderAdapters(), width))
	b.WriteString("\n")
	b.WriteString(fitWidth(m.renderStatus(), width))
	b.WriteString("\n")
	if m.showLog {
		b.WriteString(panelStyle.Width(width - 2).Render(m.renderLog(width - 4)))
		b.WriteString("\n")
	}
	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

func (m *Model) renderAdapters() string {
	if len(m.adapters) == 0 {
		return mutedStyle.Render("no adapters")
	}
	parts := make([]string, 0, len(m.adapters))
	for _, a := range m.adapters {
		parts = append(parts, renderAdapter(a))
	}
	return strings.Join(parts, "  ")
}

func renderAdapter(a orchestrator.AdapterStatus) string {
	label := strings.ToLower(string(a.State))
	if label == "" {
		label = "stopped"
		if a.Running {
			label = "running"
		}
	}
	if !a.Enabled {
		label = "disabled"
	}

	style := stoppedStyle
	dot := "○"
	switch {
	case !a.Enabled:
	case a.State == adapters.StateBackoff:
		style, dot = backoffStyle, "◌"
	case a.Running:
		style, dot = runningStyle, "●"
	}
	s := style.Render(dot+" "+a.Name) + " " + mutedStyle.Render(label)
	if a.LastError != "" {
		s += " " + errorStyle.Render(a.LastError)
	}
	return s
}

func (m *Model) renderStatus() string {
	if m.status == "" {
		return mutedStyle.Render("ready")
	}
	if m.statusIsErr {
		return errorStyle.Render(m.status)
	}
	return m.status
}

func (m *Model) renderLog(width int) string {
	h := m.logHeight()
	start := len(m.logLines) - h
	if start < 0 {
		start = 0
	}
	lines := make([]string, 0, h)
	for _, e := range m.logLines[start:] {
		lines = append(lines, renderLogLine(e, width))
	}
	for len(lines) < h {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func renderLogLine(e logging.LogEntry, width int) string {
	line := fmt.Sprintf("%s %-5s [%s] %s", e.Timestamp.Format("15:04:05"), e.Level, e.Subsystem, e.Message)
	if e.Err != nil {
		line += ": " + e.Err.Error()
	}
	line = truncate(line, width)
	switch e.Level {
	case logging.LevelError:
		return errorStyle.Render(line)
	case logging.LevelWarn:
		return backoffStyle.Render(line)
	case logging.LevelDebug:
		return mutedStyle.Render(line)
	}
	return line
}

// truncate cuts plain text to width terminal cells.
func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// fitWidth clips an already styled line.
func fitWidth(s string, width int) string {
	return lipgloss.NewStyle().MaxWidth(width).Render(s)
}
