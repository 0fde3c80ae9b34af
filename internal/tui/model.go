package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"hifibridge/internal/aggregator"
	"hifibridge/internal/api"
	"hifibridge/internal/orchestrator"
	"hifibridge/internal/zone"
	"hifibridge/pkg/logging"
)

const (
	defaultRefreshInterval = time.Second
	maxLogLines            = 200
	volumeStep             = 5
)

// Config wires the dashboard to the running bridge.
type Config struct {
	Zones    api.ZoneReader
	Adapters api.AdapterController
	Commands api.CommandDispatcher
	// Changes is fed by the aggregator's OnChange hook. Without it the zone
	// table only refreshes on the tick.
	Changes *aggregator.ChangeQueue
	LogChan <-chan logging.LogEntry

	RefreshInterval time.Duration
}

// Model is the dashboard state.
type Model struct {
	cfg  Config
	keys KeyMap
	help help.Model

	table    table.Model
	zoneIDs  []string
	adapters []orchestrator.AdapterStatus

	logLines []logging.LogEntry
	showLog  bool

	status      string
	statusIsErr bool

	width    int
	height   int
	quitting bool
}

// NewModel creates the dashboard model and loads the initial state.
func NewModel(cfg Config) *Model {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshInterval
	}

	t := table.New(
		table.WithColumns(columnsFor(80)),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	t.SetStyles(tableStyles())

	m := &Model{
		cfg:     cfg,
		keys:    DefaultKeyMap(),
		help:    help.New(),
		table:   t,
		showLog: true,
	}
	m.refreshZones()
	m.refreshAdapters()
	return m
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		waitForChanges(m.cfg.Changes),
		waitForLog(m.cfg.LogChan),
		tick(m.cfg.RefreshInterval),
	)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case zonesChangedMsg:
		m.refreshZones()
		return m, waitForChanges(m.cfg.Changes)

	case tickMsg:
		m.refreshAdapters()
		if m.cfg.Changes == nil {
			m.refreshZones()
		}
		return m, tick(m.cfg.RefreshInterval)

	case logMsg:
		m.appendLog(logging.LogEntry(msg))
		return m, waitForLog(m.cfg.LogChan)

	case logClosedMsg:
		return m, nil

	case commandResultMsg:
		m.setCommandStatus(msg)
		return m, nil
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.ToggleLog):
		m.showLog = !m.showLog
		m.resize()
		return m, nil
	case key.Matches(msg, m.keys.PlayPause):
		return m, m.command(zone.Command{Action: zone.ActionPlayPause})
	case key.Matches(msg, m.keys.Next):
		return m, m.command(zone.Command{Action: zone.ActionNext})
	case key.Matches(msg, m.keys.Previous):
		return m, m.command(zone.Command{Action: zone.ActionPrevious})
	case key.Matches(msg, m.keys.VolumeUp):
		return m, m.command(zone.VolumeCommand(volumeStep, true))
	case key.Matches(msg, m.keys.VolumeDown):
		return m, m.command(zone.VolumeCommand(-volumeStep, true))
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// command targets the selected zone. With no zones it is a no-op.
func (m *Model) command(cmd zone.Command) tea.Cmd {
	zoneID := m.SelectedZone()
	if zoneID == "" || m.cfg.Commands == nil {
		return nil
	}
	m.status = fmt.Sprintf("%s: %s…", zoneID, cmd)
	m.statusIsErr = false
	return sendCommand(m.cfg.Commands, zoneID, cmd)
}

func (m *Model) setCommandStatus(msg commandResultMsg) {
	switch {
	case msg.err != nil:
		m.status = fmt.Sprintf("%s: %s failed: %v", msg.zoneID, msg.cmd, msg.err)
		m.statusIsErr = true
	case !msg.response.OK:
		m.status = fmt.Sprintf("%s: %s rejected: %s", msg.zoneID, msg.cmd, msg.response.Message)
		m.statusIsErr = true
	default:
		m.status = fmt.Sprintf("%s: %s", msg.zoneID, msg.cmd)
		m.statusIsErr = false
	}
}

// SelectedZone returns the zone ID under the cursor, or "".
func (m *Model) SelectedZone() string {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.zoneIDs) {
		return ""
	}
	return m.zoneIDs[i]
}

// refreshZones rebuilds the table rows, keeping the cursor on the same zone
// when it still exists.
func (m *Model) refreshZones() {
	if m.cfg.Zones == nil {
		return
	}
	selected := m.SelectedZone()
	zones := m.cfg.Zones.GetZones()

	rows := make([]table.Row, 0, len(zones))
	ids := make([]string, 0, len(zones))
	cursor := 0
	for i, z := range zones {
		rows = append(rows, zoneRow(z))
		ids = append(ids, z.ID)
		if z.ID == selected {
			cursor = i
		}
	}
	m.zoneIDs = ids
	m.table.SetRows(rows)
	if len(rows) > 0 {
		m.table.SetCursor(cursor)
	}
}

func (m *Model) refreshAdapters() {
	if m.cfg.Adapters == nil {
		return
	}
	m.adapters = m.cfg.Adapters.Status()
}

func (m *Model) appendLog(entry logging.LogEntry) {
	m.logLines = append(m.logLines, entry)
	if over := len(m.logLines) - maxLogLines; over > 0 {
		m.logLines = append(m.logLines[:0:0], m.logLines[over:]...)
	}
}

func (m *Model) resize() {
	if m.width > 0 {
		m.table.SetColumns(columnsFor(m.width - 4))
		m.table.SetWidth(m.width - 2)
	}
	if m.height > 0 {
		h := m.height - m.chromeHeight()
		if h < 3 {
			h = 3
		}
		m.table.SetHeight(h)
	}
}

// chromeHeight is the number of lines taken by everything except the table.
func (m *Model) chromeHeight() int {
	// title, adapters, status, help and two borders
	h := 6
	if m.showLog {
		h += m.logHeight() + 2
	}
	return h
}

func (m *Model) logHeight() int {
	if m.height <= 0 {
		return 5
	}
	h := m.height / 4
	if h < 3 {
		h = 3
	}
	return h
}
