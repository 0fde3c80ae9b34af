package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"hifibridge/internal/aggregator"
	"hifibridge/internal/api"
	"hifibridge/internal/zone"
	"hifibridge/pkg/logging"
)

const commandTimeout = 5 * time.Second

// zonesChangedMsg is sent once per batch of aggregator changes.
type zonesChangedMsg struct{ ids []string }

// tickMsg drives the periodic refresh of adapter status.
type tickMsg time.Time

type logMsg logging.LogEntry

type logClosedMsg struct{}

type commandResultMsg struct {
	zoneID   string
	cmd      zone.Command
	response zone.CommandResponse
	err      error
}

func waitForChanges(q *aggregator.ChangeQueue) tea.Cmd {
	if q == nil {
		return nil
	}
	return func() tea.Msg {
		<-q.Ready()
		return zonesChangedMsg{ids: q.Drain()}
	}
}

func waitForLog(ch <-chan logging.LogEntry) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		entry, ok := <-ch
		if !ok {
			return logClosedMsg{}
		}
		return logMsg(entry)
	}
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func sendCommand(d api.CommandDispatcher, zoneID string, cmd zone.Command) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		resp, err := d.Dispatch(ctx, zoneID, cmd)
		return commandResultMsg{zoneID: zoneID, cmd: cmd, response: resp, err: err}
	}
}
