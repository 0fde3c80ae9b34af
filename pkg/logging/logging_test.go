package logging

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   LogLevel
		wantOK bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{" warning ", LevelWarn, true},
		{"error", LevelError, true},
		{"", LevelInfo, true},
		{"chatty", LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.wantOK, ok, tt.in)
	}
}

func TestCLIMode_WritesSubsystemAndError(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelDebug, &buf)

	Error("Coordinator", errors.New("boom"), "adapter %s failed", "sim")

	out := buf.String()
	assert.Contains(t, out, "adapter sim failed")
	assert.Contains(t, out, "subsystem=Coordinator")
	assert.Contains(t, out, "error=boom")
}

func TestCLIMode_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelWarn, &buf)

	Info("Bus", "quiet")
	Warn("Bus", "loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), "loud")
}

func TestTUIMode_DeliversEntries(t *testing.T) {
	ch := InitForTUI(LevelInfo)
	defer CloseTUIChannel()

	Debug("TUI", "hidden")
	Info("TUI", "shown %d", 1)

	select {
	case entry := <-ch:
		assert.Equal(t, "shown 1", entry.Message)
		assert.Equal(t, LevelInfo, entry.Level)
		assert.Equal(t, "TUI", entry.Subsystem)
	default:
		require.Fail(t, "expected a log entry on the TUI channel")
	}
	assert.Len(t, ch, 0)
}

func TestTUIMode_DropsWhenFull(t *testing.T) {
	InitForTUI(LevelDebug)
	defer CloseTUIChannel()

	before := DroppedTUIEntries()
	for i := 0; i < tuiChannelBufferSize+5; i++ {
		Debug("TUI", "flood")
	}
	assert.Equal(t, int64(5), DroppedTUIEntries()-before)
}
