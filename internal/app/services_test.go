package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hifibridge/internal/api"
	"hifibridge/internal/config"
	"hifibridge/internal/zone"
	"hifibridge/pkg/logging"
)

func testBridgeConfig() config.Config {
	cfg := config.GetDefaultConfig()
	cfg.HTTP.Listen = "127.0.0.1:0"
	cfg.HealthCheck.Interval = 10 * time.Millisecond
	cfg.Coordinator.ShutdownTimeout = time.Second
	demo := config.DemoAdapter()
	demo.Simulated.TickInterval = 5 * time.Millisecond
	cfg.Adapters = []config.AdapterConfig{demo}
	return cfg
}

func TestServices_StartServeStop(t *testing.T) {
	s, err := InitializeServices(testBridgeConfig(), "test")
	require.NoError(t, err)
	require.Len(t, s.Adapters, 1)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool { return s.Aggregator.ZoneCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	addr := s.HTTPAddr()
	require.NotNil(t, addr)
	client := api.NewClient("http://"+addr.String(), nil)

	zones, err := client.Zones(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, "sim:living", zones[0].ID)

	resp, err := client.Command(context.Background(), "sim:living", api.CommandRequest{Action: "play"})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	require.Eventually(t, func() bool {
		z, ok := s.Aggregator.GetZone("sim:living")
		return ok && z.State == zone.StatePlaying
	}, 2*time.Second, 5*time.Millisecond)

	report := s.Stop("test")
	assert.Equal(t, []string{"sim"}, report.Acked)
	assert.Empty(t, report.Missing)
	assert.False(t, s.Aggregator.IsRunning())
}

func TestServices_StartTwice(t *testing.T) {
	cfg := testBridgeConfig()
	cfg.HTTP.Enabled = false
	s, err := InitializeServices(cfg, "test")
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop("test")
	assert.Error(t, s.Start(context.Background()))
	assert.Nil(t, s.HTTPAddr())
}

func TestServices_StopWithoutStart(t *testing.T) {
	s, err := InitializeServices(testBridgeConfig(), "test")
	require.NoError(t, err)

	report := s.Stop("never started")
	assert.Empty(t, report.Acked)
}

func TestInitializeServices_UnsupportedAdapter(t *testing.T) {
	cfg := testBridgeConfig()
	cfg.Adapters = append(cfg.Adapters, config.AdapterConfig{Name: "roon", Type: "roon", Enabled: true})

	_, err := InitializeServices(cfg, "test")
	assert.ErrorContains(t, err, "unsupported type")
}

func TestInitializeServices_AgentOnlyWhenEnabled(t *testing.T) {
	cfg := testBridgeConfig()
	s, err := InitializeServices(cfg, "test")
	require.NoError(t, err)
	assert.Nil(t, s.Agent)

	cfg.MCP.Enabled = true
	s, err = InitializeServices(cfg, "test")
	require.NoError(t, err)
	assert.NotNil(t, s.Agent)
}

func TestRunCLIMode_StopsOnContext(t *testing.T) {
	cfg := testBridgeConfig()
	cfg.HTTP.Enabled = false
	s, err := InitializeServices(cfg, "test")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runCLIMode(ctx, s) }()

	require.Eventually(t, func() bool { return s.Aggregator.ZoneCount() == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("CLI mode did not return")
	}
	assert.False(t, s.Coordinator.IsRunning("sim"))
}

func TestNewApplication_FromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logLevel: warn\nhttp:\n  enabled: false\n"), 0o644))

	cfg := NewConfig(true, false, true, path)
	cfg.EnvFile = ""
	application, err := NewApplication(cfg)
	require.NoError(t, err)

	require.NotNil(t, cfg.Bridge)
	assert.Equal(t, "warn", cfg.Bridge.LogLevel)
	assert.False(t, cfg.Bridge.HTTP.Enabled)
	require.Len(t, application.Services().Adapters, 1)
	assert.Equal(t, "sim", application.Services().Adapters[0].Config.Name)
}

func TestNewApplication_Errors(t *testing.T) {
	dir := t.TempDir()

	cfg := NewConfig(true, false, false, filepath.Join(dir, "missing.yaml"))
	cfg.EnvFile = ""
	_, err := NewApplication(cfg)
	assert.Error(t, err)

	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bus:\n  capacity: 0\n"), 0o644))
	cfg = NewConfig(true, false, false, path)
	cfg.EnvFile = ""
	_, err = NewApplication(cfg)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestWithDemoAdapter(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg = withDemoAdapter(cfg)
	require.Len(t, cfg.Adapters, 1)

	cfg = withDemoAdapter(cfg)
	assert.Len(t, cfg.Adapters, 1)
}

func TestLogLevel(t *testing.T) {
	tests := []struct {
		name       string
		debug      bool
		configured string
		want       logging.LogLevel
	}{
		{"debug flag wins", true, "error", logging.LevelDebug},
		{"configured", false, "warn", logging.LevelWarn},
		{"unknown falls back", false, "loud", logging.LevelInfo},
		{"empty", false, "", logging.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logLevel(&Config{Debug: tt.debug}, tt.configured))
		})
	}
}
