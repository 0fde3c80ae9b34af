package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConfigPaths points the user and project layers at files under tempDir.
func mockConfigPaths(t *testing.T, tempDir string) (userPath, projectPath string) {
	t.Helper()
	originalGetUserConfigPath := getUserConfigPath
	originalGetProjectConfigPath := getProjectConfigPath
	t.Cleanup(func() {
		getUserConfigPath = originalGetUserConfigPath
		getProjectConfigPath = originalGetProjectConfigPath
	})

	userPath = filepath.Join(tempDir, "user", configFileName)
	projectPath = filepath.Join(tempDir, "project", configFileName)
	getUserConfigPath = func() (string, error) { return userPath, nil }
	getProjectConfigPath = func() (string, error) { return projectPath, nil }
	return userPath, projectPath
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadConfig_DefaultOnly(t *testing.T) {
	mockConfigPaths(t, t.TempDir())

	loaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), loaded)
}

func TestLoadConfig_UserOverride(t *testing.T) {
	userPath, _ := mockConfigPaths(t, t.TempDir())
	writeFile(t, userPath, `
logLevel: debug
retry:
  initialDelay: 2s
adapters:
  - name: sim
    type: simulated
    enabled: true
`)

	loaded, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "debug", loaded.LogLevel)
	assert.Equal(t, 2*time.Second, loaded.Retry.InitialDelay)
	// Keys absent from the layer keep their defaults.
	assert.Equal(t, 60*time.Second, loaded.Retry.MaxDelay)
	assert.Equal(t, ":8088", loaded.HTTP.Listen)
	require.Len(t, loaded.Adapters, 1)
	assert.Equal(t, "sim", loaded.Adapters[0].Name)
}

func TestLoadConfig_ProjectOverridesUser(t *testing.T) {
	userPath, projectPath := mockConfigPaths(t, t.TempDir())
	writeFile(t, userPath, `
http:
  listen: ":9000"
adapters:
  - name: sim
    type: simulated
    enabled: true
  - name: den
    type: simulated
    enabled: true
`)
	writeFile(t, projectPath, `
http:
  listen: ":9100"
adapters:
  - name: den
    type: simulated
    enabled: false
  - name: attic
    type: simulated
    enabled: true
`)

	loaded, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9100", loaded.HTTP.Listen)
	require.Len(t, loaded.Adapters, 3)
	assert.Equal(t, "sim", loaded.Adapters[0].Name)
	assert.Equal(t, "den", loaded.Adapters[1].Name)
	assert.False(t, loaded.Adapters[1].Enabled, "project entry should replace user entry")
	assert.Equal(t, "attic", loaded.Adapters[2].Name)
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	userPath, _ := mockConfigPaths(t, t.TempDir())
	writeFile(t, userPath, "adapters: [\n")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, userPath)
}

func TestLoadConfig_PathErrorsAreSkipped(t *testing.T) {
	originalGetUserConfigPath := getUserConfigPath
	originalGetProjectConfigPath := getProjectConfigPath
	defer func() {
		getUserConfigPath = originalGetUserConfigPath
		getProjectConfigPath = originalGetProjectConfigPath
	}()
	getUserConfigPath = func() (string, error) { return "", errors.New("no home") }
	getProjectConfigPath = func() (string, error) { return "", errors.New("no cwd") }

	loaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), loaded)
}

func TestGetUserConfigPath_UsesHomeDir(t *testing.T) {
	tempDir := t.TempDir()
	originalOsUserHomeDir := osUserHomeDir
	defer func() { osUserHomeDir = originalOsUserHomeDir }()
	osUserHomeDir = func() (string, error) { return tempDir, nil }

	path, err := getUserConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tempDir, ".config", "hifibridge", "config.yaml"), path)

	dir, err := GetUserConfigDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tempDir, ".config", "hifibridge"), dir)
}

func TestGetProjectConfigPath_UsesWorkingDir(t *testing.T) {
	tempDir := t.TempDir()
	originalOsGetwd := osGetwd
	defer func() { osGetwd = originalOsGetwd }()
	osGetwd = func() (string, error) { return tempDir, nil }

	path, err := getProjectConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tempDir, ".hifibridge", "config.yaml"), path)
}

func TestLoadConfigFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	writeFile(t, path, `
adapters:
  - name: sim
    type: simulated
    enabled: true
    retry:
      maxDelay: 10s
    simulated:
      tickInterval: 500ms
      zones:
        - id: living
          name: Living Room
          volume: 30
          tracks:
            - title: So What
              duration: 545
`)

	loaded, err := LoadConfigFromPath(path)
	require.NoError(t, err)
	require.Len(t, loaded.Adapters, 1)

	a := loaded.Adapters[0]
	require.NotNil(t, a.Simulated)
	assert.Equal(t, 500*time.Millisecond, a.Simulated.TickInterval)
	require.Len(t, a.Simulated.Zones, 1)
	assert.Equal(t, "So What", a.Simulated.Zones[0].Tracks[0].Title)

	retry := a.EffectiveRetry(loaded.Retry)
	assert.Equal(t, 5*time.Second, retry.InitialDelay)
	assert.Equal(t, 10*time.Second, retry.MaxDelay)
	assert.Equal(t, 30*time.Second, retry.StableRunThreshold)

	_, err = LoadConfigFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"HIFI_LOG_LEVEL":     "DEBUG",
		"HIFI_MQTT_BROKER":   "tcp://broker:1883",
		"HIFI_REDIS_ADDR":    "redis:6379",
		"HIFI_OTLP_ENDPOINT": "http://collector:4318",
	}
	cfg := ApplyEnv(GetDefaultConfig(), func(k string) string { return env[k] })

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Tracing.Enabled)
	assert.False(t, cfg.MCP.Enabled)
	assert.Equal(t, ":8088", cfg.HTTP.Listen)
}

func TestLoadDotEnv(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), ".env")))

	path := filepath.Join(t.TempDir(), ".env")
	writeFile(t, path, "HIFI_TEST_DOTENV=loaded\n")
	t.Setenv("HIFI_TEST_DOTENV", "")
	require.NoError(t, os.Unsetenv("HIFI_TEST_DOTENV"))

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("HIFI_TEST_DOTENV"))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, GetDefaultConfig().Validate())

	withDemo := GetDefaultConfig()
	withDemo.Adapters = append(withDemo.Adapters, DemoAdapter())
	assert.NoError(t, withDemo.Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero capacity", func(c *Config) { c.Bus.Capacity = 0 }, "bus.capacity"},
		{"zero retry delay", func(c *Config) { c.Retry.StableRunThreshold = 0 }, "must be positive"},
		{"initial above max", func(c *Config) { c.Retry.InitialDelay = 2 * time.Minute }, "exceeds"},
		{"unnamed adapter", func(c *Config) { c.Adapters = []AdapterConfig{{Type: AdapterTypeSimulated}} }, "name is required"},
		{"colon in name", func(c *Config) { c.Adapters = []AdapterConfig{{Name: "a:b", Type: AdapterTypeSimulated}} }, "must not contain"},
		{"duplicate adapter", func(c *Config) {
			c.Adapters = []AdapterConfig{{Name: "sim", Type: AdapterTypeSimulated}, {Name: "sim", Type: AdapterTypeSimulated}}
		}, "duplicate"},
		{"unknown type", func(c *Config) { c.Adapters = []AdapterConfig{{Name: "x", Type: "roon"}} }, "unknown type"},
		{"mqtt without broker", func(c *Config) { c.MQTT.Enabled = true }, "mqtt.broker"},
		{"bad qos", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.Broker = "tcp://b:1883"; c.MQTT.QoS = 3 }, "mqtt.qos"},
		{"bad sample ratio", func(c *Config) { c.Tracing.SampleRatio = 1.5 }, "sampleRatio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}
