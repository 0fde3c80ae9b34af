package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"hifibridge/pkg/logging"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/hifibridge"
	projectConfigDir = ".hifibridge"
	configFileName   = "config.yaml"
)

// LoadConfig layers the defaults, the user config and the project config.
// Missing files are skipped; unreadable or malformed ones are errors.
func LoadConfig() (Config, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		logging.Warn("Config", "Could not determine user config path: %v", err)
	} else if config, err = applyFileIfExists(config, userConfigPath); err != nil {
		return Config{}, err
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		logging.Warn("Config", "Could not determine project config path: %v", err)
	} else if config, err = applyFileIfExists(config, projectConfigPath); err != nil {
		return Config{}, err
	}

	return config, nil
}

// LoadConfigFromPath applies a single explicit file on top of the defaults.
func LoadConfigFromPath(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error reading config %s: %w", path, err)
	}
	config, err := applyLayer(GetDefaultConfig(), data)
	if err != nil {
		return Config{}, fmt.Errorf("error parsing config %s: %w", path, err)
	}
	return config, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

func applyFileIfExists(base Config, path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return base, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	merged, err := applyLayer(base, data)
	if err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	logging.Debug("Config", "Applied config layer %s", path)
	return merged, nil
}

// applyLayer decodes data over base. Scalars present in the layer override,
// absent ones keep the base value. Adapters are merged by name.
func applyLayer(base Config, data []byte) (Config, error) {
	merged := base
	merged.Adapters = nil
	if err := yaml.Unmarshal(data, &merged); err != nil {
		return Config{}, err
	}
	merged.Adapters = mergeAdapters(base.Adapters, merged.Adapters)
	return merged, nil
}

// mergeAdapters replaces base entries with overlay entries of the same name and
// appends new ones, keeping first-seen order.
func mergeAdapters(base, overlay []AdapterConfig) []AdapterConfig {
	out := make([]AdapterConfig, 0, len(base)+len(overlay))
	index := make(map[string]int, len(base))
	for _, a := range base {
		index[a.Name] = len(out)
		out = append(out, a)
	}
	for _, a := range overlay {
		if i, ok := index[a.Name]; ok {
			out[i] = a
			continue
		}
		index[a.Name] = len(out)
		out = append(out, a)
	}
	return out
}

// LoadDotEnv loads environment variables from path. Missing files are ignored.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overrides config from HIFI_* variables. Setting an integration's
// address also enables it.
func ApplyEnv(config Config, getenv func(string) string) Config {
	if v := getenv("HIFI_LOG_LEVEL"); v != "" {
		config.LogLevel = strings.ToLower(v)
	}
	if v := getenv("HIFI_HTTP_LISTEN"); v != "" {
		config.HTTP.Listen = v
		config.HTTP.Enabled = true
	}
	if v := getenv("HIFI_MQTT_BROKER"); v != "" {
		config.MQTT.Broker = v
		config.MQTT.Enabled = true
	}
	if v := getenv("HIFI_MQTT_USERNAME"); v != "" {
		config.MQTT.Username = v
	}
	if v := getenv("HIFI_MQTT_PASSWORD"); v != "" {
		config.MQTT.Password = v
	}
	if v := getenv("HIFI_REDIS_ADDR"); v != "" {
		config.Redis.Addr = v
		config.Redis.Enabled = true
	}
	if v := getenv("HIFI_REDIS_PASSWORD"); v != "" {
		config.Redis.Password = v
	}
	if v := getenv("HIFI_MCP_LISTEN"); v != "" {
		config.MCP.Listen = v
		config.MCP.Enabled = true
	}
	if v := getenv("HIFI_OTLP_ENDPOINT"); v != "" {
		config.Tracing.OTLPEndpoint = v
		config.Tracing.Enabled = true
	}
	return config
}

// GetUserConfigDir returns the user configuration directory path
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
