package app

import (
	"hifibridge/internal/config"
)

// Config holds the application configuration
type Config struct {
	// UI mode
	NoTUI bool

	// Debug settings
	Debug bool

	// Demo adds the built-in simulated adapter.
	Demo bool

	// ConfigPath replaces the layered lookup with a single file.
	ConfigPath string

	// EnvFile is loaded before HIFI_* overrides are applied.
	EnvFile string

	Version string

	// Bridge is filled in by NewApplication.
	Bridge *config.Config
}

// NewConfig creates a new application configuration
func NewConfig(noTUI, debug, demo bool, configPath string) *Config {
	return &Config{
		NoTUI:      noTUI,
		Debug:      debug,
		Demo:       demo,
		ConfigPath: configPath,
		EnvFile:    ".env",
	}
}
