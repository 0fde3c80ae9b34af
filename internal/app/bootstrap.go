package app

import (
	"context"
	"fmt"
	"os"

	"hifibridge/internal/config"
	"hifibridge/pkg/logging"
)

// Application is the main application structure that bootstraps and runs hifibridge
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads configuration and builds the services. Nothing is
// started until Run.
func NewApplication(cfg *Config) (*Application, error) {
	// Initialize logging for CLI output (will be replaced for TUI mode)
	logging.InitForCLI(logLevel(cfg, ""), os.Stdout)

	bridgeCfg, err := loadBridgeConfig(cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load configuration")
		return nil, err
	}
	cfg.Bridge = &bridgeCfg

	// Re-init now that the configured level is known.
	logging.InitForCLI(logLevel(cfg, bridgeCfg.LogLevel), os.Stdout)

	services, err := InitializeServices(bridgeCfg, cfg.Version)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

func loadBridgeConfig(cfg *Config) (config.Config, error) {
	if cfg.EnvFile != "" {
		if err := config.LoadDotEnv(cfg.EnvFile); err != nil {
			return config.Config{}, fmt.Errorf("failed to load %s: %w", cfg.EnvFile, err)
		}
	}

	var (
		bridgeCfg config.Config
		err       error
	)
	if cfg.ConfigPath != "" {
		bridgeCfg, err = config.LoadConfigFromPath(cfg.ConfigPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load configuration from path %s: %w", cfg.ConfigPath, err)
		}
		logging.Info("Bootstrap", "Loaded configuration from custom path: %s", cfg.ConfigPath)
	} else {
		bridgeCfg, err = config.LoadConfig()
		if err != nil {
			return config.Config{}, fmt.Errorf("failed to load configuration: %w", err)
		}
		logging.Debug("Bootstrap", "Loaded configuration using layered approach")
	}

	bridgeCfg = config.ApplyEnv(bridgeCfg, os.Getenv)
	if cfg.Demo {
		bridgeCfg = withDemoAdapter(bridgeCfg)
	}

	if err := bridgeCfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return bridgeCfg, nil
}

// withDemoAdapter appends the simulated demo adapter unless one with the same
// name is already configured.
func withDemoAdapter(cfg config.Config) config.Config {
	demo := config.DemoAdapter()
	for _, a := range cfg.Adapters {
		if a.Name == demo.Name {
			return cfg
		}
	}
	cfg.Adapters = append(append([]config.AdapterConfig(nil), cfg.Adapters...), demo)
	return cfg
}

// logLevel picks --debug first, then the configured level, then info.
func logLevel(cfg *Config, configured string) logging.LogLevel {
	if cfg.Debug {
		return logging.LevelDebug
	}
	if level, ok := logging.ParseLevel(configured); ok {
		return level
	}
	return logging.LevelInfo
}

// Services exposes the wired core, mostly for tests.
func (a *Application) Services() *Services {
	return a.services
}

// Run executes the application in the appropriate mode and shuts everything
// down when that mode returns.
func (a *Application) Run(ctx context.Context) error {
	if a.config.NoTUI {
		return a.runCLIMode(ctx)
	}
	return a.runTUIMode(ctx)
}

// runCLIMode runs the application in non-interactive CLI mode
func (a *Application) runCLIMode(ctx context.Context) error {
	return runCLIMode(ctx, a.services)
}

// runTUIMode runs the application in interactive TUI mode
func (a *Application) runTUIMode(ctx context.Context) error {
	return runTUIMode(ctx, logLevel(a.config, a.config.Bridge.LogLevel), a.services)
}
