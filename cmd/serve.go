package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"hifibridge/internal/app"
)

// serveNoTUI runs the bridge headless, for services and containers.
var serveNoTUI bool

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveDemo adds the built-in simulated adapter.
var serveDemo bool

// serveConfigPath replaces the layered config lookup with a single file.
var serveConfigPath string

// serveEnvFile is loaded before HIFI_* overrides are applied.
var serveEnvFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the bridge with an interactive dashboard or headless.",
	Long: `Starts the event bus, the zone aggregator and every enabled adapter, and
serves the HTTP API plus any enabled MQTT, Redis and MCP integrations.

1. Dashboard mode (default):
   - Shows a live zone table, adapter status and the log stream.
   - space play/pause, n next, p previous, +/- volume, q quit.

2. Headless mode (--no-tui):
   - Logs to stdout and runs until SIGINT or SIGTERM.

Either way the bridge shuts adapters down with an acknowledged handshake
before exiting.

Configuration:
  Defaults are overlaid by ~/.config/hifibridge/config.yaml and then by
  .hifibridge/config.yaml in the current directory. --config uses a single
  file instead. HIFI_* environment variables (optionally from --env-file)
  override both.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := app.NewConfig(serveNoTUI, serveDebug, serveDemo, serveConfigPath)
	cfg.EnvFile = serveEnvFile
	cfg.Version = rootCmd.Version

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return application.Run(ctx)
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveNoTUI, "no-tui", false, "Disable the dashboard and run headless")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")
	serveCmd.Flags().BoolVar(&serveDemo, "demo", false, "Add a simulated two-zone adapter")
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to a config file (skips the layered lookup)")
	serveCmd.Flags().StringVar(&serveEnvFile, "env-file", ".env", "Dotenv file with HIFI_* overrides; missing files are ignored")
}
