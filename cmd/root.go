package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"hifibridge/internal/api"
	"hifibridge/internal/cli"
)

// endpoint is the base URL of a running bridge used by the client commands.
var endpoint string

// outputFormat selects table, json or yaml output for client commands.
var outputFormat string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hifibridge",
	Short: "Bridge hi-fi audio sources into one zone model",
	Long: `hifibridge connects audio sources (streamers, amplifiers, simulated
players) to a single event bus and exposes their zones over HTTP, WebSocket,
MQTT and MCP.

Run 'hifibridge serve' to start the bridge; the zones and adapters commands
talk to a running bridge over its HTTP API.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. unreachable bridge, rejected commands)
	SilenceUsage: true,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "hifibridge version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

// newClient builds an API client for --endpoint.
func newClient() *api.Client {
	return api.NewClient(endpoint, nil)
}

// newPrinter builds a printer for --output writing to the command's stdout.
func newPrinter(cmd *cobra.Command) (*cli.Printer, error) {
	format, err := cli.ParseOutputFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return cli.NewPrinter(format, cmd.OutOrStdout()), nil
}

func defaultEndpoint() string {
	if v := os.Getenv("HIFI_ENDPOINT"); v != "" {
		return v
	}
	return api.DefaultBaseURL
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newZonesCmd())
	rootCmd.AddCommand(newAdaptersCmd())
	rootCmd.AddCommand(newBusCmd())

	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", defaultEndpoint(), "Base URL of a running bridge (env HIFI_ENDPOINT)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json or yaml")
}
