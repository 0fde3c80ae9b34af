package app

import (
	"context"
	"os/signal"
	"syscall"

	"hifibridge/internal/tui"
	"hifibridge/pkg/logging"
)

// runCLIMode starts the services and blocks until SIGINT, SIGTERM or ctx.
func runCLIMode(ctx context.Context, services *Services) error {
	logging.Info("CLI", "Running in no-TUI mode.")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := services.Start(ctx); err != nil {
		logging.Error("CLI", err, "Failed to start services")
		services.Stop("startup failed")
		return err
	}

	logging.Info("CLI", "Bridge running. Press Ctrl+C to stop.")
	<-ctx.Done()

	logging.Info("CLI", "Shutting down")
	report := services.Stop("signal")
	logShutdownReport(report)
	return nil
}

// runTUIMode switches logging to the dashboard and runs it until the user quits.
func runTUIMode(ctx context.Context, level logging.LogLevel, services *Services) error {
	logChan := logging.InitForTUI(level)
	defer logging.CloseTUIChannel()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM)
	defer stop()

	if err := services.Start(ctx); err != nil {
		logging.Error("TUI-Lifecycle", err, "Failed to start services")
		services.Stop("startup failed")
		return err
	}

	err := tui.Run(ctx, tui.Config{
		Zones:    services.Aggregator,
		Adapters: services.Coordinator,
		Commands: services.Router,
		Changes:  services.Changes,
		LogChan:  logChan,
	})
	// Back to stderr so the shutdown is visible after the alt screen closes.
	logging.CloseTUIChannel()
	if err != nil {
		logging.Error("TUI-Lifecycle", err, "Error running TUI program")
	}
	if dropped := logging.DroppedTUIEntries(); dropped > 0 {
		logging.Warn("TUI-Lifecycle", "Dashboard dropped %d log entries", dropped)
	}

	report := services.Stop("user quit")
	logShutdownReport(report)
	return err
}
