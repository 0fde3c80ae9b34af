package adapters

import (
	"context"
	"time"

	"hifibridge/internal/bus"
	"hifibridge/internal/zone"
)

// Logic is the protocol specific part of an adapter.
type Logic interface {
	// Prefix namespaces the adapter's zone IDs and doubles as its registry name.
	Prefix() string

	// Run connects to the audio source and publishes zone events until ctx is
	// cancelled or the connection fails. Returning nil means a clean stop.
	Run(ctx context.Context, b *bus.Bus) error

	// HandleCommand executes cmd against one of the adapter's zones.
	HandleCommand(ctx context.Context, zoneID string, cmd zone.Command) (zone.CommandResponse, error)
}

// Initializer is an optional interface for adapters that need setup before each run
// attempt (resolving a host, loading a token). A failure is retried like a run failure.
type Initializer interface {
	Init(ctx context.Context) error
}

// Startable is what the coordinator drives.
type Startable interface {
	Name() string

	// CanStart reports whether the adapter is configured well enough to be started.
	CanStart() bool

	// Start blocks for the adapter's lifetime.
	Start(ctx context.Context) error

	// Stop asks a running Start to return.
	Stop()
}

// State is the coarse lifecycle state of a Handle.
type State string

const (
	StateIdle     State = "Idle"
	StateStarting State = "Starting"
	StateRunning  State = "Running"
	StateBackoff  State = "Backoff"
	StateStopped  State = "Stopped"
)

// RetryConfig controls the backoff of a Handle.
type RetryConfig struct {
	InitialDelay       time.Duration `yaml:"initialDelay" json:"initial_delay"`
	MaxDelay           time.Duration `yaml:"maxDelay" json:"max_delay"`
	StableRunThreshold time.Duration `yaml:"stableRunThreshold" json:"stable_run_threshold"`
}

// DefaultRetryConfig returns 5s initial, 60s max, 30s stable run threshold.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialDelay:       5 * time.Second,
		MaxDelay:           60 * time.Second,
		StableRunThreshold: 30 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultRetryConfig.
func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.StableRunThreshold <= 0 {
		c.StableRunThreshold = d.StableRunThreshold
	}
	return c
}
