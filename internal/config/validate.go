package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate reports every problem in c at once.
func (c Config) Validate() error {
	var errs []error

	if c.Bus.Capacity <= 0 {
		errs = append(errs, fmt.Errorf("bus.capacity must be positive, got %d", c.Bus.Capacity))
	}
	if c.Retry.InitialDelay <= 0 || c.Retry.MaxDelay <= 0 || c.Retry.StableRunThreshold <= 0 {
		errs = append(errs, errors.New("retry delays must be positive"))
	}
	if c.Retry.MaxDelay > 0 && c.Retry.InitialDelay > c.Retry.MaxDelay {
		errs = append(errs, fmt.Errorf("retry.initialDelay %s exceeds retry.maxDelay %s", c.Retry.InitialDelay, c.Retry.MaxDelay))
	}

	seen := make(map[string]bool, len(c.Adapters))
	for i, a := range c.Adapters {
		switch {
		case a.Name == "":
			errs = append(errs, fmt.Errorf("adapters[%d]: name is required", i))
		case strings.Contains(a.Name, ":"):
			errs = append(errs, fmt.Errorf("adapter %q: name must not contain ':'", a.Name))
		case seen[a.Name]:
			errs = append(errs, fmt.Errorf("adapter %q: duplicate name", a.Name))
		}
		seen[a.Name] = true

		if a.Retry.InitialDelay < 0 || a.Retry.MaxDelay < 0 || a.Retry.StableRunThreshold < 0 {
			errs = append(errs, fmt.Errorf("adapter %q: retry delays must not be negative", a.Name))
		}
		if r := a.EffectiveRetry(c.Retry); r.MaxDelay > 0 && r.InitialDelay > r.MaxDelay {
			errs = append(errs, fmt.Errorf("adapter %q: retry.initialDelay exceeds retry.maxDelay", a.Name))
		}
		if !slices.Contains(KnownAdapterTypes, a.Type) {
			errs = append(errs, fmt.Errorf("adapter %q: unknown type %q", a.Name, a.Type))
		}
	}

	if c.HTTP.Enabled && c.HTTP.Listen == "" {
		errs = append(errs, errors.New("http.listen is required when http is enabled"))
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
		}
		if c.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
		}
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is enabled"))
	}
	if c.MCP.Enabled && c.MCP.Listen == "" {
		errs = append(errs, errors.New("mcp.listen is required when mcp is enabled"))
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sampleRatio must be within [0,1], got %v", c.Tracing.SampleRatio))
	}

	return errors.Join(errs...)
}
