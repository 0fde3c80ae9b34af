package config

import (
	"time"

	"hifibridge/internal/adapters"
	"hifibridge/internal/bus"
	"hifibridge/internal/services/simulated"
)

// GetDefaultConfig returns the built-in configuration: no adapters, HTTP on
// :8088, every optional integration off.
func GetDefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Bus:      BusConfig{Capacity: bus.DefaultCapacity},
		Coordinator: CoordinatorConfig{
			ShutdownTimeout: 5 * time.Second,
			StopTimeout:     5 * time.Second,
			JoinTimeout:     time.Second,
		},
		HealthCheck: HealthCheckConfig{Interval: 30 * time.Second},
		Retry:       adapters.DefaultRetryConfig(),
		Adapters:    []AdapterConfig{},
		HTTP: HTTPConfig{
			Enabled: true,
			Listen:  ":8088",
		},
		MQTT: MQTTConfig{
			ClientID:        "hifibridge",
			TopicPrefix:     "hifibridge",
			DiscoveryPrefix: "homeassistant",
			QoS:             1,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  10 * time.Minute,
		},
		MCP: MCPConfig{
			Listen: ":8089",
		},
		Tracing: TracingConfig{SampleRatio: 1},
	}
}

// DemoAdapter is a two zone simulated source used by `serve --demo`.
func DemoAdapter() AdapterConfig {
	return AdapterConfig{
		Name:    "sim",
		Type:    AdapterTypeSimulated,
		Enabled: true,
		Simulated: &SimulatedConfig{
			Zones: []simulated.ZoneConfig{
				{ID: "living", Name: "Living Room", Volume: 35, Tracks: []simulated.Track{
					{Title: "So What", Artist: "Miles Davis", Album: "Kind of Blue", Duration: 545},
					{Title: "Freddie Freeloader", Artist: "Miles Davis", Album: "Kind of Blue", Duration: 589},
					{Title: "Blue in Green", Artist: "Miles Davis", Album: "Kind of Blue", Duration: 337},
				}},
				{ID: "study", Name: "Study", OutputID: "study-dac", Volume: 20, Tracks: []simulated.Track{
					{Title: "Take Five", Artist: "The Dave Brubeck Quartet", Album: "Time Out", Duration: 324},
					{Title: "Blue Rondo à la Turk", Artist: "The Dave Brubeck Quartet", Album: "Time Out", Duration: 404},
				}},
			},
		},
	}
}
