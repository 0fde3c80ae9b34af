package config

import (
	"time"

	"hifibridge/internal/adapters"
	"hifibridge/internal/services/simulated"
)

// Adapter types understood by the service factory.
const (
	AdapterTypeSimulated = "simulated"
)

// KnownAdapterTypes lists the values accepted in AdapterConfig.Type.
var KnownAdapterTypes = []string{AdapterTypeSimulated}

// Config is the top-level hifibridge configuration.
type Config struct {
	LogLevel    string               `yaml:"logLevel,omitempty"`
	Bus         BusConfig            `yaml:"bus"`
	Coordinator CoordinatorConfig    `yaml:"coordinator"`
	HealthCheck HealthCheckConfig    `yaml:"healthCheck"`
	Retry       adapters.RetryConfig `yaml:"retry"`
	Adapters    []AdapterConfig      `yaml:"adapters"`
	HTTP        HTTPConfig           `yaml:"http"`
	MQTT        MQTTConfig           `yaml:"mqtt"`
	Redis       RedisConfig          `yaml:"redis"`
	MCP         MCPConfig            `yaml:"mcp"`
	Tracing     TracingConfig        `yaml:"tracing"`
}

// BusConfig sizes the event bus ring.
type BusConfig struct {
	Capacity int `yaml:"capacity"`
}

// CoordinatorConfig holds the adapter supervision timeouts.
type CoordinatorConfig struct {
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	StopTimeout     time.Duration `yaml:"stopTimeout"`
	JoinTimeout     time.Duration `yaml:"joinTimeout"`
}

// HealthCheckConfig controls the HealthCheck heartbeat. Zero disables it.
type HealthCheckConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// AdapterConfig defines one audio source. Name doubles as the zone ID prefix.
type AdapterConfig struct {
	Name    string               `yaml:"name"`
	Type    string               `yaml:"type"`
	Enabled bool                 `yaml:"enabled"`
	Retry   adapters.RetryConfig `yaml:"retry,omitempty"`

	// Simulated holds the settings for Type "simulated".
	Simulated *SimulatedConfig `yaml:"simulated,omitempty"`
}

// EffectiveRetry fills unset retry fields from the global defaults.
func (a AdapterConfig) EffectiveRetry(global adapters.RetryConfig) adapters.RetryConfig {
	r := a.Retry
	if r.InitialDelay == 0 {
		r.InitialDelay = global.InitialDelay
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = global.MaxDelay
	}
	if r.StableRunThreshold == 0 {
		r.StableRunThreshold = global.StableRunThreshold
	}
	return r
}

// SimulatedConfig configures the in-process simulated source.
type SimulatedConfig struct {
	TickInterval time.Duration          `yaml:"tickInterval,omitempty"`
	FailAfter    time.Duration          `yaml:"failAfter,omitempty"`
	Zones        []simulated.ZoneConfig `yaml:"zones"`
}

// HTTPConfig configures the REST/WebSocket API.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// AllowedOrigins are browser origin host patterns, besides the bridge's own
	// host, that may open the event stream, e.g. "dashboard.local:*".
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// MQTTConfig configures the MQTT / Home Assistant bridge.
type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Broker          string `yaml:"broker"`
	ClientID        string `yaml:"clientId"`
	Username        string `yaml:"username,omitempty"`
	Password        string `yaml:"password,omitempty"`
	TopicPrefix     string `yaml:"topicPrefix"`
	HADiscovery     bool   `yaml:"haDiscovery"`
	DiscoveryPrefix string `yaml:"discoveryPrefix"`
	QoS             byte   `yaml:"qos"`
}

// RedisConfig configures the zone state mirror.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// MCPConfig configures the AI assistant tool server.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	BaseURL string `yaml:"baseUrl,omitempty"`
}

// TracingConfig configures OpenTelemetry.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty"`
	SampleRatio  float64 `yaml:"sampleRatio,omitempty"`
}
