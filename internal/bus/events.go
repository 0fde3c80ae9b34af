package bus

import (
	"encoding/json"
	"time"

	"hifibridge/internal/zone"
)

// Kind identifies an event variant.
type Kind string

const (
	// Zone projection events
	KindZoneDiscovered      Kind = "zone.discovered"
	KindZoneUpdated         Kind = "zone.updated"
	KindZoneRemoved         Kind = "zone.removed"
	KindNowPlayingChanged   Kind = "zone.now_playing"
	KindSeekPositionChanged Kind = "zone.seek"
	KindVolumeChanged       Kind = "zone.volume"
	KindZonesFlushed        Kind = "zone.flushed"

	// Adapter lifecycle events
	KindAdapterStopping Kind = "adapter.stopping"
	KindAdapterStopped  Kind = "adapter.stopped"

	// System events
	KindShuttingDown   Kind = "system.shutting_down"
	KindHealthCheck    Kind = "system.health_check"
	KindControlCommand Kind = "control.command"
)

// Event is the closed set of messages carried by the bus. Every variant is a
// value type; a published event is never mutated afterwards.
type Event interface {
	Kind() Kind
	isEvent()
}

// ZoneDiscovered announces a new zone or replaces a known one.
type ZoneDiscovered struct {
	Zone zone.Zone `json:"zone"`
}

// ZoneUpdated carries a name/state change for a known zone.
type ZoneUpdated struct {
	ZoneID      string             `json:"zone_id"`
	DisplayName string             `json:"display_name"`
	State       zone.PlaybackState `json:"state"`
}

// ZoneRemoved drops a single zone.
type ZoneRemoved struct {
	ZoneID string `json:"zone_id"`
}

// NowPlayingChanged is the high frequency track metadata update.
type NowPlayingChanged struct {
	ZoneID   string `json:"zone_id"`
	Title    string `json:"title,omitempty"`
	Artist   string `json:"artist,omitempty"`
	Album    string `json:"album,omitempty"`
	ImageKey string `json:"image_key,omitempty"`
	// Duration in seconds. Zero when the source does not know it.
	Duration int64 `json:"duration,omitempty"`
}

// SeekPositionChanged is the per-second seek tick, position in seconds.
type SeekPositionChanged struct {
	ZoneID   string `json:"zone_id"`
	Position int64  `json:"position"`
}

// VolumeChanged is keyed by output, which may not be the zone ID.
type VolumeChanged struct {
	OutputID string  `json:"output_id"`
	Value    float64 `json:"value"`
	IsMuted  bool    `json:"is_muted"`
}

// AdapterStopping asks every projection to drop the adapter's zones.
type AdapterStopping struct {
	Adapter string `json:"adapter"`
	Reason  string `json:"reason,omitempty"`
}

// AdapterStopped is the lifecycle ACK, published exactly once per run loop.
type AdapterStopped struct {
	Adapter string `json:"adapter"`
}

// ZonesFlushed is the receipt for a prefix scoped flush.
type ZonesFlushed struct {
	Adapter string   `json:"adapter"`
	ZoneIDs []string `json:"zone_ids"`
}

// ShuttingDown starts process wide graceful shutdown.
type ShuttingDown struct {
	Reason string `json:"reason,omitempty"`
}

// HealthCheck is the periodic liveness heartbeat.
type HealthCheck struct {
	Timestamp time.Time `json:"timestamp"`
}

// ControlCommand records a command routed to an adapter.
type ControlCommand struct {
	RequestID string       `json:"request_id"`
	ZoneID    string       `json:"zone_id"`
	Command   zone.Command `json:"command"`
}

func (ZoneDiscovered) Kind() Kind      { return KindZoneDiscovered }
func (ZoneUpdated) Kind() Kind         { return KindZoneUpdated }
func (ZoneRemoved) Kind() Kind         { return KindZoneRemoved }
func (NowPlayingChanged) Kind() Kind   { return KindNowPlayingChanged }
func (SeekPositionChanged) Kind() Kind { return KindSeekPositionChanged }
func (VolumeChanged) Kind() Kind       { return KindVolumeChanged }
func (AdapterStopping) Kind() Kind     { return KindAdapterStopping }
func (AdapterStopped) Kind() Kind      { return KindAdapterStopped }
func (ZonesFlushed) Kind() Kind        { return KindZonesFlushed }
func (ShuttingDown) Kind() Kind        { return KindShuttingDown }
func (HealthCheck) Kind() Kind         { return KindHealthCheck }
func (ControlCommand) Kind() Kind      { return KindControlCommand }

func (ZoneDiscovered) isEvent()      {}
func (ZoneUpdated) isEvent()         {}
func (ZoneRemoved) isEvent()         {}
func (NowPlayingChanged) isEvent()   {}
func (SeekPositionChanged) isEvent() {}
func (VolumeChanged) isEvent()       {}
func (AdapterStopping) isEvent()     {}
func (AdapterStopped) isEvent()      {}
func (ZonesFlushed) isEvent()        {}
func (ShuttingDown) isEvent()        {}
func (HealthCheck) isEvent()         {}
func (ControlCommand) isEvent()      {}

// ZoneIDOf returns the zone an event is about, or "" for events that are not
// keyed by zone. VolumeChanged is keyed by output and also returns "".
func ZoneIDOf(ev Event) string {
	switch e := ev.(type) {
	case ZoneDiscovered:
		return e.Zone.ID
	case ZoneUpdated:
		return e.ZoneID
	case ZoneRemoved:
		return e.ZoneID
	case NowPlayingChanged:
		return e.ZoneID
	case SeekPositionChanged:
		return e.ZoneID
	case ControlCommand:
		return e.ZoneID
	default:
		return ""
	}
}

// Envelope is the JSON wire shape used by the WebSocket stream and logs.
type Envelope struct {
	Type    Kind  `json:"type"`
	Payload Event `json:"payload"`
}

// Encode renders ev as an Envelope.
func Encode(ev Event) ([]byte, error) {
	return json.Marshal(Envelope{Type: ev.Kind(), Payload: ev})
}
