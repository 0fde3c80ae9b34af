// Package zone holds the unified playback model shared by every adapter: zones,
// their volume controls, what is currently playing, and the commands a zone accepts.
package zone

import (
	"fmt"
	"strings"
	"time"
)

// PlaybackState is the transport state of a zone.
type PlaybackState string

const (
	StateStopped PlaybackState = "stopped"
	StatePaused  PlaybackState = "paused"
	StatePlaying PlaybackState = "playing"
	StateLoading PlaybackState = "loading"
	StateUnknown PlaybackState = "unknown"
)

// ParseState maps adapter specific state names onto PlaybackState.
func ParseState(s string) PlaybackState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stopped", "stop", "idle":
		return StateStopped
	case "paused", "pause":
		return StatePaused
	case "playing", "play":
		return StatePlaying
	case "loading", "buffering":
		return StateLoading
	default:
		return StateUnknown
	}
}

// VolumeScale describes how Value relates to loudness.
type VolumeScale string

const (
	ScalePercentage VolumeScale = "percentage"
	ScaleDecibel    VolumeScale = "decibel"
	ScaleLinear     VolumeScale = "linear"
	ScaleUnknown    VolumeScale = "unknown"
)

// VolumeControl is the volume endpoint attached to a zone. OutputID correlates
// volume events from adapters whose output identifier differs from the zone ID.
type VolumeControl struct {
	Value    float64     `json:"value"`
	Min      float64     `json:"min"`
	Max      float64     `json:"max"`
	Step     float64     `json:"step"`
	IsMuted  bool        `json:"is_muted"`
	Scale    VolumeScale `json:"scale"`
	OutputID string      `json:"output_id,omitempty"`
}

// Clamp limits v to the control's range. A zero range means unbounded.
func (v VolumeControl) Clamp(value float64) float64 {
	if v.Max <= v.Min {
		return value
	}
	if value < v.Min {
		return v.Min
	}
	if value > v.Max {
		return v.Max
	}
	return value
}

// NowPlaying is the track currently loaded in a zone. Seek position and
// duration are in seconds.
type NowPlaying struct {
	Title        string            `json:"title,omitempty"`
	Artist       string            `json:"artist,omitempty"`
	Album        string            `json:"album,omitempty"`
	ImageKey     string            `json:"image_key,omitempty"`
	SeekPosition int64             `json:"seek_position"`
	Duration     int64             `json:"duration,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy.
func (n *NowPlaying) Clone() *NowPlaying {
	if n == nil {
		return nil
	}
	c := *n
	if n.Metadata != nil {
		c.Metadata = make(map[string]string, len(n.Metadata))
		for k, v := range n.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Zone is a controllable playback surface owned by exactly one adapter.
type Zone struct {
	ID                string         `json:"zone_id"`
	Name              string         `json:"zone_name"`
	State             PlaybackState  `json:"state"`
	Volume            *VolumeControl `json:"volume_control,omitempty"`
	NowPlaying        *NowPlaying    `json:"now_playing,omitempty"`
	Source            string         `json:"source"`
	IsPlayAllowed     bool           `json:"is_play_allowed"`
	IsPauseAllowed    bool           `json:"is_pause_allowed"`
	IsNextAllowed     bool           `json:"is_next_allowed"`
	IsPreviousAllowed bool           `json:"is_previous_allowed"`
	LastUpdated       time.Time      `json:"last_updated"`
}

// Clone returns a deep copy so callers can never mutate shared state.
func (z Zone) Clone() Zone {
	c := z
	if z.Volume != nil {
		v := *z.Volume
		c.Volume = &v
	}
	c.NowPlaying = z.NowPlaying.Clone()
	return c
}

// ID builds a namespaced zone identifier.
func ID(prefix, localID string) string {
	return prefix + ":" + localID
}

// SplitID returns the adapter prefix and the adapter local part of a zone ID.
func SplitID(zoneID string) (prefix, localID string, err error) {
	prefix, localID, ok := strings.Cut(zoneID, ":")
	if !ok || prefix == "" || localID == "" {
		return "", "", fmt.Errorf("zone id %q is not of the form prefix:local", zoneID)
	}
	return prefix, localID, nil
}

// PrefixOf returns the adapter prefix of zoneID or "" when it has none.
func PrefixOf(zoneID string) string {
	prefix, _, err := SplitID(zoneID)
	if err != nil {
		return ""
	}
	return prefix
}

// BelongsTo reports whether zoneID is namespaced under adapter.
func BelongsTo(zoneID, adapter string) bool {
	return strings.HasPrefix(zoneID, adapter+":")
}
