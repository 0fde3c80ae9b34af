// Package simulated is an in-process audio source. Its zones play through
// configured playlists, tick their seek position and obey commands, which makes
// it usable for demos, dashboards and end to end tests without real hardware.
package simulated

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hifibridge/internal/bus"
	"hifibridge/internal/zone"
	"hifibridge/pkg/logging"
)

// ErrNotRunning is returned by HandleCommand while the adapter is not running.
var ErrNotRunning = errors.New("simulated adapter is not running")

// Track is one playlist entry. Duration is in seconds.
type Track struct {
	Title    string `yaml:"title"`
	Artist   string `yaml:"artist"`
	Album    string `yaml:"album"`
	Duration int64  `yaml:"duration"`
}

// ZoneConfig describes one simulated zone.
type ZoneConfig struct {
	ID       string  `yaml:"id"`
	Name     string  `yaml:"name"`
	OutputID string  `yaml:"outputId,omitempty"`
	Volume   float64 `yaml:"volume"`
	Tracks   []Track `yaml:"tracks"`
}

// Config configures the adapter.
type Config struct {
	Prefix string
	Zones  []ZoneConfig
	// TickInterval is the seek tick period. Defaults to one second.
	TickInterval time.Duration
	// FailAfter makes every run fail after the given duration. Zero disables it.
	FailAfter time.Duration
}

var defaultTrack = Track{Title: "Test Tone", Artist: "hifibridge", Album: "Calibration", Duration: 180}

type simZone struct {
	cfg      ZoneConfig
	state    zone.PlaybackState
	volume   float64
	muted    bool
	track    int
	position int64
}

func (z *simZone) current() Track {
	if len(z.cfg.Tracks) == 0 {
		return defaultTrack
	}
	return z.cfg.Tracks[z.track%len(z.cfg.Tracks)]
}

// Adapter implements adapters.Logic and adapters.Initializer.
type Adapter struct {
	cfg Config

	mu    sync.Mutex
	zones map[string]*simZone
	order []string
	bus   *bus.Bus
	// run identifies the latest Run; an older run draining after a restart
	// must not detach the newer one from the bus.
	run uint64
}

// New creates an adapter from cfg.
func New(cfg Config) *Adapter {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &Adapter{cfg: cfg, zones: make(map[string]*simZone)}
}

func (a *Adapter) Prefix() string { return a.cfg.Prefix }

// Configured reports whether there is anything to simulate.
func (a *Adapter) Configured() bool {
	return a.cfg.Prefix != "" && len(a.cfg.Zones) > 0
}

// Init resets every zone to its configured state.
func (a *Adapter) Init(ctx context.Context) error {
	if !a.Configured() {
		return fmt.Errorf("simulated adapter %q has no zones", a.cfg.Prefix)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.zones = make(map[string]*simZone, len(a.cfg.Zones))
	a.order = a.order[:0]
	for _, zc := range a.cfg.Zones {
		id := zone.ID(a.cfg.Prefix, zc.ID)
		a.zones[id] = &simZone{cfg: zc, state: zone.StateStopped, volume: zc.Volume}
		a.order = append(a.order, id)
	}
	return nil
}

// Run announces the zones and ticks playing zones until ctx is done.
func (a *Adapter) Run(ctx context.Context, b *bus.Bus) error {
	a.mu.Lock()
	a.bus = b
	a.run++
	run := a.run
	discovered := make([]bus.Event, 0, len(a.order))
	for _, id := range a.order {
		discovered = append(discovered, bus.ZoneDiscovered{Zone: a.snapshot(id)})
	}
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		if a.run == run {
			a.bus = nil
		}
		a.mu.Unlock()
	}()

	for _, ev := range discovered {
		b.Publish(ev)
	}
	logging.Info("Simulated", "Adapter %s announced %d zone(s)", a.cfg.Prefix, len(discovered))

	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()

	var failC <-chan time.Time
	if a.cfg.FailAfter > 0 {
		failTimer := time.NewTimer(a.cfg.FailAfter)
		defer failTimer.Stop()
		failC = failTimer.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-failC:
			return fmt.Errorf("simulated connection loss after %s", a.cfg.FailAfter)
		case <-ticker.C:
			for _, ev := range a.tick() {
				b.Publish(ev)
			}
		}
	}
}

// tick advances every playing zone by one second.
func (a *Adapter) tick() []bus.Event {
	a.mu.Lock()
	defer a.mu.Unlock()

	var events []bus.Event
	for _, id := range a.order {
		z := a.zones[id]
		if z.state != zone.StatePlaying {
			continue
		}
		z.position++
		if z.position >= z.current().Duration {
			z.track++
			z.position = 0
			events = append(events, a.nowPlayingEvent(id, z))
		}
		events = append(events, bus.SeekPositionChanged{ZoneID: id, Position: z.position})
	}
	return events
}

// HandleCommand applies cmd to a zone and publishes the resulting events.
func (a *Adapter) HandleCommand(ctx context.Context, zoneID string, cmd zone.Command) (zone.CommandResponse, error) {
	if err := cmd.Validate(); err != nil {
		return zone.CommandResponse{}, err
	}

	a.mu.Lock()
	b := a.bus
	z, ok := a.zones[zoneID]
	if b == nil || !ok {
		a.mu.Unlock()
		if b == nil {
			return zone.CommandResponse{}, ErrNotRunning
		}
		return zone.CommandResponse{OK: false, Message: "unknown zone " + zoneID}, nil
	}
	events := a.apply(zoneID, z, cmd)
	a.mu.Unlock()

	for _, ev := range events {
		b.Publish(ev)
	}
	logging.Debug("Simulated", "%s handled %s", zoneID, cmd)
	return zone.CommandResponse{OK: true, Message: cmd.String()}, nil
}

func (a *Adapter) apply(id string, z *simZone, cmd zone.Command) []bus.Event {
	switch cmd.Action {
	case zone.ActionPlay:
		z.state = zone.StatePlaying
	case zone.ActionPause:
		z.state = zone.StatePaused
	case zone.ActionPlayPause:
		if z.state == zone.StatePlaying {
			z.state = zone.StatePaused
		} else {
			z.state = zone.StatePlaying
		}
	case zone.ActionStop:
		z.state = zone.StateStopped
		z.position = 0
	case zone.ActionNext, zone.ActionPrevious:
		if cmd.Action == zone.ActionNext {
			z.track++
		} else if z.track > 0 {
			z.track--
		}
		z.position = 0
		return []bus.Event{
			a.nowPlayingEvent(id, z),
			bus.SeekPositionChanged{ZoneID: id, Position: 0},
		}
	case zone.ActionVolume:
		v := *cmd.Value
		if cmd.Relative {
			v += z.volume
		}
		z.volume = volumeControl(z).Clamp(v)
		return []bus.Event{a.volumeEvent(id, z)}
	case zone.ActionMute, zone.ActionUnmute:
		z.muted = cmd.Action == zone.ActionMute
		return []bus.Event{a.volumeEvent(id, z)}
	}
	return []bus.Event{bus.ZoneUpdated{ZoneID: id, DisplayName: z.cfg.Name, State: z.state}}
}

func (a *Adapter) nowPlayingEvent(id string, z *simZone) bus.Event {
	t := z.current()
	return bus.NowPlayingChanged{ZoneID: id, Title: t.Title, Artist: t.Artist, Album: t.Album, Duration: t.Duration}
}

func (a *Adapter) volumeEvent(id string, z *simZone) bus.Event {
	out := z.cfg.OutputID
	if out == "" {
		out = id
	}
	return bus.VolumeChanged{OutputID: out, Value: z.volume, IsMuted: z.muted}
}

func volumeControl(z *simZone) zone.VolumeControl {
	return zone.VolumeControl{
		Value:    z.volume,
		Min:      0,
		Max:      100,
		Step:     1,
		IsMuted:  z.muted,
		Scale:    zone.ScalePercentage,
		OutputID: z.cfg.OutputID,
	}
}

// snapshot renders the zone model. Callers hold a.mu.
func (a *Adapter) snapshot(id string) zone.Zone {
	z := a.zones[id]
	t := z.current()
	vc := volumeControl(z)
	name := z.cfg.Name
	if name == "" {
		name = z.cfg.ID
	}
	return zone.Zone{
		ID:                id,
		Name:              name,
		State:             z.state,
		Volume:            &vc,
		NowPlaying:        &zone.NowPlaying{Title: t.Title, Artist: t.Artist, Album: t.Album, SeekPosition: z.position, Duration: t.Duration},
		Source:            a.cfg.Prefix,
		IsPlayAllowed:     true,
		IsPauseAllowed:    true,
		IsNextAllowed:     len(z.cfg.Tracks) > 1,
		IsPreviousAllowed: len(z.cfg.Tracks) > 1,
		LastUpdated:       time.Now(),
	}
}
