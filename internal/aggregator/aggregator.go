// Package aggregator projects the bus event stream into the unified zone view.
//
// Zones and now-playing data live in two maps behind independent locks, so the
// per-second now-playing churn never contends with zone reads. Reads hydrate
// by merging both maps at call time; no denormalised copy is stored.
package aggregator

import (
	"sort"
	"strings"
	"sync"
	"time"

	"hifibridge/internal/bus"
	"hifibridge/internal/zone"
	"hifibridge/pkg/logging"
)

// Change describes zones affected by one applied event.
type Change struct {
	ZoneIDs []string
	Removed bool
}

// ChangeFunc is called after an event has been applied, outside any lock. It
// must not block.
type ChangeFunc func(Change)

// Aggregator is the authoritative zone projection.
type Aggregator struct {
	bus *bus.Bus

	zonesMu sync.RWMutex
	zones   map[string]zone.Zone

	npMu       sync.RWMutex
	nowPlaying map[string]zone.NowPlaying

	listenersMu sync.RWMutex
	listeners   []ChangeFunc

	// lifecycle, see event_handler.go
	mu      sync.Mutex
	running bool
	cancel  func()
	done    chan struct{}

	now func() time.Time
}

// New creates an empty aggregator. ZonesFlushed receipts are published on b.
func New(b *bus.Bus) *Aggregator {
	return &Aggregator{
		bus:        b,
		zones:      make(map[string]zone.Zone),
		nowPlaying: make(map[string]zone.NowPlaying),
		now:        time.Now,
	}
}

// OnChange registers fn to be told about every applied change.
func (a *Aggregator) OnChange(fn ChangeFunc) {
	a.listenersMu.Lock()
	a.listeners = append(a.listeners, fn)
	a.listenersMu.Unlock()
}

func (a *Aggregator) notify(c Change) {
	if len(c.ZoneIDs) == 0 {
		return
	}
	a.listenersMu.RLock()
	listeners := append([]ChangeFunc(nil), a.listeners...)
	a.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(c)
	}
}

// Apply folds one event into the projection. It reports false for ShuttingDown,
// which ends the event loop.
func (a *Aggregator) Apply(ev bus.Event) bool {
	switch e := ev.(type) {
	case bus.ZoneDiscovered:
		a.notify(a.discover(e.Zone))
	case bus.ZoneUpdated:
		a.notify(a.update(e))
	case bus.ZoneRemoved:
		a.notify(a.remove(e.ZoneID))
	case bus.NowPlayingChanged:
		a.notify(a.setNowPlaying(e))
	case bus.SeekPositionChanged:
		a.notify(a.seek(e))
	case bus.VolumeChanged:
		a.notify(a.volume(e))
	case bus.AdapterStopping:
		removed := a.flush(e.Adapter)
		a.bus.Publish(bus.ZonesFlushed{Adapter: e.Adapter, ZoneIDs: removed})
		logging.Info("Aggregator", "Flushed %d zone(s) of adapter %s", len(removed), e.Adapter)
		a.notify(Change{ZoneIDs: removed, Removed: true})
	case bus.ShuttingDown:
		return false
	}
	return true
}

func (a *Aggregator) discover(z zone.Zone) Change {
	prefix := zone.PrefixOf(z.ID)
	if prefix == "" {
		logging.Warn("Aggregator", "Ignoring discovered zone with malformed id %q", z.ID)
		return Change{}
	}
	if z.Source == "" {
		z.Source = prefix
	}
	if z.Source != prefix {
		logging.Warn("Aggregator", "Ignoring zone %s: id prefix does not match source %q", z.ID, z.Source)
		return Change{}
	}

	z = z.Clone()
	np := z.NowPlaying
	z.NowPlaying = nil
	if z.LastUpdated.IsZero() {
		z.LastUpdated = a.now()
	}

	a.zonesMu.Lock()
	a.zones[z.ID] = z
	a.zonesMu.Unlock()

	if np != nil {
		a.npMu.Lock()
		a.nowPlaying[z.ID] = *np
		a.npMu.Unlock()
	}

	logging.Debug("Aggregator", "Zone %s (%s) discovered", z.ID, z.Name)
	return Change{ZoneIDs: []string{z.ID}}
}

func (a *Aggregator) update(e bus.ZoneUpdated) Change {
	a.zonesMu.Lock()
	defer a.zonesMu.Unlock()

	z, ok := a.zones[e.ZoneID]
	if !ok {
		return Change{}
	}
	if e.DisplayName != "" {
		z.Name = e.DisplayName
	}
	if e.State != "" {
		z.State = e.State
	}
	z.LastUpdated = a.now()
	a.zones[e.ZoneID] = z
	return Change{ZoneIDs: []string{e.ZoneID}}
}

func (a *Aggregator) remove(zoneID string) Change {
	a.zonesMu.Lock()
	_, known := a.zones[zoneID]
	delete(a.zones, zoneID)
	a.zonesMu.Unlock()

	a.npMu.Lock()
	delete(a.nowPlaying, zoneID)
	a.npMu.Unlock()

	if !known {
		return Change{}
	}
	return Change{ZoneIDs: []string{zoneID}, Removed: true}
}

// setNowPlaying upserts track metadata. Seek position, duration and metadata
// survive only while the title stays the same; a duration carried by the event
// always wins.
func (a *Aggregator) setNowPlaying(e bus.NowPlayingChanged) Change {
	a.npMu.Lock()
	defer a.npMu.Unlock()

	next := zone.NowPlaying{Title: e.Title, Artist: e.Artist, Album: e.Album, ImageKey: e.ImageKey}
	if prev, ok := a.nowPlaying[e.ZoneID]; ok && prev.Title == e.Title {
		next.SeekPosition = prev.SeekPosition
		next.Duration = prev.Duration
		next.Metadata = prev.Metadata
	}
	if e.Duration > 0 {
		next.Duration = e.Duration
	}
	a.nowPlaying[e.ZoneID] = next
	return Change{ZoneIDs: []string{e.ZoneID}}
}

func (a *Aggregator) seek(e bus.SeekPositionChanged) Change {
	a.npMu.Lock()
	defer a.npMu.Unlock()

	np, ok := a.nowPlaying[e.ZoneID]
	if !ok {
		return Change{}
	}
	np.SeekPosition = e.Position
	a.nowPlaying[e.ZoneID] = np
	return Change{ZoneIDs: []string{e.ZoneID}}
}

// volume applies a VolumeChanged to the first zone whose volume control has the
// exact output ID. Only when no zone matches exactly does it fall back to a zone
// whose ID ends with the output ID.
func (a *Aggregator) volume(e bus.VolumeChanged) Change {
	if e.OutputID == "" {
		return Change{}
	}

	a.zonesMu.Lock()
	defer a.zonesMu.Unlock()

	target := ""
	for _, id := range sortedIDs(a.zones) {
		if v := a.zones[id].Volume; v != nil && v.OutputID == e.OutputID {
			target = id
			break
		}
	}
	if target == "" {
		for _, id := range sortedIDs(a.zones) {
			if a.zones[id].Volume != nil && strings.HasSuffix(id, e.OutputID) {
				target = id
				break
			}
		}
	}
	if target == "" {
		return Change{}
	}

	z := a.zones[target]
	v := *z.Volume
	v.Value = e.Value
	v.IsMuted = e.IsMuted
	z.Volume = &v
	z.LastUpdated = a.now()
	a.zones[target] = z
	return Change{ZoneIDs: []string{target}}
}

// flush removes every zone of adapter from both maps in one critical section
// and returns the removed IDs, sorted.
func (a *Aggregator) flush(adapter string) []string {
	a.zonesMu.Lock()
	a.npMu.Lock()

	seen := make(map[string]bool)
	for id := range a.zones {
		if zone.BelongsTo(id, adapter) {
			delete(a.zones, id)
			seen[id] = true
		}
	}
	for id := range a.nowPlaying {
		if zone.BelongsTo(id, adapter) {
			delete(a.nowPlaying, id)
			seen[id] = true
		}
	}

	a.npMu.Unlock()
	a.zonesMu.Unlock()

	removed := make([]string, 0, len(seen))
	for id := range seen {
		removed = append(removed, id)
	}
	sort.Strings(removed)
	return removed
}

// GetZone returns the hydrated zone.
func (a *Aggregator) GetZone(zoneID string) (zone.Zone, bool) {
	a.zonesMu.RLock()
	z, ok := a.zones[zoneID]
	a.zonesMu.RUnlock()
	if !ok {
		return zone.Zone{}, false
	}
	return a.hydrate(z.Clone()), true
}

// GetZones returns every zone, hydrated and sorted by ID.
func (a *Aggregator) GetZones() []zone.Zone {
	return a.collect(func(string) bool { return true })
}

// GetZonesByAdapter returns the zones owned by adapter.
func (a *Aggregator) GetZonesByAdapter(adapter string) []zone.Zone {
	return a.collect(func(id string) bool { return zone.BelongsTo(id, adapter) })
}

// ZoneCount returns the number of known zones.
func (a *Aggregator) ZoneCount() int {
	a.zonesMu.RLock()
	defer a.zonesMu.RUnlock()
	return len(a.zones)
}

func (a *Aggregator) collect(match func(id string) bool) []zone.Zone {
	a.zonesMu.RLock()
	out := make([]zone.Zone, 0, len(a.zones))
	for id, z := range a.zones {
		if match(id) {
			out = append(out, z.Clone())
		}
	}
	a.zonesMu.RUnlock()

	for i := range out {
		out[i] = a.hydrate(out[i])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (a *Aggregator) hydrate(z zone.Zone) zone.Zone {
	a.npMu.RLock()
	np, ok := a.nowPlaying[z.ID]
	a.npMu.RUnlock()
	if ok {
		z.NowPlaying = np.Clone()
	}
	return z
}

func sortedIDs(zones map[string]zone.Zone) []string {
	ids := make([]string, 0, len(zones))
	for id := range zones {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
