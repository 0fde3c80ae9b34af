package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"hifibridge/internal/aggregator"
	"hifibridge/internal/zone"
	"hifibridge/pkg/logging"
)

const writeTimeout = 2 * time.Second

// ZoneSource is the aggregator surface the mirror reads.
type ZoneSource interface {
	GetZone(zoneID string) (zone.Zone, bool)
	GetZones() []zone.Zone
	OnChange(fn aggregator.ChangeFunc)
}

// Mirror keeps a Cache in step with the aggregator.
type Mirror struct {
	cache Cache
	zones ZoneSource
	queue *aggregator.ChangeQueue

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMirror creates a mirror and registers it for zone changes.
func NewMirror(cache Cache, zones ZoneSource) *Mirror {
	m := &Mirror{cache: cache, zones: zones, queue: aggregator.NewChangeQueue()}
	zones.OnChange(m.queue.Push)
	return m
}

// Start removes stale keys left by a previous run, writes every current zone
// and then follows changes until Stop or ctx is cancelled.
func (m *Mirror) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	current := m.zones.GetZones()
	ids := make([]string, 0, len(current))
	for _, z := range current {
		ids = append(ids, z.ID)
	}
	m.queue.Add(ids...)

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	go m.run(loopCtx, ids, m.done)
	logging.Info("Redis", "Zone mirror started")
	return nil
}

// Stop ends the mirror loop and waits for it.
func (m *Mirror) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// IsRunning reports whether the loop is active.
func (m *Mirror) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Mirror) run(ctx context.Context, keep []string, done chan struct{}) {
	defer func() {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		close(done)
	}()

	pruneCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	removed, err := m.cache.RemoveAllExcept(pruneCtx, keep)
	cancel()
	if err != nil {
		logging.Warn("Redis", "Failed to prune stale zones: %v", err)
	} else if len(removed) > 0 {
		logging.Info("Redis", "Pruned %d stale zone(s)", len(removed))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.queue.Ready():
			for _, id := range m.queue.Drain() {
				m.sync(ctx, id)
			}
		}
	}
}

// sync writes or deletes one zone.
func (m *Mirror) sync(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	z, ok := m.zones.GetZone(id)
	if !ok {
		if err := m.cache.Delete(ctx, id); err != nil {
			logging.Warn("Redis", "Failed to delete zone %s: %v", id, err)
		}
		return
	}
	data, err := json.Marshal(z)
	if err != nil {
		logging.Error("Redis", err, "Failed to encode zone %s", id)
		return
	}
	if err := m.cache.Set(ctx, id, data); err != nil {
		logging.Warn("Redis", "Failed to write zone %s: %v", id, err)
	}
}
