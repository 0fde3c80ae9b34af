// Package mqttbridge mirrors the zone view onto MQTT and accepts commands from
// it. Zone snapshots are retained so late subscribers such as Home Assistant
// see current state immediately.
package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"hifibridge/internal/aggregator"
	"hifibridge/internal/bus"
	"hifibridge/internal/zone"
	"hifibridge/pkg/logging"
)

const commandTimeout = 10 * time.Second

// ZoneSource is the aggregator surface the bridge reads.
type ZoneSource interface {
	GetZone(zoneID string) (zone.Zone, bool)
	GetZones() []zone.Zone
	OnChange(fn aggregator.ChangeFunc)
}

// CommandDispatcher routes zone commands to their adapter.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, zoneID string, cmd zone.Command) (zone.CommandResponse, error)
}

// Options configures topics and delivery.
type Options struct {
	TopicPrefix     string
	DiscoveryPrefix string
	HADiscovery     bool
	QoS             byte
}

// Bridge publishes zone state and forwards commands.
type Bridge struct {
	client   ClientAPI
	bus      *bus.Bus
	zones    ZoneSource
	commands CommandDispatcher
	opts     Options
	queue    *aggregator.ChangeQueue

	// announced is only touched by the publish loop.
	announced map[string]bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a bridge and registers it for zone changes.
func New(client ClientAPI, b *bus.Bus, zones ZoneSource, commands CommandDispatcher, opts Options) *Bridge {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "hifibridge"
	}
	if opts.DiscoveryPrefix == "" {
		opts.DiscoveryPrefix = "homeassistant"
	}
	br := &Bridge{
		client:    client,
		bus:       b,
		zones:     zones,
		commands:  commands,
		opts:      opts,
		queue:     aggregator.NewChangeQueue(),
		announced: make(map[string]bool),
	}
	zones.OnChange(br.queue.Push)
	return br
}

// Start announces the bridge, subscribes to commands and begins mirroring.
func (br *Bridge) Start(ctx context.Context) error {
	br.mu.Lock()
	defer br.mu.Unlock()
	if br.running {
		return nil
	}

	prefix := br.opts.TopicPrefix
	if err := br.client.Publish(StatusTopic(prefix), br.opts.QoS, true, []byte(StatusOnline)); err != nil {
		return fmt.Errorf("failed to publish bridge status: %w", err)
	}
	if err := br.client.Subscribe(CommandTopic(prefix, "+"), br.opts.QoS, br.handleCommand); err != nil {
		return fmt.Errorf("failed to subscribe to commands: %w", err)
	}

	sub := br.bus.Subscribe()
	loopCtx, cancel := context.WithCancel(ctx)
	br.cancel = cancel
	br.done = make(chan struct{})
	br.running = true

	br.resync()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		br.watchBus(loopCtx, sub, cancel)
	}()
	go func() {
		defer wg.Done()
		br.publishLoop(loopCtx)
	}()
	go func(done chan struct{}) {
		wg.Wait()
		sub.Close()
		br.mu.Lock()
		br.running = false
		br.mu.Unlock()
		close(done)
	}(br.done)

	logging.Info("MQTT", "Bridge started with topic prefix %s", prefix)
	return nil
}

// Stop ends mirroring and waits for the loops to exit.
func (br *Bridge) Stop() {
	br.mu.Lock()
	cancel, done := br.cancel, br.done
	br.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// IsRunning reports whether the loops are active.
func (br *Bridge) IsRunning() bool {
	br.mu.Lock()
	defer br.mu.Unlock()
	return br.running
}

// Done is closed when the bridge stops. It is nil before Start.
func (br *Bridge) Done() <-chan struct{} {
	br.mu.Lock()
	defer br.mu.Unlock()
	return br.done
}

// resync queues every known zone for publishing.
func (br *Bridge) resync() {
	zones := br.zones.GetZones()
	ids := make([]string, 0, len(zones))
	for _, z := range zones {
		ids = append(ids, z.ID)
	}
	br.queue.Add(ids...)
}

func (br *Bridge) watchBus(ctx context.Context, sub *bus.Subscription, stop context.CancelFunc) {
	prefix := br.opts.TopicPrefix
	for {
		ev, err := sub.Recv(ctx)
		if skipped, lagged := bus.IsLagged(err); lagged {
			logging.Warn("MQTT", "Bridge lagged by %d events, resyncing", skipped)
			br.resync()
			continue
		}
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, bus.ErrClosed) {
				logging.Error("MQTT", err, "Bus subscription failed")
			}
			stop()
			return
		}

		switch e := ev.(type) {
		case bus.HealthCheck:
			payload, _ := json.Marshal(map[string]any{"timestamp": e.Timestamp})
			if err := br.client.Publish(HeartbeatTopic(prefix), 0, false, payload); err != nil {
				logging.Warn("MQTT", "Heartbeat publish failed: %v", err)
			}
		case bus.ShuttingDown:
			logging.Info("MQTT", "Bridge stopping: %s", e.Reason)
			if err := br.client.Publish(StatusTopic(prefix), br.opts.QoS, true, []byte(StatusOffline)); err != nil {
				logging.Warn("MQTT", "Failed to publish offline status: %v", err)
			}
			stop()
			return
		}
	}
}

func (br *Bridge) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-br.queue.Ready():
			for _, id := range br.queue.Drain() {
				br.publishZone(id)
			}
		}
	}
}

// publishZone writes the current snapshot of a zone, or clears its retained
// topics when the zone is gone.
func (br *Bridge) publishZone(zoneID string) {
	prefix := br.opts.TopicPrefix
	z, ok := br.zones.GetZone(zoneID)
	if !ok {
		if err := br.client.Publish(StateTopic(prefix, zoneID), br.opts.QoS, true, nil); err != nil {
			logging.Warn("MQTT", "Failed to clear %s: %v", zoneID, err)
		}
		if br.announced[zoneID] {
			if err := br.client.Publish(DiscoveryTopic(br.opts.DiscoveryPrefix, zoneID), br.opts.QoS, true, nil); err != nil {
				logging.Warn("MQTT", "Failed to remove discovery for %s: %v", zoneID, err)
			}
			delete(br.announced, zoneID)
		}
		return
	}

	if br.opts.HADiscovery && !br.announced[zoneID] {
		payload, err := json.Marshal(discoveryConfig(br.opts, z))
		if err == nil {
			err = br.client.Publish(DiscoveryTopic(br.opts.DiscoveryPrefix, zoneID), br.opts.QoS, true, payload)
		}
		if err != nil {
			logging.Warn("MQTT", "Discovery publish for %s failed: %v", zoneID, err)
		} else {
			br.announced[zoneID] = true
		}
	}

	payload, err := json.Marshal(z)
	if err != nil {
		logging.Error("MQTT", err, "Failed to encode zone %s", zoneID)
		return
	}
	if err := br.client.Publish(StateTopic(prefix, zoneID), br.opts.QoS, true, payload); err != nil {
		logging.Warn("MQTT", "State publish for %s failed: %v", zoneID, err)
	}
}

type commandPayload struct {
	Action   string   `json:"action"`
	Value    *float64 `json:"value,omitempty"`
	Relative bool     `json:"relative,omitempty"`
}

type commandResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// parseCommand accepts either a JSON object or a bare action such as "play".
func parseCommand(payload []byte) (zone.Command, error) {
	var p commandPayload
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
			return zone.Command{}, fmt.Errorf("%w: %v", zone.ErrInvalidCommand, err)
		}
	} else {
		p.Action = trimmed
	}
	action, err := zone.ParseAction(p.Action)
	if err != nil {
		return zone.Command{}, err
	}
	cmd := zone.Command{Action: action, Value: p.Value, Relative: p.Relative}
	return cmd, cmd.Validate()
}

func (br *Bridge) handleCommand(topic string, payload []byte) {
	prefix := br.opts.TopicPrefix
	zoneID, ok := zoneFromCommandTopic(prefix, topic)
	if !ok {
		logging.Debug("MQTT", "Ignoring message on %s", topic)
		return
	}

	var result commandResult
	cmd, err := parseCommand(payload)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		var resp zone.CommandResponse
		resp, err = br.commands.Dispatch(ctx, zoneID, cmd)
		cancel()
		result = commandResult{OK: resp.OK, Message: resp.Message}
	}
	if err != nil {
		logging.Warn("MQTT", "Command for %s rejected: %v", zoneID, err)
		result = commandResult{Error: err.Error()}
	}

	out, _ := json.Marshal(result)
	if err := br.client.Publish(ResultTopic(prefix, zoneID), br.opts.QoS, false, out); err != nil {
		logging.Warn("MQTT", "Result publish for %s failed: %v", zoneID, err)
	}
}
