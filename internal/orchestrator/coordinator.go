package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"hifibridge/internal/adapters"
	"hifibridge/internal/bus"
	"hifibridge/internal/observability"
	"hifibridge/pkg/logging"
)

// Config holds the coordinator timeouts.
type Config struct {
	// ShutdownTimeout bounds how long Shutdown waits for AdapterStopped acks.
	ShutdownTimeout time.Duration
	// StopTimeout bounds how long StopAdapter waits for the task to exit.
	StopTimeout time.Duration
	// JoinTimeout is the per-task wait after the root context is cancelled.
	JoinTimeout time.Duration
}

// DefaultConfig returns 5s shutdown, 5s stop and 1s join timeouts.
func DefaultConfig() Config {
	return Config{
		ShutdownTimeout: 5 * time.Second,
		StopTimeout:     5 * time.Second,
		JoinTimeout:     time.Second,
	}
}

// task is a running adapter goroutine; done is closed when Start returns.
type task struct {
	done chan struct{}
}

func (t *task) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

type registration struct {
	name      string
	enabled   bool
	startable adapters.Startable
	running   *task
	ctx       context.Context
	cancel    context.CancelFunc
}

func (r *registration) isRunning() bool {
	return r.running != nil && !r.running.finished()
}

// AdapterStatus is a snapshot of one registration.
type AdapterStatus struct {
	Name      string         `json:"name"`
	Enabled   bool           `json:"enabled"`
	Running   bool           `json:"running"`
	CanStart  bool           `json:"can_start"`
	State     adapters.State `json:"state,omitempty"`
	LastError string         `json:"last_error,omitempty"`
}

// statusReporter is implemented by adapters.Service.
type statusReporter interface {
	State() adapters.State
	LastError() error
}

// ShutdownReport describes how Shutdown went.
type ShutdownReport struct {
	Acked     []string      `json:"acked"`
	Missing   []string      `json:"missing"`
	Abandoned []string      `json:"abandoned"`
	Duration  time.Duration `json:"duration"`
}

// Coordinator supervises adapter tasks.
type Coordinator struct {
	bus *bus.Bus
	cfg Config

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu       sync.RWMutex
	registry map[string]*registration
}

// New creates a coordinator whose root context derives from parent.
func New(parent context.Context, b *bus.Bus, cfg Config) *Coordinator {
	def := DefaultConfig()
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = def.StopTimeout
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = def.JoinTimeout
	}

	ctx, cancel := context.WithCancel(parent)
	return &Coordinator{
		bus:        b,
		cfg:        cfg,
		rootCtx:    ctx,
		rootCancel: cancel,
		registry:   make(map[string]*registration),
	}
}

// Register adds name to the registry, or updates its enabled flag if it is already there.
func (c *Coordinator) Register(name string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if reg, ok := c.registry[name]; ok {
		reg.enabled = enabled
		return
	}
	ctx, cancel := context.WithCancel(c.rootCtx)
	c.registry[name] = &registration{name: name, enabled: enabled, ctx: ctx, cancel: cancel}
	logging.Debug("Coordinator", "Registered adapter %s (enabled=%t)", name, enabled)
}

// RegisterAdapter registers s under its name and remembers it for Start and StartAllEnabled.
func (c *Coordinator) RegisterAdapter(s adapters.Startable, enabled bool) {
	c.Register(s.Name(), enabled)
	c.mu.Lock()
	c.registry[s.Name()].startable = s
	c.mu.Unlock()
}

// SetEnabled flips the enabled flag. It does not start or stop the adapter.
func (c *Coordinator) SetEnabled(name string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	reg, ok := c.registry[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	reg.enabled = enabled
	return nil
}

// IsEnabled reports whether name is registered and enabled.
func (c *Coordinator) IsEnabled(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	reg, ok := c.registry[name]
	return ok && reg.enabled
}

// IsRunning reports whether name has a live task.
func (c *Coordinator) IsRunning(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	reg, ok := c.registry[name]
	return ok && reg.isRunning()
}

// Names returns the registered adapter names, sorted.
func (c *Coordinator) Names() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.registry))
	for name := range c.registry {
		names = append(names, name)
	}
	c.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Status returns a snapshot of every registration, sorted by name.
func (c *Coordinator) Status() []AdapterStatus {
	c.mu.RLock()
	out := make([]AdapterStatus, 0, len(c.registry))
	for _, reg := range c.registry {
		st := AdapterStatus{Name: reg.name, Enabled: reg.enabled, Running: reg.isRunning()}
		if reg.startable != nil {
			st.CanStart = reg.startable.CanStart()
			if sr, ok := reg.startable.(statusReporter); ok {
				st.State = sr.State()
				if err := sr.LastError(); err != nil {
					st.LastError = err.Error()
				}
			}
		}
		out = append(out, st)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// StartAdapter spawns s under name. It is a no-op when the adapter is disabled,
// cannot start or is already running.
func (c *Coordinator) StartAdapter(name string, s adapters.Startable) error {
	c.mu.Lock()
	reg, ok := c.registry[name]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	if !s.CanStart() {
		c.mu.Unlock()
		logging.Debug("Coordinator", "Adapter %s is not configured, not starting", name)
		return nil
	}
	if !reg.enabled || reg.isRunning() {
		c.mu.Unlock()
		return nil
	}
	t := &task{done: make(chan struct{})}
	reg.running = t
	reg.startable = s
	ctx := reg.ctx
	c.mu.Unlock()

	logging.Info("Coordinator", "Starting adapter %s", name)
	go func() {
		defer close(t.done)
		if err := s.Start(ctx); err != nil {
			logging.Error("Coordinator", err, "Adapter %s exited with error", name)
		}
	}()
	return nil
}

// Start starts a registered adapter using the Startable given to RegisterAdapter.
func (c *Coordinator) Start(name string) error {
	c.mu.RLock()
	reg, ok := c.registry[name]
	var s adapters.Startable
	if ok {
		s = reg.startable
	}
	c.mu.RUnlock()

	if !ok || s == nil {
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return c.StartAdapter(name, s)
}

// StartAllEnabled starts every adapter registered with RegisterAdapter, plus the
// given extra startables.
func (c *Coordinator) StartAllEnabled(extra ...adapters.Startable) error {
	c.mu.RLock()
	all := make([]adapters.Startable, 0, len(c.registry)+len(extra))
	for _, reg := range c.registry {
		if reg.startable != nil {
			all = append(all, reg.startable)
		}
	}
	c.mu.RUnlock()
	all = append(all, extra...)

	var errs []error
	for _, s := range all {
		if err := c.StartAdapter(s.Name(), s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StopAdapter cancels the adapter, installs a fresh child context and waits up
// to StopTimeout for the task. A task that does not exit in time is abandoned.
func (c *Coordinator) StopAdapter(name string) error {
	c.mu.Lock()
	reg, ok := c.registry[name]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	reg.cancel()
	reg.ctx, reg.cancel = context.WithCancel(c.rootCtx)
	t := reg.running
	reg.running = nil
	// Stop only signals; it must not block.
	if t != nil && reg.startable != nil {
		reg.startable.Stop()
	}
	c.mu.Unlock()

	if t == nil {
		return nil
	}
	logging.Info("Coordinator", "Stopping adapter %s", name)
	if !join(t, c.cfg.StopTimeout) {
		logging.Warn("Coordinator", "Adapter %s did not stop within %s, abandoning task", name, c.cfg.StopTimeout)
	}
	return nil
}

// Shutdown stops every adapter. It is safe to call more than once.
func (c *Coordinator) Shutdown(reason string) ShutdownReport {
	started := time.Now()

	// Subscribe before publishing so no ack can slip past.
	sub := c.bus.Subscribe()
	defer sub.Close()

	c.mu.RLock()
	tasks := make(map[string]*task)
	for name, reg := range c.registry {
		if reg.isRunning() {
			tasks[name] = reg.running
		}
	}
	c.mu.RUnlock()

	logging.Info("Coordinator", "Shutting down %d running adapter(s): %s", len(tasks), reason)
	c.bus.Publish(bus.ShuttingDown{Reason: reason})

	acked := c.collectAcks(sub, tasks)

	// Anything that missed the event is stopped by the context.
	c.rootCancel()

	report := ShutdownReport{}
	for _, name := range sortedKeys(tasks) {
		if acked[name] {
			report.Acked = append(report.Acked, name)
			observability.ShutdownAcksTotal.WithLabelValues("acked").Inc()
		} else {
			report.Missing = append(report.Missing, name)
			observability.ShutdownAcksTotal.WithLabelValues("missing").Inc()
		}
		if !join(tasks[name], c.cfg.JoinTimeout) {
			report.Abandoned = append(report.Abandoned, name)
			observability.ShutdownAcksTotal.WithLabelValues("abandoned").Inc()
			logging.Warn("Coordinator", "Adapter %s did not exit within %s of shutdown, abandoning task", name, c.cfg.JoinTimeout)
		}
	}

	c.mu.Lock()
	for _, reg := range c.registry {
		reg.running = nil
	}
	c.mu.Unlock()

	report.Duration = time.Since(started)
	logging.Info("Coordinator", "Shutdown complete in %s: %d acked, %d missing, %d abandoned",
		report.Duration.Round(time.Millisecond), len(report.Acked), len(report.Missing), len(report.Abandoned))
	return report
}

// collectAcks waits for one AdapterStopped per expected adapter, ignoring
// unrelated events and duplicates, until ShutdownTimeout.
func (c *Coordinator) collectAcks(sub *bus.Subscription, expected map[string]*task) map[string]bool {
	acked := make(map[string]bool, len(expected))
	if len(expected) == 0 {
		return acked
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
	defer cancel()

	for len(acked) < len(expected) {
		ev, err := sub.Recv(ctx)
		if err != nil {
			if skipped, lagged := bus.IsLagged(err); lagged {
				logging.Warn("Coordinator", "Missed %d events while collecting shutdown acks", skipped)
				continue
			}
			logging.Warn("Coordinator", "Stopped waiting for shutdown acks: %v", err)
			break
		}
		stopped, ok := ev.(bus.AdapterStopped)
		if !ok {
			continue
		}
		if _, want := expected[stopped.Adapter]; !want || acked[stopped.Adapter] {
			continue
		}
		acked[stopped.Adapter] = true
		logging.Debug("Coordinator", "Adapter %s acknowledged shutdown (%d/%d)", stopped.Adapter, len(acked), len(expected))
	}
	return acked
}

func join(t *task, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.done:
		return true
	case <-timer.C:
		return false
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
