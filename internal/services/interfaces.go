package services

import (
	"fmt"
	"sort"
	"sync"

	"hifibridge/internal/adapters"
	"hifibridge/internal/bus"
	"hifibridge/internal/config"
	"hifibridge/internal/services/simulated"
)

// Constructor builds adapter logic from its config entry. The returned bool
// reports whether the entry carries enough settings to start.
type Constructor func(cfg config.AdapterConfig) (adapters.Logic, bool, error)

// Built is one constructed adapter.
type Built struct {
	Config  config.AdapterConfig
	Logic   adapters.Logic
	Service *adapters.Service
}

// Registry maps adapter types to constructors.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewRegistry returns a registry with the built-in adapter types.
func NewRegistry() *Registry {
	r := &Registry{constructors: make(map[string]Constructor)}
	r.Register(config.AdapterTypeSimulated, newSimulated)
	return r
}

// Register adds or replaces the constructor for typ.
func (r *Registry) Register(typ string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[typ] = c
}

// Types lists the registered adapter types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.constructors))
	for t := range r.constructors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Build creates the adapter described by cfg and wraps it in a Service. The
// adapter name is its zone ID prefix.
func (r *Registry) Build(cfg config.AdapterConfig, b *bus.Bus, globalRetry adapters.RetryConfig) (Built, error) {
	r.mu.RLock()
	construct, ok := r.constructors[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		return Built{}, fmt.Errorf("adapter %s: unsupported type %q", cfg.Name, cfg.Type)
	}

	logic, configured, err := construct(cfg)
	if err != nil {
		return Built{}, fmt.Errorf("adapter %s: %w", cfg.Name, err)
	}
	if logic.Prefix() != cfg.Name {
		return Built{}, fmt.Errorf("adapter %s: logic reports prefix %q", cfg.Name, logic.Prefix())
	}

	svc := adapters.NewService(logic, b, cfg.EffectiveRetry(globalRetry), configured)
	return Built{Config: cfg, Logic: logic, Service: svc}, nil
}

// BuildAll builds every configured adapter, stopping at the first error.
func (r *Registry) BuildAll(cfgs []config.AdapterConfig, b *bus.Bus, globalRetry adapters.RetryConfig) ([]Built, error) {
	out := make([]Built, 0, len(cfgs))
	for _, c := range cfgs {
		built, err := r.Build(c, b, globalRetry)
		if err != nil {
			return nil, err
		}
		out = append(out, built)
	}
	return out, nil
}

func newSimulated(cfg config.AdapterConfig) (adapters.Logic, bool, error) {
	sc := simulated.Config{Prefix: cfg.Name}
	if cfg.Simulated != nil {
		sc.Zones = cfg.Simulated.Zones
		sc.TickInterval = cfg.Simulated.TickInterval
		sc.FailAfter = cfg.Simulated.FailAfter
	}
	a := simulated.New(sc)
	return a, a.Configured(), nil
}
