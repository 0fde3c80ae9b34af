package adapters

import (
	"context"
	"sync"

	"hifibridge/internal/bus"
	"hifibridge/pkg/logging"
)

// Service adapts a Logic into a Startable by running it inside a Handle.
//
// Every Start gets its own Handle. A restart can begin while the previous run
// is still draining, and the two must not share lifecycle state.
type Service struct {
	logic      Logic
	bus        *bus.Bus
	retry      RetryConfig
	configured bool

	mu     sync.Mutex
	cancel context.CancelFunc
	handle *Handle
	gen    uint64
}

// NewService wraps logic. configured is what CanStart reports; adapters with
// missing connection settings are registered but never started.
func NewService(logic Logic, b *bus.Bus, retry RetryConfig, configured bool) *Service {
	return &Service{
		logic:      logic,
		bus:        b,
		handle:     NewHandle(logic, b),
		retry:      retry,
		configured: configured,
	}
}

func (s *Service) Name() string   { return s.logic.Prefix() }
func (s *Service) CanStart() bool { return s.configured }

// Logic returns the wrapped adapter, used for command dispatch.
func (s *Service) Logic() Logic { return s.logic }

// Handle returns the lifecycle wrapper of the latest run.
func (s *Service) Handle() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// State reports the latest run's lifecycle state.
func (s *Service) State() State { return s.Handle().State() }

// LastError reports the latest run's most recent failed attempt.
func (s *Service) LastError() error { return s.Handle().LastError() }

// Start runs the adapter with retry until ctx is cancelled, Stop is called, or
// the bus announces shutdown.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h := NewHandle(s.logic, s.bus)
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.handle = h
	s.cancel = cancel
	s.mu.Unlock()

	h.exitHook = func(publishStopping func()) {
		s.mu.Lock()
		defer s.mu.Unlock()
		// A newer run already owns the prefix; flushing now would drop its zones.
		if s.gen != gen {
			logging.Debug("AdapterService", "Run %d of %s was superseded, not flushing zones", gen, s.Name())
			return
		}
		publishStopping()
	}

	h.RunWithRetry(ctx, s.retry)
	return nil
}

// Stop cancels the latest Start. It is a no-op when the service is not running.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
