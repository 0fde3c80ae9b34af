package aggregator

import (
	"context"
	"errors"

	"hifibridge/internal/bus"
	"hifibridge/pkg/logging"
)

// Start subscribes to the bus and applies events in a background goroutine
// until ShuttingDown, Stop or ctx cancellation. The subscription is taken before
// Start returns, so events published afterwards are never missed.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.running = true

	sub := a.bus.Subscribe()
	go a.handleEvents(ctx, sub, a.done)

	logging.Info("Aggregator", "Started zone aggregator")
	return nil
}

// Stop ends the event loop and waits for it to exit.
func (a *Aggregator) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	cancel()
	<-done
	logging.Info("Aggregator", "Stopped zone aggregator")
}

// IsRunning reports whether the event loop is active.
func (a *Aggregator) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Done is closed when the running event loop exits. It is nil before Start.
func (a *Aggregator) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.done
}

// Run is the blocking form of Start.
func (a *Aggregator) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	select {
	case <-a.Done():
	case <-ctx.Done():
		a.Stop()
	}
	return nil
}

func (a *Aggregator) handleEvents(ctx context.Context, sub *bus.Subscription, done chan struct{}) {
	defer close(done)
	defer sub.Close()
	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	for {
		ev, err := sub.Recv(ctx)
		if err != nil {
			if skipped, lagged := bus.IsLagged(err); lagged {
				logging.Warn("Aggregator", "Zone projection missed %d events, state may be stale until the next update", skipped)
				continue
			}
			if !errors.Is(err, context.Canceled) {
				logging.Debug("Aggregator", "Event loop ending: %v", err)
			}
			return
		}

		if !a.Apply(ev) {
			logging.Info("Aggregator", "Shutdown requested, stopping zone aggregator")
			return
		}
	}
}
