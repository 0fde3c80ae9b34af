package adapters

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"hifibridge/internal/bus"
	"hifibridge/internal/observability"
	"hifibridge/pkg/logging"
)

// runDrainTimeout bounds how long an attempt waits for a Run that lost the race
// against shutdown to return.
const runDrainTimeout = 2 * time.Second

// errRunPending marks a race won by the Run branch only because its context
// was cancelled, while Run itself has not returned.
var errRunPending = errors.New("run still in progress")

// Stop reasons carried in AdapterStopping.
const (
	ReasonCompleted = "completed"
	ReasonCancelled = "cancelled"
	ReasonShutdown  = "shutdown"
)

// Handle runs one Logic with a uniform lifecycle and retry policy.
type Handle struct {
	logic Logic
	bus   *bus.Bus

	mu        sync.RWMutex
	state     State
	lastError error

	attempts atomic.Int64

	// onBackoff, when set, observes every backoff wait before it is slept.
	onBackoff func(wait time.Duration)
	// exitHook, when set, decides whether AdapterStopping is published on exit.
	// It is given the publish call and must invoke it at most once.
	exitHook func(publishStopping func())
}

// NewHandle creates a handle for logic publishing on b.
func NewHandle(logic Logic, b *bus.Bus) *Handle {
	return &Handle{
		logic: logic,
		bus:   b,
		state: StateIdle,
	}
}

// Prefix returns the wrapped adapter's prefix.
func (h *Handle) Prefix() string {
	return h.logic.Prefix()
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// LastError returns the error of the most recent failed attempt, if any.
func (h *Handle) LastError() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastError
}

// Attempts returns how many run attempts have been made over the handle's lifetime.
func (h *Handle) Attempts() int64 {
	return h.attempts.Load()
}

func (h *Handle) setState(state State, err error) {
	h.mu.Lock()
	h.state = state
	if err != nil {
		h.lastError = err
	}
	h.mu.Unlock()
}

// RunWithRetry runs the adapter until it returns cleanly, ctx is cancelled, or a
// ShuttingDown event is published. Errors are retried with backoff and never
// returned. Exactly one AdapterStopped is published before it returns, preceded
// by AdapterStopping unless exitHook withholds it.
func (h *Handle) RunWithRetry(ctx context.Context, cfg RetryConfig) {
	cfg = cfg.withDefaults()
	prefix := h.logic.Prefix()

	// Subscribe before the first attempt so a ShuttingDown published while the
	// adapter initialises is not missed.
	shutdownCh := make(chan struct{})
	watchCtx, stopWatch := context.WithCancel(ctx)
	go watchShutdown(watchCtx, h.bus.Subscribe(), shutdownCh)

	reason := ReasonCompleted
	defer func() {
		stopWatch()
		h.setState(StateStopped, nil)
		publishStopping := func() {
			h.bus.Publish(bus.AdapterStopping{Adapter: prefix, Reason: reason})
		}
		if h.exitHook != nil {
			h.exitHook(publishStopping)
		} else {
			publishStopping()
		}
		h.bus.Publish(bus.AdapterStopped{Adapter: prefix})
		logging.Info("AdapterHandle", "Adapter %s stopped (%s)", prefix, reason)
	}()

	delay := cfg.InitialDelay
	for {
		if r, stop := stopReason(ctx, shutdownCh); stop {
			reason = r
			return
		}

		h.attempts.Add(1)
		h.setState(StateStarting, nil)
		started := time.Now()
		err := h.attempt(ctx, shutdownCh)
		if err == nil {
			if r, stop := stopReason(ctx, shutdownCh); stop {
				reason = r
			}
			return
		}

		elapsed := time.Since(started)
		var wait time.Duration
		wait, delay = nextBackoff(delay, elapsed, cfg)
		h.setState(StateBackoff, err)
		observability.AdapterFailuresTotal.WithLabelValues(prefix).Inc()
		if h.onBackoff != nil {
			h.onBackoff(wait)
		}
		logging.Error("AdapterHandle", err, "Adapter %s failed after %s, retrying in %s", prefix, elapsed.Round(time.Millisecond), wait)

		if !sleep(ctx, shutdownCh, wait) {
			reason, _ = stopReason(ctx, shutdownCh)
			return
		}
	}
}

// attempt performs one init+run. A nil result means the adapter should not be
// retried: it stopped cleanly or the stop was requested from outside.
func (h *Handle) attempt(ctx context.Context, shutdownCh <-chan struct{}) error {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	if init, ok := h.logic.(Initializer); ok {
		if err := init.Init(runCtx); err != nil {
			if _, stop := stopReason(ctx, shutdownCh); stop {
				return nil
			}
			return fmt.Errorf("init %s: %w", h.logic.Prefix(), err)
		}
	}

	h.setState(StateRunning, nil)
	// runDone is closed once runErr is set, so every reader sees the result.
	var runErr error
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		runErr = h.logic.Run(runCtx, h.bus)
	}()

	winner, err := firstOf(ctx,
		func(c context.Context) error {
			select {
			case <-runDone:
				return runErr
			case <-c.Done():
				return errRunPending
			}
		},
		func(c context.Context) error {
			select {
			case <-shutdownCh:
			case <-c.Done():
			}
			return nil
		},
		func(c context.Context) error {
			<-c.Done()
			return nil
		},
	)

	if winner != 0 || errors.Is(err, errRunPending) {
		// Run lost the race; make sure it is not left running behind our back.
		cancelRun()
		select {
		case <-runDone:
		case <-time.After(runDrainTimeout):
			logging.Warn("AdapterHandle", "Adapter %s did not return within %s of being cancelled", h.logic.Prefix(), runDrainTimeout)
		}
		return nil
	}

	if _, stop := stopReason(ctx, shutdownCh); stop {
		return nil
	}
	if err != nil {
		return fmt.Errorf("run %s: %w", h.logic.Prefix(), err)
	}
	return nil
}

// nextBackoff returns how long to sleep after a failed run and the delay to use
// for the failure after that. A stable run resets the delay to the initial value
// without doubling.
func nextBackoff(current, elapsed time.Duration, cfg RetryConfig) (wait, next time.Duration) {
	if elapsed >= cfg.StableRunThreshold {
		return cfg.InitialDelay, cfg.InitialDelay
	}
	next = current * 2
	if next > cfg.MaxDelay {
		next = cfg.MaxDelay
	}
	return current, next
}

// sleep waits d. It returns false when interrupted by cancellation or shutdown.
func sleep(ctx context.Context, shutdownCh <-chan struct{}, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-shutdownCh:
		return false
	}
}

func stopReason(ctx context.Context, shutdownCh <-chan struct{}) (string, bool) {
	select {
	case <-shutdownCh:
		return ReasonShutdown, true
	default:
	}
	if ctx.Err() != nil {
		return ReasonCancelled, true
	}
	return "", false
}

// watchShutdown closes shutdownCh when a ShuttingDown event arrives or the bus closes.
func watchShutdown(ctx context.Context, sub *bus.Subscription, shutdownCh chan<- struct{}) {
	defer sub.Close()
	for {
		ev, err := sub.Recv(ctx)
		if err != nil {
			if _, lagged := bus.IsLagged(err); lagged {
				continue
			}
			if errors.Is(err, bus.ErrClosed) {
				close(shutdownCh)
			}
			return
		}
		if _, ok := ev.(bus.ShuttingDown); ok {
			close(shutdownCh)
			return
		}
	}
}
