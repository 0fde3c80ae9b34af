package adapters

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hifibridge/internal/bus"
	"hifibridge/internal/zone"
)

// scriptedLogic runs script[n] on the n-th attempt; attempts past the end of
// the script block until cancelled.
type scriptedLogic struct {
	prefix string
	script []func(ctx context.Context) error

	mu      sync.Mutex
	calls   int
	started chan struct{}
}

func newScripted(script ...func(ctx context.Context) error) *scriptedLogic {
	return &scriptedLogic{prefix: "test", script: script, started: make(chan struct{}, 16)}
}

func (l *scriptedLogic) Prefix() string { return l.prefix }

func (l *scriptedLogic) Run(ctx context.Context, _ *bus.Bus) error {
	l.mu.Lock()
	n := l.calls
	l.calls++
	l.mu.Unlock()
	l.started <- struct{}{}

	if n < len(l.script) {
		return l.script[n](ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (l *scriptedLogic) HandleCommand(context.Context, string, zone.Command) (zone.CommandResponse, error) {
	return zone.CommandResponse{OK: true}, nil
}

func (l *scriptedLogic) runs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type initLogic struct {
	*scriptedLogic
	inits int
}

func (l *initLogic) Init(context.Context) error {
	l.inits++
	if l.inits == 1 {
		return errors.New("host unreachable")
	}
	return nil
}

func fail(context.Context) error    { return errors.New("connection refused") }
func succeed(context.Context) error { return nil }

func fastRetry() RetryConfig {
	return RetryConfig{InitialDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, StableRunThreshold: time.Hour}
}

// drain collects every pending event on sub.
func drain(t *testing.T, sub *bus.Subscription) []bus.Event {
	t.Helper()
	var events []bus.Event
	for {
		ev, ok, err := sub.TryRecv()
		require.NoError(t, err)
		if !ok {
			return events
		}
		events = append(events, ev)
	}
}

func countStopped(events []bus.Event) int {
	n := 0
	for _, ev := range events {
		if _, ok := ev.(bus.AdapterStopped); ok {
			n++
		}
	}
	return n
}

func runAsync(h *Handle, ctx context.Context, cfg RetryConfig) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		h.RunWithRetry(ctx, cfg)
		close(done)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan struct{}, within time.Duration) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(within):
		t.Fatalf("RunWithRetry did not return within %s", within)
	}
}

func TestNextBackoff_Progression(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 5 * time.Second, MaxDelay: 60 * time.Second, StableRunThreshold: 30 * time.Second}

	delay := cfg.InitialDelay
	var waits []time.Duration
	for i := 0; i < 7; i++ {
		var wait time.Duration
		wait, delay = nextBackoff(delay, 0, cfg)
		waits = append(waits, wait)
	}

	assert.Equal(t, []time.Duration{
		5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second,
		60 * time.Second, 60 * time.Second, 60 * time.Second,
	}, waits)
}

func TestNextBackoff_StableRunResets(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 5 * time.Second, MaxDelay: 60 * time.Second, StableRunThreshold: 30 * time.Second}

	wait, next := nextBackoff(40*time.Second, 30*time.Second, cfg)
	assert.Equal(t, 5*time.Second, wait)
	assert.Equal(t, 5*time.Second, next)

	wait, next = nextBackoff(40*time.Second, 29*time.Second, cfg)
	assert.Equal(t, 40*time.Second, wait)
	assert.Equal(t, 60*time.Second, next)
}

func TestRunWithRetry_StableRunResetsBackoff(t *testing.T) {
	logic := newScripted(
		fail,
		func(ctx context.Context) error {
			time.Sleep(60 * time.Millisecond)
			return errors.New("dropped")
		},
		succeed,
	)
	b := bus.New(16)
	h := NewHandle(logic, b)

	var waits []time.Duration
	h.onBackoff = func(d time.Duration) { waits = append(waits, d) }

	h.RunWithRetry(context.Background(), RetryConfig{
		InitialDelay:       10 * time.Millisecond,
		MaxDelay:           time.Second,
		StableRunThreshold: 50 * time.Millisecond,
	})

	assert.Equal(t, 3, logic.runs())
	// The second failure came after a stable run, so it waits the initial delay
	// again rather than the doubled 20ms.
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 10 * time.Millisecond}, waits)
}

func TestRunWithRetry_ExactlyOneAck(t *testing.T) {
	tests := []struct {
		name  string
		logic *scriptedLogic
		// stop is called once the first attempt has started; nil means the
		// adapter finishes on its own.
		stop func(b *bus.Bus, cancel context.CancelFunc)
	}{
		{
			name:  "clean stop",
			logic: newScripted(succeed),
		},
		{
			name:  "failures then clean stop",
			logic: newScripted(fail, fail, fail, succeed),
		},
		{
			name:  "shutdown event during run",
			logic: newScripted(),
			stop: func(b *bus.Bus, _ context.CancelFunc) {
				b.Publish(bus.ShuttingDown{Reason: "test"})
			},
		},
		{
			name:  "cancel during run",
			logic: newScripted(),
			stop: func(_ *bus.Bus, cancel context.CancelFunc) {
				cancel()
			},
		},
		{
			name:  "cancel while failing",
			logic: newScripted(fail, fail, fail, fail, fail, fail, fail, fail),
			stop: func(_ *bus.Bus, cancel context.CancelFunc) {
				cancel()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bus.New(256)
			observer := b.Subscribe()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			h := NewHandle(tt.logic, b)
			done := runAsync(h, ctx, fastRetry())

			if tt.stop != nil {
				<-tt.logic.started
				tt.stop(b, cancel)
			}
			waitDone(t, done, 3*time.Second)

			events := drain(t, observer)
			assert.Equal(t, 1, countStopped(events))
			assert.Equal(t, StateStopped, h.State())
		})
	}
}

func TestRunWithRetry_CancelledBeforeFirstAttempt(t *testing.T) {
	logic := newScripted(succeed)
	b := bus.New(16)
	observer := b.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := NewHandle(logic, b)
	h.RunWithRetry(ctx, fastRetry())

	assert.Equal(t, 0, logic.runs())
	assert.Equal(t, int64(0), h.Attempts())

	events := drain(t, observer)
	require.Len(t, events, 2)
	assert.Equal(t, bus.AdapterStopping{Adapter: "test", Reason: ReasonCancelled}, events[0])
	assert.Equal(t, bus.AdapterStopped{Adapter: "test"}, events[1])
}

func TestRunWithRetry_ShutdownDuringBackoffReturnsImmediately(t *testing.T) {
	logic := newScripted(fail)
	b := bus.New(16)
	observer := b.Subscribe()
	h := NewHandle(logic, b)

	backingOff := make(chan struct{})
	h.onBackoff = func(time.Duration) { close(backingOff) }

	done := runAsync(h, context.Background(), RetryConfig{
		InitialDelay:       time.Minute,
		MaxDelay:           time.Minute,
		StableRunThreshold: time.Hour,
	})

	<-backingOff
	b.Publish(bus.ShuttingDown{Reason: "test"})
	waitDone(t, done, time.Second)

	assert.Equal(t, 1, logic.runs())
	events := drain(t, observer)
	assert.Equal(t, 1, countStopped(events))
	assert.Contains(t, events, bus.AdapterStopping{Adapter: "test", Reason: ReasonShutdown})
	assert.Error(t, h.LastError())
}

func TestRunWithRetry_ShutdownOverridesRunError(t *testing.T) {
	// Run reacts to cancellation with an error; shutdown must still be a clean stop.
	logic := newScripted(func(ctx context.Context) error {
		<-ctx.Done()
		return errors.New("socket closed")
	})
	b := bus.New(16)
	h := NewHandle(logic, b)

	var waits []time.Duration
	h.onBackoff = func(d time.Duration) { waits = append(waits, d) }

	done := runAsync(h, context.Background(), fastRetry())
	<-logic.started
	b.Publish(bus.ShuttingDown{})
	waitDone(t, done, time.Second)

	assert.Empty(t, waits)
	assert.Equal(t, 1, logic.runs())
}

func TestRunWithRetry_InitFailureIsRetried(t *testing.T) {
	logic := &initLogic{scriptedLogic: newScripted(succeed)}
	b := bus.New(16)
	h := NewHandle(logic, b)

	h.RunWithRetry(context.Background(), fastRetry())

	assert.Equal(t, 2, logic.inits)
	assert.Equal(t, 1, logic.runs())
	assert.Equal(t, int64(2), h.Attempts())
	require.Error(t, h.LastError())
	assert.Contains(t, h.LastError().Error(), "host unreachable")
}

func TestService_StopEndsStart(t *testing.T) {
	logic := newScripted()
	b := bus.New(16)
	svc := NewService(logic, b, fastRetry(), true)

	assert.Equal(t, "test", svc.Name())
	assert.True(t, svc.CanStart())
	assert.Same(t, logic, svc.Logic())

	done := make(chan error, 1)
	go func() { done <- svc.Start(context.Background()) }()
	<-logic.started

	svc.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return after Stop")
	}
	svc.Stop()
	assert.Equal(t, StateStopped, svc.Handle().State())
}

func TestFirstOf(t *testing.T) {
	cancelled := make(chan struct{})
	idx, v := firstOf(context.Background(),
		func(ctx context.Context) string {
			<-ctx.Done()
			close(cancelled)
			return "slow"
		},
		func(context.Context) string { return "fast" },
	)

	assert.Equal(t, 1, idx)
	assert.Equal(t, "fast", v)
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("losing branch was not cancelled")
	}
}

func TestRetryConfigDefaults(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 2 * time.Second, MaxDelay: time.Second}.withDefaults()
	assert.Equal(t, 2*time.Second, cfg.InitialDelay)
	assert.Equal(t, 2*time.Second, cfg.MaxDelay)
	assert.Equal(t, 30*time.Second, cfg.StableRunThreshold)
}
