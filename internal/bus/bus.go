package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the number of events retained for slow subscribers.
const DefaultCapacity = 1024

// ErrClosed is returned by Recv once the bus is closed and the subscriber has
// consumed everything that was published before the close.
var ErrClosed = errors.New("event bus closed")

// LaggedError is returned by Recv when the subscriber fell more than the ring
// capacity behind. The subscription has already been moved to the oldest
// retained event; the next Recv continues from there.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("subscriber lagged behind, %d events skipped", e.Skipped)
}

// IsLagged reports whether err is a lag notification and how many events were skipped.
func IsLagged(err error) (uint64, bool) {
	var lagged *LaggedError
	if errors.As(err, &lagged) {
		return lagged.Skipped, true
	}
	return 0, false
}

// Metrics is a point in time view of bus activity.
type Metrics struct {
	Published   int64
	Subscribers int64
	LagNotices  int64
	Skipped     int64
}

// Bus is a bounded multi-producer multi-consumer broadcast channel.
//
// Publish writes into a fixed ring and never waits for subscribers. Each
// Subscription keeps its own cursor into the ring; a cursor that is overtaken by
// the writer receives a LaggedError instead of silently missing events.
// Consumers that need every event (audit trails and the like) must copy events
// into their own unbounded queue.
type Bus struct {
	mu     sync.RWMutex
	ring   []Event
	head   uint64 // sequence number of the next write
	notify chan struct{}
	closed bool

	published   atomic.Int64
	subscribers atomic.Int64
	lagNotices  atomic.Int64
	skipped     atomic.Int64
}

// New creates a bus retaining capacity events. Non-positive values use DefaultCapacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{
		ring:   make([]Event, capacity),
		notify: make(chan struct{}),
	}
}

// Capacity returns the ring size.
func (b *Bus) Capacity() int {
	return len(b.ring)
}

// Publish broadcasts ev. It never blocks and never fails; with no subscribers
// the event is simply overwritten later.
func (b *Bus) Publish(ev Event) {
	if ev == nil {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.ring[b.head%uint64(len(b.ring))] = ev
	b.head++
	wake := b.notify
	b.notify = make(chan struct{})
	b.mu.Unlock()

	close(wake)
	b.published.Add(1)
}

// Subscribe returns a cursor that observes events published after this call.
func (b *Bus) Subscribe() *Subscription {
	b.mu.RLock()
	next := b.head
	b.mu.RUnlock()

	b.subscribers.Add(1)
	return &Subscription{bus: b, next: next}
}

// SubscriberCount is diagnostic only; delivery never depends on it.
func (b *Bus) SubscriberCount() int {
	return int(b.subscribers.Load())
}

// Metrics returns a snapshot of bus counters.
func (b *Bus) Metrics() Metrics {
	return Metrics{
		Published:   b.published.Load(),
		Subscribers: b.subscribers.Load(),
		LagNotices:  b.lagNotices.Load(),
		Skipped:     b.skipped.Load(),
	}
}

// Close stops accepting events and wakes every waiting subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	wake := b.notify
	b.mu.Unlock()

	close(wake)
}

// Subscription is a single consumer cursor. It must not be shared between
// goroutines that call Recv concurrently.
type Subscription struct {
	bus    *Bus
	next   uint64
	closed atomic.Bool
}

// Recv blocks until the next event, a lag notification, bus close, or ctx is done.
func (s *Subscription) Recv(ctx context.Context) (Event, error) {
	for {
		ev, wait, err := s.poll()
		if ev != nil || err != nil {
			return ev, err
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryRecv returns the next event without waiting. ok is false when nothing is pending.
func (s *Subscription) TryRecv() (ev Event, ok bool, err error) {
	ev, _, err = s.poll()
	return ev, ev != nil, err
}

// Close releases the subscription. Further Recv calls return ErrClosed.
func (s *Subscription) Close() {
	if s.closed.CompareAndSwap(false, true) {
		s.bus.subscribers.Add(-1)
	}
}

func (s *Subscription) poll() (Event, <-chan struct{}, error) {
	if s.closed.Load() {
		return nil, nil, ErrClosed
	}

	b := s.bus
	b.mu.RLock()
	defer b.mu.RUnlock()

	size := uint64(len(b.ring))
	var oldest uint64
	if b.head > size {
		oldest = b.head - size
	}

	if s.next < oldest {
		skipped := oldest - s.next
		s.next = oldest
		b.lagNotices.Add(1)
		b.skipped.Add(int64(skipped))
		return nil, nil, &LaggedError{Skipped: skipped}
	}
	if s.next < b.head {
		ev := b.ring[s.next%size]
		s.next++
		return ev, nil, nil
	}
	if b.closed {
		return nil, nil, ErrClosed
	}
	return nil, b.notify, nil
}

// Filter selects events.
type Filter func(Event) bool

// FilterByKind matches any of the given kinds. No kinds matches everything.
func FilterByKind(kinds ...Kind) Filter {
	if len(kinds) == 0 {
		return func(Event) bool { return true }
	}
	set := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return func(ev Event) bool {
		return set[ev.Kind()]
	}
}
