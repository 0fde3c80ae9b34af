package aggregator

import (
	"sort"
	"sync"
)

// ChangeQueue coalesces change notifications for a slow consumer. Push never
// blocks, so it is safe to register as a ChangeFunc; repeated changes to the
// same zone collapse into one pending entry.
type ChangeQueue struct {
	mu      sync.Mutex
	pending map[string]struct{}
	ready   chan struct{}
}

// NewChangeQueue creates an empty queue.
func NewChangeQueue() *ChangeQueue {
	return &ChangeQueue{
		pending: make(map[string]struct{}),
		ready:   make(chan struct{}, 1),
	}
}

// Push records the zones in c.
func (q *ChangeQueue) Push(c Change) {
	q.Add(c.ZoneIDs...)
}

// Add records zone IDs directly, e.g. for a full resync.
func (q *ChangeQueue) Add(ids ...string) {
	if len(ids) == 0 {
		return
	}
	q.mu.Lock()
	for _, id := range ids {
		q.pending[id] = struct{}{}
	}
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled when Drain has something to return.
func (q *ChangeQueue) Ready() <-chan struct{} {
	return q.ready
}

// Drain returns and clears the pending zone IDs, sorted.
func (q *ChangeQueue) Drain() []string {
	q.mu.Lock()
	ids := make([]string, 0, len(q.pending))
	for id := range q.pending {
		ids = append(ids, id)
	}
	clear(q.pending)
	q.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of pending zones.
func (q *ChangeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
