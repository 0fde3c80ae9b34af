package a

import (
	"context"
	"sync"
	"time"
)

type store struct {
	mu    sync.Mutex
	rw    sync.RWMutex
	ch    chan int
	items map[string]int
}

func work(ctx context.Context) error { return ctx.Err() }

func (s *store) sendLocked() {
	s.mu.Lock()
	s.ch <- 1 // want `channel send while s.mu is locked`
	s.mu.Unlock()
	s.ch <- 2
}

func (s *store) recvDeferred() int {
	s.rw.RLock()
	defer s.rw.RUnlock()
	return <-s.ch // want `channel receive while s.rw is locked`
}

func (s *store) sleepLocked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	time.Sleep(time.Millisecond) // want `time.Sleep while s.mu is locked`
}

func (s *store) ctxCallLocked(ctx context.Context) {
	s.mu.Lock()
	_ = work(ctx) // want `context-taking call while s.mu is locked`
	s.mu.Unlock()
	_ = work(ctx)
}

func (s *store) contextPackageExempt(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, cancel := context.WithCancel(ctx)
	cancel()
	_ = c
}

func (s *store) selectLocked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select { // want `select while s.mu is locked`
	case v := <-s.ch:
		s.items["v"] = v
	}
}

func (s *store) selectDefaultAllowed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case s.ch <- 1:
	default:
	}
}

func (s *store) rangeLocked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for v := range s.ch { // want `range over channel while s.mu is locked`
		s.items["v"] = v
	}
}

func (s *store) earlyUnlock(ok bool) {
	s.mu.Lock()
	if !ok {
		s.mu.Unlock()
		return
	}
	s.items["x"] = 1
	s.mu.Unlock()
	s.ch <- 1
}

func (s *store) funcLitSeparate() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	return func() {
		s.ch <- 1
	}
}

func (s *store) goroutineAllowed(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	go work(ctx)
}

func (s *store) litLocks() {
	f := func() {
		s.mu.Lock()
		s.ch <- 1 // want `channel send while s.mu is locked`
		s.mu.Unlock()
	}
	f()
}

type embedded struct {
	sync.Mutex
	ch chan int
}

func (e *embedded) promoted() {
	e.Lock()
	e.ch <- 1 // want `channel send while e is locked`
	e.Unlock()
}
