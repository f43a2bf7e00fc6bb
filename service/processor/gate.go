package processor

import (
	"context"
	"sync"
)

// gate keeps allocations and remote submissions mutually exclusive. Pending
// open jobs block new submissions; an open job starts allocating only once
// submissions already in flight have finished.
type gate struct {
	mu      sync.Mutex
	pending int
	open    chan struct{} // closed while no open job is pending
	active  int
	idle    chan struct{} // closed while no submission is in flight
	onZero  func()
}

func newGate() *gate {
	open := make(chan struct{})
	close(open)
	idle := make(chan struct{})
	close(idle)
	return &gate{open: open, idle: idle}
}

// Add registers a pending open job and returns the new count
func (g *gate) Add() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending++
	if g.pending == 1 {
		g.open = make(chan struct{})
	}
	return g.pending
}

// Done releases a pending open job and returns the new count
func (g *gate) Done() int {
	g.mu.Lock()
	if g.pending == 0 {
		g.mu.Unlock()
		return 0
	}
	g.pending--
	pending := g.pending
	if pending == 0 {
		close(g.open)
	}
	onZero := g.onZero
	g.mu.Unlock()
	if pending == 0 && onZero != nil {
		onZero()
	}
	return pending
}

// Pending returns the number of pending open jobs
func (g *gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

// Wait blocks until no open job is pending or ctx is done
func (g *gate) Wait(ctx context.Context) error {
	g.mu.Lock()
	open := g.open
	g.mu.Unlock()
	select {
	case <-open:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Acquire blocks until no open job is pending, then registers a submission in
// flight. Every successful Acquire must be paired with Release.
func (g *gate) Acquire(ctx context.Context) error {
	for {
		if g.TryAcquire() {
			return nil
		}
		if err := g.Wait(ctx); err != nil {
			return err
		}
	}
}

// TryAcquire registers a submission in flight unless an open job is pending
func (g *gate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending > 0 {
		return false
	}
	g.active++
	if g.active == 1 {
		g.idle = make(chan struct{})
	}
	return true
}

// Release ends a submission registered by Acquire or TryAcquire
func (g *gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == 0 {
		return
	}
	g.active--
	if g.active == 0 {
		close(g.idle)
	}
}

// Idle blocks until no submission is in flight or ctx is done
func (g *gate) Idle(ctx context.Context) error {
	g.mu.Lock()
	idle := g.idle
	g.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
