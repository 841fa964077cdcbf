// Package hint carries center hints, requests to highlight a coordinate,
// from their producers to the map screen.
package hint

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/pilgrimsafe/tracker/pkg/core"
)

var (
	// ErrBusFull is returned when the hint buffer cannot take another hint.
	ErrBusFull = errors.New("hint bus full")
	// ErrBusClosed is returned by Publish after Close.
	ErrBusClosed = errors.New("hint bus closed")
)

// Bus is an explicit, buffered message channel for center hints.
type Bus struct {
	mu     sync.RWMutex
	ch     chan core.CenterHint
	closed bool
}

// NewBus creates a Bus buffering up to size hints.
func NewBus(size int) *Bus {
	return &Bus{ch: make(chan core.CenterHint, size)}
}

// Len returns the number of hints waiting for delivery.
func (b *Bus) Len() int {
	return len(b.ch)
}

// Publish queues h without blocking. A hint without an ID is given a fresh
// one, so it is never collapsed with another.
func (b *Bus) Publish(h core.CenterHint) (core.CenterHint, error) {
	if !h.Position.Valid() {
		return h, fmt.Errorf("hint %q: %w", h.ID, core.ErrInvalidPosition)
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return h, ErrBusClosed
	}
	select {
	case b.ch <- h:
		return h, nil
	default:
		return h, ErrBusFull
	}
}

// Run hands each hint to deliver until ctx is done or the bus is closed.
func (b *Bus) Run(ctx context.Context, deliver func(core.CenterHint)) {
	for {
		select {
		case <-ctx.Done():
			return
		case h, ok := <-b.ch:
			if !ok {
				return
			}
			deliver(h)
		}
	}
}

// Close stops Run once buffered hints are delivered. Only the first call
// has an effect.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}

// Dedupe remembers the most recent hint IDs. Memory is bounded by its
// capacity; the oldest ID is forgotten first.
type Dedupe struct {
	capacity int
	order    []string
	seen     map[string]struct{}
}

// NewDedupe creates a Dedupe remembering up to capacity IDs.
func NewDedupe(capacity int) *Dedupe {
	if capacity <= 0 {
		capacity = 256
	}
	return &Dedupe{capacity: capacity, seen: make(map[string]struct{}, capacity)}
}

// First records id and reports whether it had not been seen before.
func (d *Dedupe) First(id string) bool {
	if _, ok := d.seen[id]; ok {
		return false
	}
	if len(d.order) == d.capacity {
		delete(d.seen, d.order[0])
		d.order = d.order[1:]
	}
	d.order = append(d.order, id)
	d.seen[id] = struct{}{}
	return true
}
