// Package eventdispatch provides a bounded event channel with an explicit
// overflow policy.
package eventdispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Policy selects what happens when the channel is full.
type Policy int

const (
	// DropOldest discards the oldest buffered event to make room.
	DropOldest Policy = iota

	// DropNewest discards the event being emitted.
	DropNewest

	// Block waits for room until the emit context is done, then drops the
	// event being emitted.
	Block
)

// String returns the policy name used in configuration files.
func (p Policy) String() string {
	switch p {
	case DropOldest:
		return "drop-oldest"
	case DropNewest:
		return "drop-newest"
	case Block:
		return "block"
	default:
		return fmt.Sprintf("Policy(%d)", p)
	}
}

// ParsePolicy is the inverse of Policy.String.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "drop-oldest", "":
		return DropOldest, nil
	case "drop-newest":
		return DropNewest, nil
	case "block":
		return Block, nil
	default:
		return 0, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Dispatcher emits events to a buffered channel. Slow consumers never
// block producers unless the policy is Block.
type Dispatcher[T any] struct {
	events chan T
	policy Policy
	onDrop func(T)

	done      chan struct{}
	closeOnce sync.Once

	// mu is held for reading by emitters and for writing by Close, so the
	// channel is never closed under a pending send.
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

// New creates a dispatcher. onDrop, if non-nil, is called for every
// discarded event.
func New[T any](bufferSize int, policy Policy, onDrop func(T)) *Dispatcher[T] {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Dispatcher[T]{
		events: make(chan T, bufferSize),
		policy: policy,
		onDrop: onDrop,
		done:   make(chan struct{}),
	}
}

// Emit delivers ev according to the overflow policy. It reports whether
// ev was enqueued. ctx only bounds the Block policy.
func (d *Dispatcher[T]) Emit(ctx context.Context, ev T) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false
	}

	select {
	case d.events <- ev:
		return true
	default:
	}

	switch d.policy {
	case DropNewest:
		d.drop(ev)
		return false

	case Block:
		select {
		case d.events <- ev:
			return true
		case <-ctx.Done():
		case <-d.done:
		}
		d.drop(ev)
		return false

	default:
		for {
			select {
			case old := <-d.events:
				d.drop(old)
			default:
			}
			select {
			case d.events <- ev:
				return true
			default:
			}
		}
	}
}

func (d *Dispatcher[T]) drop(ev T) {
	d.dropped.Add(1)
	if d.onDrop != nil {
		d.onDrop(ev)
	}
}

// Events returns the channel for the application to consume. It is closed
// by Close.
func (d *Dispatcher[T]) Events() <-chan T {
	return d.events
}

// Dropped returns the number of discarded events.
func (d *Dispatcher[T]) Dropped() uint64 {
	return d.dropped.Load()
}

// Len returns the number of buffered events.
func (d *Dispatcher[T]) Len() int {
	return len(d.events)
}

// Policy returns the overflow policy.
func (d *Dispatcher[T]) Policy() Policy {
	return d.policy
}

// Close closes the events channel, releasing blocked emitters first. It is
// safe to call Close multiple times.
func (d *Dispatcher[T]) Close() {
	d.closeOnce.Do(func() {
		close(d.done)

		d.mu.Lock()
		defer d.mu.Unlock()
		d.closed = true
		close(d.events)
	})
}

// IsClosed returns true if the dispatcher has been closed.
func (d *Dispatcher[T]) IsClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}
