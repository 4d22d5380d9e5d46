// Package progress provides the single-slot conduit that carries progress
// samples from a transfer or transcode to whoever is displaying them.
package progress

import "sync"

// Sink is the producer side of a Channel. TrySend must never block.
type Sink[T any] interface {
	TrySend(v T) bool
}

// Channel holds at most one pending value. A send overwrites whatever is
// pending, so a slow consumer only ever sees the latest sample. Intermediate
// values may be lost; callers that need the final value displayed must make
// sure nothing is sent after it.
type Channel[T any] struct {
	mu      sync.Mutex
	value   T
	pending bool
	closed  bool

	notify chan struct{}
	done   chan struct{}
}

// New returns an open, empty Channel.
func New[T any]() *Channel[T] {
	return &Channel[T]{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// TrySend stores v as the pending value, replacing any value the consumer
// has not read yet. It returns false only when the channel is closed.
func (c *Channel[T]) TrySend(v T) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.value = v
	c.pending = true
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

// Recv blocks until a value is pending or the channel is closed. A value
// sent before Close is still delivered; ok is false once the channel is
// closed and drained.
func (c *Channel[T]) Recv() (v T, ok bool) {
	for {
		c.mu.Lock()
		if c.pending {
			v = c.value
			var zero T
			c.value = zero
			c.pending = false
			c.mu.Unlock()
			return v, true
		}
		if c.closed {
			c.mu.Unlock()
			return v, false
		}
		c.mu.Unlock()

		select {
		case <-c.notify:
		case <-c.done:
		}
	}
}

// Close marks the channel closed. Later sends are dropped. Safe to call
// more than once.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

type discard[T any] struct{}

func (discard[T]) TrySend(T) bool { return true }

// Discard returns a Sink that drops every value.
func Discard[T any]() Sink[T] { return discard[T]{} }
