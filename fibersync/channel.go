// File: fibersync/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded channel with closing decoupled from draining: Close stops
// admission immediately, but consumers keep popping whatever is still
// buffered. Only when the buffer is empty does Pop report drained.
// A push racing Close either completes fully or returns ErrClosed;
// an item is never accepted and then dropped.

package fibersync

import (
	"sync"

	"github.com/momentics/fibrio/api"
	"github.com/momentics/fibrio/fiber"
)

// Channel is a fixed-capacity FIFO safe across fibers and goroutines.
type Channel[T any] struct {
	mu     sync.Mutex
	buf    []T
	head   int
	count  int
	closed bool

	notEmpty *EventCount
	notFull  *EventCount
}

// NewChannel creates a channel with the given capacity (minimum 1).
func NewChannel[T any](capacity int) *Channel[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Channel[T]{
		buf:      make([]T, capacity),
		notEmpty: NewEventCount(),
		notFull:  NewEventCount(),
	}
}

// Push appends v, parking the caller while the channel is full.
// Returns api.ErrClosed once Close was observed. fb may be nil.
func (c *Channel[T]) Push(fb *fiber.Fiber, v T) error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return api.ErrClosed
		}
		if c.count < len(c.buf) {
			c.buf[(c.head+c.count)%len(c.buf)] = v
			c.count++
			c.mu.Unlock()
			c.notEmpty.Notify()
			return nil
		}
		epoch := c.notFull.PrepareWait()
		c.mu.Unlock()
		c.notFull.Wait(fb, epoch)
	}
}

// Pop removes the oldest item, parking the caller while the channel is
// empty and not closed. ok is false only when the channel is closed
// and fully drained. fb may be nil.
func (c *Channel[T]) Pop(fb *fiber.Fiber) (T, bool) {
	for {
		c.mu.Lock()
		if c.count > 0 {
			v := c.buf[c.head]
			var zero T
			c.buf[c.head] = zero
			c.head = (c.head + 1) % len(c.buf)
			c.count--
			c.mu.Unlock()
			c.notFull.Notify()
			return v, true
		}
		if c.closed {
			var zero T
			c.mu.Unlock()
			return zero, false
		}
		epoch := c.notEmpty.PrepareWait()
		c.mu.Unlock()
		c.notEmpty.Wait(fb, epoch)
	}
}

// Close stops admission. Buffered items remain poppable; parked
// producers and consumers are released.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.notEmpty.NotifyAll()
	c.notFull.NotifyAll()
}

// IsClosed reports whether Close was called.
func (c *Channel[T]) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Len returns the number of buffered items.
func (c *Channel[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Cap returns the fixed capacity.
func (c *Channel[T]) Cap() int {
	return len(c.buf)
}
