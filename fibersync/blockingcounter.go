// File: fibersync/blockingcounter.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fibersync

import (
	"sync/atomic"

	"github.com/momentics/fibrio/fiber"
)

// BlockingCounter is a count-down latch: waiters park until the count
// reaches zero. Zero is terminal; decrementing past it is a
// scheduling-contract violation and panics.
type BlockingCounter struct {
	count atomic.Int64
	ec    *EventCount
}

// NewBlockingCounter creates a counter initialized to n.
func NewBlockingCounter(n int64) *BlockingCounter {
	b := &BlockingCounter{ec: NewEventCount()}
	b.count.Store(n)
	return b
}

// Dec decrements the count, releasing all waiters when it hits zero.
func (b *BlockingCounter) Dec() {
	v := b.count.Add(-1)
	switch {
	case v == 0:
		b.ec.NotifyAll()
	case v < 0:
		panic("fibersync: BlockingCounter decremented below zero")
	}
}

// Wait parks the caller until the count reaches zero. fb may be nil.
func (b *BlockingCounter) Wait(fb *fiber.Fiber) {
	b.ec.Await(fb, func() bool { return b.count.Load() == 0 })
}

// Count returns the current value.
func (b *BlockingCounter) Count() int64 {
	return b.count.Load()
}
