// File: ioctx/pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pool replicates one scheduling unit per worker thread, pinned to
// distinct CPUs. The unit array is fixed at construction: fibrio is
// not an elastic thread pool and does no work stealing; cross-worker
// dispatch is always explicit through the methods below.

package ioctx

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/momentics/fibrio/api"
	"github.com/momentics/fibrio/fiber"
	"github.com/momentics/fibrio/fibersync"
)

// Pool owns N scheduling units bound 1:1 to OS threads. Index
// assignment is static for the pool's lifetime.
type Pool struct {
	contexts []*Context
	next     atomic.Uint64
	serialMu sync.Mutex
	wg       sync.WaitGroup
	running  atomic.Bool
}

// NewPool creates n units, each with its own reactor from newReactor.
// Units are pinned round-robin over the logical CPUs unless the
// supplied options override the placement.
func NewPool(n int, newReactor func() (api.Reactor, error), opts ...Option) (*Pool, error) {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	p := &Pool{contexts: make([]*Context, n)}
	for i := 0; i < n; i++ {
		r, err := newReactor()
		if err != nil {
			for j := 0; j < i; j++ {
				_ = p.contexts[j].reactor.Close()
			}
			return nil, fmt.Errorf("ioctx: reactor for unit %d: %w", i, err)
		}
		ctxOpts := append([]Option{WithCPU(i % runtime.NumCPU())}, opts...)
		c := New(r, ctxOpts...)
		c.idx = i
		p.contexts[i] = c
	}
	return p, nil
}

// Run starts every unit's loop thread and returns once all loops are
// live.
func (p *Pool) Run() {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	start := fibersync.NewBlockingCounter(int64(len(p.contexts)))
	for _, c := range p.contexts {
		p.wg.Add(1)
		go func(c *Context) {
			defer p.wg.Done()
			c.StartLoop(start)
		}(c)
	}
	start.Wait(nil)
}

// Stop stops every unit, joins their threads and closes their
// reactors. Two-phase per unit: stop admission, then drain.
func (p *Pool) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	for _, c := range p.contexts {
		c.Stop()
	}
	p.wg.Wait()
	for _, c := range p.contexts {
		_ = c.reactor.Close()
	}
}

// Size returns the fixed number of units.
func (p *Pool) Size() int { return len(p.contexts) }

// At returns the unit at index i, for callers that need affinity to a
// specific unit (for example keeping all I/O of one connection there).
func (p *Pool) At(i int) *Context { return p.contexts[i] }

// GetNextContext returns the unit at the shared round-robin cursor and
// advances it. Used to spread independent work; no affinity guarantee
// across calls.
func (p *Pool) GetNextContext() *Context {
	n := p.next.Add(1) - 1
	return p.contexts[n%uint64(len(p.contexts))]
}

// AsyncOnAll fires cb as a direct callback on every unit.
func (p *Pool) AsyncOnAll(cb func(*Context)) {
	for _, c := range p.contexts {
		c := c
		_ = c.Async(func() { cb(c) })
	}
}

// AwaitOnAll runs cb as a direct callback on every unit and blocks the
// caller until each unit executed it exactly once.
func (p *Pool) AwaitOnAll(cb func(*Context)) {
	bc := fibersync.NewBlockingCounter(int64(len(p.contexts)))
	for _, c := range p.contexts {
		c := c
		_ = c.Async(func() {
			cb(c)
			bc.Dec()
		})
	}
	bc.Wait(nil)
}

// AsyncFiberOnAll starts cb as a fiber on every unit. Use this instead
// of AsyncOnAll when cb needs to suspend.
func (p *Pool) AsyncFiberOnAll(cb func(*Context, *fiber.Fiber)) {
	for _, c := range p.contexts {
		c := c
		_ = c.AsyncFiber(func(fb *fiber.Fiber) { cb(c, fb) })
	}
}

// AwaitFiberOnAll runs cb as a fiber on every unit and blocks the
// caller until all N fibers finished.
func (p *Pool) AwaitFiberOnAll(cb func(*Context, *fiber.Fiber)) {
	bc := fibersync.NewBlockingCounter(int64(len(p.contexts)))
	for _, c := range p.contexts {
		c := c
		_ = c.AsyncFiber(func(fb *fiber.Fiber) {
			defer bc.Dec()
			cb(c, fb)
		})
	}
	bc.Wait(nil)
}

// AwaitFiberOnAllSerially runs cb as a fiber on each unit in index
// order, never concurrently, and blocks until the last one finished.
// Mutual exclusion is enforced across external callers too, so
// reduce-style accumulation into a single caller-owned value is safe
// without further locking.
func (p *Pool) AwaitFiberOnAllSerially(cb func(*Context, *fiber.Fiber)) {
	p.serialMu.Lock()
	defer p.serialMu.Unlock()
	for _, c := range p.contexts {
		c := c
		bc := fibersync.NewBlockingCounter(1)
		_ = c.AsyncFiber(func(fb *fiber.Fiber) {
			defer bc.Dec()
			cb(c, fb)
		})
		bc.Wait(nil)
	}
}
