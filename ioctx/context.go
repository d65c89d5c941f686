// File: ioctx/context.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Context is one scheduling unit: a reactor plus a fiber scheduler
// driven by a single OS thread. The loop alternates draining direct
// callbacks, polling the reactor once, and granting the fiber
// scheduler one round, so reactor-completion latency is bounded by one
// fiber round-trip and the dispatch pass can never be starved by user
// fibers.
//
// Direct callbacks submitted via Async or Await must never suspend;
// they run on the loop thread outside any fiber. A panic inside one is
// fatal on purpose: it means a scheduling invariant was violated and
// continuing would corrupt scheduler state.

package ioctx

import (
	"log/slog"
	"runtime"
	"sync/atomic"

	"github.com/momentics/fibrio/affinity"
	"github.com/momentics/fibrio/api"
	"github.com/momentics/fibrio/fiber"
	"github.com/momentics/fibrio/fibersync"
	"github.com/momentics/fibrio/internal/concurrency"
)

// Context is a scheduling unit. Create one per worker thread via New,
// then bind it with StartLoop.
type Context struct {
	cfg     config
	reactor api.Reactor
	sched   *fiber.Scheduler
	direct  *concurrency.Ring[func()]

	idx      int
	loopTID  atomic.Int64
	stopping atomic.Bool
	drained  atomic.Bool
	loopDone chan struct{}
}

// New creates a scheduling unit owning the given reactor.
func New(r api.Reactor, opts ...Option) *Context {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	c := &Context{
		cfg:      cfg,
		reactor:  r,
		direct:   concurrency.NewRing[func()](cfg.queueSize),
		idx:      -1,
		loopDone: make(chan struct{}),
	}
	c.loopTID.Store(-2)
	c.sched = fiber.NewScheduler(cfg.log, cfg.sliceBudget, func() { _ = r.Wake() })
	return c
}

// Reactor returns the unit's reactor, for code that needs the concrete
// backend (socket registration, submission rings).
func (c *Context) Reactor() api.Reactor { return c.reactor }

// Index returns the unit's position in its pool, or -1 outside a pool.
func (c *Context) Index() int { return c.idx }

func (c *Context) onLoop() bool {
	tid := c.loopTID.Load()
	return tid >= 0 && tid == currentTID()
}

// Async enqueues cb to run directly on this unit's loop thread at the
// next pass. Non-blocking apart from ring backpressure; safe from any
// goroutine. cb must not suspend.
func (c *Context) Async(cb func()) error {
	if c.stopping.Load() {
		return api.ErrStopped
	}
	for !c.direct.Enqueue(cb) {
		runtime.Gosched()
		if c.stopping.Load() {
			return api.ErrStopped
		}
	}
	_ = c.reactor.Wake()
	return nil
}

// Await runs cb on the unit's loop thread and blocks the caller until
// it finished. On the loop thread itself cb runs inline. Await must
// not be called from a fiber: a fiber waiting on a foreign unit uses
// the fibersync primitives instead, so its own unit keeps running.
func (c *Context) Await(cb func()) error {
	if c.onLoop() {
		cb()
		return nil
	}
	done := make(chan struct{})
	if err := c.Async(func() {
		cb()
		close(done)
	}); err != nil {
		return err
	}
	<-done
	return nil
}

// AwaitResult runs cb on the unit's loop thread and returns its value.
func AwaitResult[T any](c *Context, cb func() T) (T, error) {
	var v T
	err := c.Await(func() { v = cb() })
	return v, err
}

// AsyncFiber starts a fire-and-forget fiber at TierNormal. The fiber
// may suspend freely. Callers needing the result signal through a
// fibersync primitive from inside cb.
func (c *Context) AsyncFiber(cb func(*fiber.Fiber)) error {
	return c.AsyncFiberAt(fiber.TierNormal, cb)
}

// AsyncFiberAt starts a fire-and-forget fiber at an explicit tier.
func (c *Context) AsyncFiberAt(tier fiber.Tier, cb func(*fiber.Fiber)) error {
	if c.onLoop() {
		c.sched.Launch(tier, cb)
		return nil
	}
	return c.Async(func() { c.sched.Launch(tier, cb) })
}

// LaunchFiber starts a fiber at TierNormal and returns its joinable
// handle. Must not be called from a fiber of this unit; fibers use
// Spawn.
func (c *Context) LaunchFiber(cb func(*fiber.Fiber)) (*fiber.Fiber, error) {
	return c.LaunchFiberAt(fiber.TierNormal, cb)
}

// LaunchFiberAt starts a joinable fiber at an explicit tier.
func (c *Context) LaunchFiberAt(tier fiber.Tier, cb func(*fiber.Fiber)) (*fiber.Fiber, error) {
	if c.onLoop() {
		return c.sched.Launch(tier, cb), nil
	}
	var f *fiber.Fiber
	if err := c.Await(func() { f = c.sched.Launch(tier, cb) }); err != nil {
		return nil, err
	}
	return f, nil
}

// Spawn launches a sibling fiber from inside a fiber of this unit.
// Fiber code is unit-serialized with the loop, so the launch is direct;
// self documents the calling context and pins it at the call site.
func (c *Context) Spawn(self *fiber.Fiber, tier fiber.Tier, cb func(*fiber.Fiber)) *fiber.Fiber {
	_ = self
	return c.sched.Launch(tier, cb)
}

// StartLoop binds the unit to the calling goroutine's thread, applies
// CPU affinity, signals start and runs until Stop is observed, queued
// direct callbacks are drained and every owned fiber has terminated.
func (c *Context) StartLoop(start *fibersync.BlockingCounter) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if c.cfg.cpu >= 0 {
		if err := affinity.Pin(c.cfg.cpu); err != nil {
			c.cfg.log.Warn("cpu pinning failed",
				slog.Int("cpu", c.cfg.cpu), slog.Any("error", err))
		}
	}
	c.loopTID.Store(currentTID())
	if start != nil {
		start.Dec()
	}

	for {
		ran := c.runDirect()

		if c.stopping.Load() &&
			c.direct.Len() == 0 &&
			!c.sched.HasRunnable() &&
			c.sched.Live() == 0 {
			break
		}

		timeout := 0
		if ran == 0 && !c.sched.HasRunnable() {
			timeout = -1
		}
		if _, err := c.reactor.Poll(timeout); err != nil {
			c.cfg.log.Error("reactor poll failed", slog.Any("error", err))
			break
		}

		c.runDirect()
		c.sched.RunRound()
	}

	c.drained.Store(true)
	close(c.loopDone)
}

// runDirect drains the submission ring. Loop thread only.
func (c *Context) runDirect() int {
	n := 0
	for {
		cb, ok := c.direct.Dequeue()
		if !ok {
			return n
		}
		cb()
		n++
	}
}

// Stop requests the loop to exit once queued direct callbacks are
// drained and live fibers have terminated. Fibers suspended on pending
// I/O finish naturally or are cancelled by the I/O layer that owns
// them; Stop never destroys a unit with runnable fibers.
func (c *Context) Stop() {
	if c.stopping.CompareAndSwap(false, true) {
		_ = c.reactor.Wake()
	}
}

// Join blocks until the loop has exited.
func (c *Context) Join() { <-c.loopDone }

// Drained reports whether the loop exited and the unit holds no work.
func (c *Context) Drained() bool { return c.drained.Load() }
