// File: fibersync/eventcount.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// EventCount is the mutexless condition-variable analogue the other
// primitives build on. The generation counter closes the classic
// missed-notification window: a waiter samples the generation, checks
// its condition, and only parks if the generation is still unchanged.

package fibersync

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/momentics/fibrio/fiber"
)

// EventCount holds a generation counter plus a waiter list.
type EventCount struct {
	gen     atomic.Uint64
	mu      sync.Mutex
	waiters *queue.Queue
}

// NewEventCount creates an EventCount.
func NewEventCount() *EventCount {
	return &EventCount{waiters: queue.New()}
}

// PrepareWait samples the current generation. Callers re-check their
// wait condition after PrepareWait and pass the sampled epoch to Wait.
func (e *EventCount) PrepareWait() uint64 {
	return e.gen.Load()
}

// Wait parks the caller until a notification arrives, unless the
// generation moved past epoch already. fb may be nil for a plain
// goroutine wait. Returns are possibly spurious; callers loop.
func (e *EventCount) Wait(fb *fiber.Fiber, epoch uint64) {
	w := newWaiter(fb)
	e.mu.Lock()
	if e.gen.Load() != epoch {
		e.mu.Unlock()
		return
	}
	e.waiters.Add(w)
	e.mu.Unlock()
	w.park()
}

// Notify bumps the generation and wakes one waiter.
func (e *EventCount) Notify() {
	e.mu.Lock()
	e.gen.Add(1)
	var w *waiter
	for e.waiters.Length() > 0 {
		cand := e.waiters.Remove().(*waiter)
		if cand.tryClaim() {
			w = cand
			break
		}
	}
	e.mu.Unlock()
	if w != nil {
		w.wake()
	}
}

// NotifyAll bumps the generation and wakes every waiter.
func (e *EventCount) NotifyAll() {
	e.mu.Lock()
	e.gen.Add(1)
	var woken []*waiter
	for e.waiters.Length() > 0 {
		cand := e.waiters.Remove().(*waiter)
		if cand.tryClaim() {
			woken = append(woken, cand)
		}
	}
	e.mu.Unlock()
	for _, w := range woken {
		w.wake()
	}
}

// Await parks the caller until cond reports true. cond runs with no
// lock held and must be safe to call repeatedly.
func (e *EventCount) Await(fb *fiber.Fiber, cond func() bool) {
	for {
		epoch := e.PrepareWait()
		if cond() {
			return
		}
		e.Wait(fb, epoch)
	}
}
