// File: fibersync/waiter.go
// Package fibersync provides fiber-aware synchronization primitives.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Every primitive is dual-mode: a waiter with a fiber handle suspends
// only that fiber, while a nil handle falls back to blocking the
// calling goroutine on an internal channel. This lets pool-level code
// (running on plain goroutines) and fiber code share one primitive.

package fibersync

import (
	"sync/atomic"

	"github.com/momentics/fibrio/fiber"
)

const (
	waiterParked int32 = iota
	waiterClaimed
)

// waiter is one parked caller. A notifier claims the waiter exactly
// once before waking it, so a single notification is never delivered
// twice and never lost.
type waiter struct {
	fb    *fiber.Fiber
	ch    chan struct{}
	state atomic.Int32
}

func newWaiter(fb *fiber.Fiber) *waiter {
	w := &waiter{fb: fb}
	if fb == nil {
		w.ch = make(chan struct{}, 1)
	}
	return w
}

func (w *waiter) tryClaim() bool {
	return w.state.CompareAndSwap(waiterParked, waiterClaimed)
}

// wake resumes a claimed waiter. Never called before a successful claim.
func (w *waiter) wake() {
	if w.fb != nil {
		w.fb.Wake()
		return
	}
	w.ch <- struct{}{}
}

// park blocks until claimed. Fiber suspension can return spuriously
// (stale wake handles are allowed to misfire), so the fiber path loops
// until this waiter was actually claimed.
func (w *waiter) park() {
	if w.fb == nil {
		<-w.ch
		return
	}
	for w.state.Load() != waiterClaimed {
		w.fb.Suspend()
	}
}
