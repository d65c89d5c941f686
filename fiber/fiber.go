// File: fiber/fiber.go
// Package fiber implements cooperatively scheduled tasks and the
// priority-tiered scheduler that runs them on one scheduling unit.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Fiber is a goroutine serialized by its unit's scheduler: the
// scheduler grants a run slice over the resume channel and the fiber
// hands control back by yielding, suspending or terminating. At most
// one fiber per unit executes at any moment, so fiber code needs no
// locking against other fibers of the same unit.

package fiber

import "sync/atomic"

// State is the lifecycle state of a fiber.
type State int32

const (
	StateRunnable State = iota
	StateRunning
	StateSuspended
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateRunnable:
		return "runnable"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Tier is a scheduling priority class. TierDispatch is reserved for the
// unit's event-loop pass and is never assignable to user fibers.
type Tier int

const (
	TierDispatch Tier = iota
	TierHigh
	TierNormal
	TierLow
)

const numUserTiers = 3

func (t Tier) userIndex() int {
	return int(t) - 1
}

type yieldReason int

const (
	yieldYield yieldReason = iota
	yieldSuspend
	yieldTerminate
)

type yieldMsg struct {
	f      *Fiber
	reason yieldReason
}

// Fiber is a suspendable task owned by the scheduler that launched it,
// until it terminates and is reclaimed by the scheduler's collect pass.
// The Fiber pointer doubles as the wake handle: reactors and
// synchronization primitives hold it by reference, never owning it.
type Fiber struct {
	id          uint64
	tier        Tier
	state       atomic.Int32
	wakePending atomic.Bool

	resume chan struct{}
	done   chan struct{}
	sched  *Scheduler
	fn     func(*Fiber)
}

// ID returns the fiber's unit-local identifier.
func (f *Fiber) ID() uint64 { return f.id }

// Tier returns the fiber's priority tier.
func (f *Fiber) Tier() Tier { return f.tier }

// State reports the current lifecycle state.
func (f *Fiber) State() State { return State(f.state.Load()) }

// Done returns a channel closed when the fiber terminates.
func (f *Fiber) Done() <-chan struct{} { return f.done }

// Join blocks the calling goroutine until the fiber terminates.
// It must not be called from a fiber of the same unit: that would
// stall the unit the joined fiber needs in order to finish.
func (f *Fiber) Join() { <-f.done }

// Yield hands the run slice back to the scheduler and re-enters the
// Runnable set at the fiber's tier. Only the fiber itself may call it.
func (f *Fiber) Yield() {
	f.state.Store(int32(StateRunnable))
	f.sched.yieldCh <- yieldMsg{f, yieldYield}
	<-f.resume
	f.state.Store(int32(StateRunning))
}

// Suspend parks the fiber until Wake. If a wake raced ahead of the
// suspension the fiber continues immediately without giving up its
// slice. Callers must treat returns as possibly spurious and re-check
// their wait condition in a loop.
func (f *Fiber) Suspend() {
	f.state.Store(int32(StateSuspended))
	if f.wakePending.CompareAndSwap(true, false) {
		f.state.Store(int32(StateRunning))
		return
	}
	f.sched.yieldCh <- yieldMsg{f, yieldSuspend}
	<-f.resume
	f.state.Store(int32(StateRunning))
}

// Wake transitions a Suspended fiber back to Runnable and hands it to
// the owning scheduler. Safe from any goroutine and any thread; waking
// a fiber that is not suspended records a pending wake consumed by its
// next Suspend. Extra wakes are benign.
func (f *Fiber) Wake() {
	if f.state.CompareAndSwap(int32(StateSuspended), int32(StateRunnable)) {
		f.sched.notifyWake(f)
		return
	}
	f.wakePending.Store(true)
}

// run is the goroutine body wrapping the user callback.
func (f *Fiber) run() {
	<-f.resume
	f.state.Store(int32(StateRunning))
	f.fn(f)
	f.state.Store(int32(StateTerminated))
	close(f.done)
	f.sched.yieldCh <- yieldMsg{f, yieldTerminate}
}
