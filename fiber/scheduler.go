// File: fiber/scheduler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Priority-tiered fiber scheduler. Selection is strict tier order with
// round-robin inside a tier; admission into a tier is FIFO, so tier
// plus arrival order fully determines run order. The dispatch pass
// (reactor drain plus direct callbacks) is owned by the scheduling
// unit and always runs between rounds, which keeps the event loop
// starvation-free no matter how many user fibers are runnable.

package fiber

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/eapache/queue"

	"github.com/momentics/fibrio/internal/concurrency"
)

// DefaultSliceBudget is the run-slice duration above which a slice is
// reported as a fairness violation. Violations are logged, never
// killed: the runtime cannot preempt a non-yielding fiber.
const DefaultSliceBudget = 5 * time.Millisecond

const wakeRingCapacity = 1024

// Scheduler runs the fibers of one scheduling unit. All methods except
// notifyWake must be called from the unit's loop thread.
type Scheduler struct {
	log    *slog.Logger
	budget time.Duration

	ready  [numUserTiers]*queue.Queue
	wakes  *concurrency.Ring[*Fiber]
	// externalWake pokes the unit's reactor when a wake arrives from a
	// foreign thread while the loop may be sleeping in Poll.
	externalWake func()

	yieldCh chan yieldMsg
	live    map[uint64]*Fiber
	nextID  uint64

	sliceViolations uint64
}

// NewScheduler creates a scheduler. externalWake may be nil when the
// owning unit never sleeps (tests with a fake reactor).
func NewScheduler(log *slog.Logger, budget time.Duration, externalWake func()) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if budget <= 0 {
		budget = DefaultSliceBudget
	}
	s := &Scheduler{
		log:          log,
		budget:       budget,
		wakes:        concurrency.NewRing[*Fiber](wakeRingCapacity),
		externalWake: externalWake,
		yieldCh:      make(chan yieldMsg),
		live:         make(map[uint64]*Fiber),
	}
	for i := range s.ready {
		s.ready[i] = queue.New()
	}
	return s
}

// Launch creates a fiber at the given tier and admits it FIFO into the
// Runnable set. Must run on the loop thread; foreign callers go through
// the unit's submission queue. TierDispatch is reserved and panics.
func (s *Scheduler) Launch(tier Tier, fn func(*Fiber)) *Fiber {
	if tier == TierDispatch {
		panic("fiber: TierDispatch is reserved for the event loop")
	}
	s.nextID++
	f := &Fiber{
		id:     s.nextID,
		tier:   tier,
		resume: make(chan struct{}, 1),
		done:   make(chan struct{}),
		sched:  s,
		fn:     fn,
	}
	f.state.Store(int32(StateRunnable))
	s.live[f.id] = f
	go f.run()
	s.ready[tier.userIndex()].Add(f)
	return f
}

// RunRound grants one slice to every fiber that was runnable when the
// round started, highest tier first. Fibers woken during the round are
// admitted but run in the next round, bounding round length. Returns
// the number of slices run.
func (s *Scheduler) RunRound() int {
	s.drainWakes()
	ran := 0
	for tier := 0; tier < numUserTiers; tier++ {
		n := s.ready[tier].Length()
		for i := 0; i < n; i++ {
			f := s.ready[tier].Remove().(*Fiber)
			s.runSlice(f)
			ran++
			s.drainWakes()
		}
	}
	return ran
}

// runSlice performs one baton hand-off: grant the fiber its slice,
// block until it yields back, then classify the hand-back.
func (s *Scheduler) runSlice(f *Fiber) {
	start := time.Now()
	f.resume <- struct{}{}
	msg := <-s.yieldCh
	elapsed := time.Since(start)
	if elapsed > s.budget {
		s.sliceViolations++
		s.log.Warn("fiber run slice exceeded budget",
			slog.Uint64("fiber", msg.f.id),
			slog.Int("tier", int(msg.f.tier)),
			slog.Duration("slice", elapsed),
			slog.Duration("budget", s.budget))
	}
	switch msg.reason {
	case yieldYield:
		s.ready[msg.f.tier.userIndex()].Add(msg.f)
	case yieldSuspend:
		// the waking side owns the Suspended -> Runnable edge
	case yieldTerminate:
		delete(s.live, msg.f.id)
	}
}

// notifyWake re-admits a woken fiber. Safe from any goroutine.
func (s *Scheduler) notifyWake(f *Fiber) {
	for !s.wakes.Enqueue(f) {
		runtime.Gosched()
	}
	if s.externalWake != nil {
		s.externalWake()
	}
}

// drainWakes moves woken fibers from the cross-thread ring into their
// tier queues. Loop thread only.
func (s *Scheduler) drainWakes() {
	for {
		f, ok := s.wakes.Dequeue()
		if !ok {
			return
		}
		s.ready[f.tier.userIndex()].Add(f)
	}
}

// HasRunnable reports whether any fiber could run a slice right now.
func (s *Scheduler) HasRunnable() bool {
	if s.wakes.Len() > 0 {
		return true
	}
	for i := range s.ready {
		if s.ready[i].Length() > 0 {
			return true
		}
	}
	return false
}

// Live returns the number of fibers launched and not yet terminated.
func (s *Scheduler) Live() int { return len(s.live) }

// SliceViolations returns how many slices exceeded the budget.
func (s *Scheduler) SliceViolations() uint64 { return s.sliceViolations }
