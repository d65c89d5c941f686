//go:build linux

// File: uring/reactor_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Completion reactor over one io_uring queue pair. Submissions are
// unit-serialized (the loop thread and the unit's fibers never run
// concurrently), so the SQ ring and the tag table need no locking;
// Wake is the only cross-thread entry and goes through an eventfd read
// kept permanently in flight.
//
// Backpressure: Submit fails with api.ErrQueueFull at the configured
// depth and callers suspend on SubmitReady until a completion batch
// frees space. Cancellation: CancelFd delivers exactly one
// (-ECANCELED) completion for every outstanding tag of a descriptor,
// so no fiber is left permanently suspended behind a closed resource.

package uring

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/momentics/fibrio/api"
	"github.com/momentics/fibrio/fiber"
	"github.com/momentics/fibrio/fibersync"
)

// DefaultDepth is the submission queue depth used when none is given.
const DefaultDepth = 256

const wakeTag uint64 = 0

// Completion carries the result of one submission back to its waiter.
// Either fb (a suspended fiber woken with the result attached) or cb
// (a plain non-suspending callback run on the loop thread) is set.
type Completion struct {
	fb *fiber.Fiber
	cb func(res int32)

	done bool
	res  int32
	fd   int
	tag  uint64
	keep []byte
}

// NewFiberCompletion binds a completion to a suspended fiber.
func NewFiberCompletion(fb *fiber.Fiber) *Completion {
	return &Completion{fb: fb}
}

// NewFuncCompletion binds a completion to a loop-thread callback.
func NewFuncCompletion(cb func(res int32)) *Completion {
	return &Completion{cb: cb}
}

// Done reports whether the result arrived.
func (c *Completion) Done() bool { return c.done }

// Result returns the raw kernel result code (negative errno on error).
func (c *Completion) Result() int32 { return c.res }

// Reactor is the io_uring implementation of api.Reactor.
type Reactor struct {
	ring  *ring
	depth uint32
	log   *slog.Logger

	pendingSubmit uint32
	nextTag       uint64
	inflight      map[uint64]*Completion
	byFd          map[int]map[uint64]*Completion

	submitReady *fibersync.EventCount

	wakeFd  int
	wakeBuf [8]byte
	wakeHot atomic.Bool
	closed  bool
}

var _ api.Reactor = (*Reactor)(nil)

// NewReactor creates an io_uring reactor with the given queue depth.
func NewReactor(depth uint32, log *slog.Logger) (*Reactor, error) {
	if depth == 0 {
		depth = DefaultDepth
	}
	if log == nil {
		log = slog.Default()
	}
	rg, err := setupRing(depth)
	if err != nil {
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC)
	if err != nil {
		rg.close()
		return nil, fmt.Errorf("uring: eventfd: %w", err)
	}
	r := &Reactor{
		ring:        rg,
		depth:       depth,
		log:         log,
		nextTag:     1,
		inflight:    make(map[uint64]*Completion),
		byFd:        make(map[int]map[uint64]*Completion),
		submitReady: fibersync.NewEventCount(),
		wakeFd:      wakeFd,
	}
	r.armWake()
	if err := r.ring.enter(r.pendingSubmit, 0, 0); err != nil {
		r.Close()
		return nil, err
	}
	r.pendingSubmit = 0
	return r, nil
}

// armWake keeps one read on the wake eventfd permanently in flight.
func (r *Reactor) armWake() {
	e := sqe{
		opcode:   opRead,
		fd:       int32(r.wakeFd),
		addr:     uint64(uintptr(unsafe.Pointer(&r.wakeBuf[0]))),
		length:   8,
		userData: wakeTag,
	}
	for r.ring.sqSpace() == 0 {
		// drain something, the ring cannot stay full forever
		_ = r.ring.enter(0, 1, enterGetEvents)
	}
	r.ring.push(&e)
	r.pendingSubmit++
}

// Submit queues one operation. Returns api.ErrQueueFull when the ring
// is at depth; the caller suspends on SubmitReady and retries.
// Unit-serialized: loop thread or a fiber of the owning unit only.
func (r *Reactor) Submit(op Op, comp *Completion) error {
	if r.closed {
		return api.ErrClosed
	}
	// one SQ slot stays reserved for the wake read re-arm
	if uint32(len(r.inflight)) >= r.depth-1 || r.ring.sqSpace() <= 1 {
		return api.ErrQueueFull
	}
	tag := r.nextTag
	r.nextTag++
	comp.tag = tag
	comp.fd = op.fd
	comp.keep = op.keep
	comp.done = false

	e := sqe{
		opcode:   op.code,
		fd:       int32(op.fd),
		addr:     op.addr,
		length:   op.length,
		off:      op.off,
		opFlags:  op.opFlags,
		userData: tag,
	}
	r.ring.push(&e)
	r.pendingSubmit++
	r.inflight[tag] = comp
	if op.fd >= 0 {
		m := r.byFd[op.fd]
		if m == nil {
			m = make(map[uint64]*Completion)
			r.byFd[op.fd] = m
		}
		m[tag] = comp
	}
	return nil
}

// SubmitLinked queues a chain: operation k+1 starts only once k
// completed, expressing ordering without an extra round trip through
// the fiber scheduler. Each operation still gets its own completion.
func (r *Reactor) SubmitLinked(ops []Op, comps []*Completion) error {
	if len(ops) != len(comps) {
		panic("uring: SubmitLinked length mismatch")
	}
	if uint32(len(r.inflight))+uint32(len(ops)) >= r.depth-1 ||
		r.ring.sqSpace() <= uint32(len(ops)) {
		return api.ErrQueueFull
	}
	for i := range ops {
		if err := r.Submit(ops[i], comps[i]); err != nil {
			return err
		}
		if i < len(ops)-1 {
			// set the link flag on the entry just pushed
			tail := *r.ring.sqTail
			r.ring.sqes[(tail-1)&r.ring.sqMask].flags |= sqeIOLink
		}
	}
	return nil
}

// SubmitAndWait submits with backpressure and suspends fb until the
// completion arrives, returning the raw result code.
func (r *Reactor) SubmitAndWait(fb *fiber.Fiber, op Op) (int32, error) {
	comp := NewFiberCompletion(fb)
	for {
		err := r.Submit(op, comp)
		if err == nil {
			break
		}
		if err != api.ErrQueueFull {
			return 0, err
		}
		epoch := r.submitReady.PrepareWait()
		r.submitReady.Wait(fb, epoch)
	}
	for !comp.done {
		fb.Suspend()
	}
	return comp.res, nil
}

// SubmitReady is notified after each completion batch frees queue
// space; ErrQueueFull callers park here.
func (r *Reactor) SubmitReady() *fibersync.EventCount { return r.submitReady }

// Inflight returns the number of outstanding submissions.
func (r *Reactor) Inflight() int { return len(r.inflight) }

// Poll flushes queued submissions and drains one completion batch.
// timeoutMs < 0 blocks until at least one completion (a Wake counts).
func (r *Reactor) Poll(timeoutMs int) (int, error) {
	var minComplete uint32
	var flags uintptr
	if timeoutMs < 0 && r.ring.cqReady() == 0 {
		minComplete = 1
		flags = enterGetEvents
	}
	if r.pendingSubmit > 0 || minComplete > 0 {
		if err := r.ring.enter(r.pendingSubmit, minComplete, flags); err != nil {
			return 0, err
		}
		r.pendingSubmit = 0
	}
	n := r.drain()
	if n > 0 {
		r.submitReady.NotifyAll()
	}
	return n, nil
}

func (r *Reactor) drain() int {
	n := 0
	for r.ring.cqReady() > 0 {
		c := r.ring.pop()
		if c.userData == wakeTag {
			r.wakeHot.Store(false)
			r.armWake()
			continue
		}
		comp, ok := r.inflight[c.userData]
		if !ok {
			continue
		}
		delete(r.inflight, c.userData)
		if comp.fd >= 0 {
			if m := r.byFd[comp.fd]; m != nil {
				delete(m, comp.tag)
				if len(m) == 0 {
					delete(r.byFd, comp.fd)
				}
			}
		}
		comp.res = c.res
		comp.keep = nil
		comp.done = true
		n++
		switch {
		case comp.fb != nil:
			comp.fb.Wake()
		case comp.cb != nil:
			comp.cb(c.res)
		}
	}
	return n
}

// Wake unblocks a sleeping Poll. Safe from any goroutine.
func (r *Reactor) Wake() error {
	if r.wakeHot.Swap(true) {
		return nil // a wake is already pending
	}
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	for {
		_, err := unix.Write(r.wakeFd, buf)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

// CancelFd submits ASYNC_CANCEL for every outstanding tag on fd. Each
// cancelled operation still delivers its own completion (-ECANCELED),
// waking its fiber. Unit-serialized. With fb set, queue-full
// backpressure parks the fiber; with fb nil the caller is the loop
// thread and the ring is flushed and drained inline instead.
func (r *Reactor) CancelFd(fb *fiber.Fiber, fd int) {
	m := r.byFd[fd]
	if len(m) == 0 {
		return
	}
	tags := make([]uint64, 0, len(m))
	for tag := range m {
		tags = append(tags, tag)
	}
	// Flush queued SQEs first so a not-yet-entered operation cannot be
	// issued against a descriptor the caller closes right after this.
	if r.pendingSubmit > 0 {
		if err := r.ring.enter(r.pendingSubmit, 0, 0); err != nil {
			r.log.Warn("cancel flush failed", slog.Int("fd", fd), slog.Any("error", err))
			return
		}
		r.pendingSubmit = 0
	}
	for _, tag := range tags {
		comp := NewFuncCompletion(nil)
		for {
			err := r.Submit(cancelOp(tag), comp)
			if err == nil {
				break
			}
			if err != api.ErrQueueFull {
				r.log.Warn("cancel submission failed",
					slog.Int("fd", fd), slog.Uint64("tag", tag), slog.Any("error", err))
				return
			}
			if fb != nil {
				epoch := r.submitReady.PrepareWait()
				r.submitReady.Wait(fb, epoch)
				continue
			}
			// Loop-thread caller: no other thread drains this ring, so
			// flush queued submissions and reap completions inline
			// until a slot frees.
			if eerr := r.ring.enter(r.pendingSubmit, 1, enterGetEvents); eerr != nil {
				r.log.Warn("cancel flush failed",
					slog.Int("fd", fd), slog.Any("error", eerr))
				return
			}
			r.pendingSubmit = 0
			if r.drain() > 0 {
				r.submitReady.NotifyAll()
			}
		}
	}
}

// CloseFd cancels outstanding operations on fd and closes it.
func (r *Reactor) CloseFd(fb *fiber.Fiber, fd int) error {
	r.CancelFd(fb, fd)
	return unix.Close(fd)
}

// Close tears down the ring and the wake descriptor.
func (r *Reactor) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	unix.Close(r.wakeFd)
	r.ring.close()
	return nil
}
