//go:build linux

// File: reactor/epoll_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll reactor. Descriptors are registered once and armed
// one-shot per wait: a suspend-on-fiber socket arms its interest right
// before parking, and the readiness callback fires at most once per
// arming. The eventfd is the cross-thread wake path.

package reactor

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/momentics/fibrio/api"
)

const maxEvents = 128

// Reactor is the epoll implementation of api.Reactor.
type Reactor struct {
	epfd      int
	wakeFd    int
	callbacks map[int]FDCallback
	events    [maxEvents]unix.EpollEvent
	closed    bool
}

var _ api.Reactor = (*Reactor)(nil)

func newPlatform() (*Reactor, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("reactor: eventfd: %w", err)
	}
	r := &Reactor{
		epfd:      epfd,
		wakeFd:    wakeFd,
		callbacks: make(map[int]FDCallback),
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		r.Close()
		return nil, fmt.Errorf("reactor: register wake fd: %w", err)
	}
	return r, nil
}

// Register adds fd to the interest set with no events armed. The
// callback stays attached until Unregister.
func (r *Reactor) Register(fd int, cb FDCallback) error {
	ev := unix.EpollEvent{Events: 0, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl add fd=%d: %w", fd, err)
	}
	r.callbacks[fd] = cb
	return nil
}

// Arm enables one-shot interest in the given events for fd.
func (r *Reactor) Arm(fd int, events api.IOEvents) error {
	var mask uint32 = unix.EPOLLONESHOT
	if events&api.EventRead != 0 {
		mask |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if events&api.EventWrite != 0 {
		mask |= unix.EPOLLOUT
	}
	ev := unix.EpollEvent{Events: mask, Fd: int32(fd)}
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl mod fd=%d: %w", fd, err)
	}
	return nil
}

// Unregister removes fd from the interest set.
func (r *Reactor) Unregister(fd int) error {
	delete(r.callbacks, fd)
	if err := unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("reactor: epoll_ctl del fd=%d: %w", fd, err)
	}
	return nil
}

// Poll drains one batch of ready events. timeoutMs < 0 blocks until an
// event or a Wake arrives. EINTR is benign and reports zero events.
func (r *Reactor) Poll(timeoutMs int) (int, error) {
	n, err := unix.EpollWait(r.epfd, r.events[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("reactor: epoll_wait: %w", err)
	}
	dispatched := 0
	for i := 0; i < n; i++ {
		ev := r.events[i]
		fd := int(ev.Fd)
		if fd == r.wakeFd {
			r.drainWake()
			continue
		}
		cb, ok := r.callbacks[fd]
		if !ok {
			continue
		}
		var events api.IOEvents
		if ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0 {
			events |= api.EventRead
		}
		if ev.Events&unix.EPOLLOUT != 0 {
			events |= api.EventWrite
		}
		if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			events |= api.EventError
		}
		cb(events)
		dispatched++
	}
	return dispatched, nil
}

// Wake unblocks a sleeping Poll. Safe from any goroutine.
func (r *Reactor) Wake() error {
	var one uint64 = 1
	buf := (*[8]byte)(unsafe.Pointer(&one))[:]
	for {
		_, err := unix.Write(r.wakeFd, buf)
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			// counter saturated, a wake is already pending
			return nil
		}
		return err
	}
}

func (r *Reactor) drainWake() {
	var buf [8]byte
	for {
		_, err := unix.Read(r.wakeFd, buf[:])
		if err != nil {
			return
		}
	}
}

// Close releases the epoll and eventfd descriptors.
func (r *Reactor) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	unix.Close(r.wakeFd)
	return unix.Close(r.epfd)
}
