// File: fake/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package fake provides an in-process reactor for tests that exercise
// units, fibers and pools without touching epoll or io_uring.
package fake

import (
	"sync/atomic"
	"time"

	"github.com/momentics/fibrio/api"
)

// Reactor blocks on a channel instead of a kernel poller. Wake makes
// the next (or current) Poll return, which is all a unit loop needs.
type Reactor struct {
	wake   chan struct{}
	closed atomic.Bool
	polls  atomic.Int64
	wakes  atomic.Int64
}

var _ api.Reactor = (*Reactor)(nil)

func NewReactor() *Reactor {
	return &Reactor{wake: make(chan struct{}, 1)}
}

func (r *Reactor) Poll(timeoutMs int) (int, error) {
	r.polls.Add(1)
	if r.closed.Load() {
		return 0, api.ErrClosed
	}
	switch {
	case timeoutMs == 0:
		select {
		case <-r.wake:
			return 1, nil
		default:
			return 0, nil
		}
	case timeoutMs < 0:
		<-r.wake
		return 1, nil
	default:
		select {
		case <-r.wake:
			return 1, nil
		case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
			return 0, nil
		}
	}
}

func (r *Reactor) Wake() error {
	r.wakes.Add(1)
	select {
	case r.wake <- struct{}{}:
	default:
	}
	return nil
}

func (r *Reactor) Close() error {
	if r.closed.CompareAndSwap(false, true) {
		r.Wake()
	}
	return nil
}

// Polls reports how many times Poll ran, for assertions on loop
// behavior.
func (r *Reactor) Polls() int64 { return r.polls.Load() }

// Wakes reports how many Wake calls were made.
func (r *Reactor) Wakes() int64 { return r.wakes.Load() }
