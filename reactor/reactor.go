// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package reactor implements the readiness-based OS reactor backing a
// scheduling unit: Linux epoll with an eventfd wake descriptor. For
// socket-dominated workloads the io_uring backend in package uring is
// the lower-overhead alternative.
//
// Registration and arming are unit-serialized operations: they must be
// called from the owning unit's loop thread or from one of its fibers,
// never from a foreign thread. Wake is the only cross-thread entry.
package reactor

import "github.com/momentics/fibrio/api"

// FDCallback is invoked by Poll for a ready descriptor. It runs on the
// unit's loop thread, must be trivial and must never suspend. A panic
// here is fatal: the scheduler cannot recover a half-dispatched
// readiness pass.
type FDCallback func(events api.IOEvents)

// New creates the platform reactor.
func New() (*Reactor, error) {
	return newPlatform()
}
