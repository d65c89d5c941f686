// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral reactor contract shared by the epoll readiness
// backend (reactor/) and the io_uring completion backend (uring/).
// A scheduling unit drives exactly one Reactor from its loop thread.

package api

// Reactor is the OS event source owned by one scheduling unit.
//
// Poll drains one batch of ready events or completions, invoking the
// callbacks registered with the concrete backend. Callbacks must be
// trivial and must never suspend; they run on the unit's loop thread.
// timeoutMs < 0 blocks until at least one event arrives, 0 returns
// immediately after a single non-blocking drain.
type Reactor interface {
	Poll(timeoutMs int) (n int, err error)

	// Wake unblocks a Poll that is sleeping. Safe from any goroutine;
	// this is how foreign submissions reach a sleeping unit.
	Wake() error

	Close() error
}

// IOEvents is a readiness bit set reported by the epoll backend.
type IOEvents uint32

const (
	EventRead IOEvents = 1 << iota
	EventWrite
	EventError
)
