//go:build linux

// File: transport/adopt_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"fmt"

	"github.com/momentics/fibrio/ioctx"
	"github.com/momentics/fibrio/reactor"
	"github.com/momentics/fibrio/uring"
)

// Adopt binds an already-open descriptor to the unit's reactor and
// returns the matching Socket flavor. Must run on the unit that owns
// c's loop (use c.Await or a fiber on that unit).
func Adopt(c *ioctx.Context, fd int) (Socket, error) {
	switch r := c.Reactor().(type) {
	case *reactor.Reactor:
		return adoptEpoll(r, fd)
	case *uring.Reactor:
		return adoptUring(r, fd)
	default:
		return nil, fmt.Errorf("transport: unsupported reactor %T", r)
	}
}

// NewListener opens a TCP listener on port (0 for an ephemeral port)
// bound to the unit's reactor. Must run on the unit that owns c's loop.
func NewListener(c *ioctx.Context, port uint16) (Listener, error) {
	switch r := c.Reactor().(type) {
	case *reactor.Reactor:
		return newEpollListener(r, port)
	case *uring.Reactor:
		return newUringListener(r, port)
	default:
		return nil, fmt.Errorf("transport: unsupported reactor %T", r)
	}
}
