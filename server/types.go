// File: server/types.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/momentics/fibrio/fiber"
	"github.com/momentics/fibrio/ioctx"
	"github.com/momentics/fibrio/transport"
)

// Handler serves one accepted connection. HandleRequests runs inside a
// dedicated fiber on the unit that owns the socket; returning ends the
// connection and releases it from the server's table.
type Handler interface {
	HandleRequests(fb *fiber.Fiber, sock transport.Socket) error
}

// Listener builds a Handler per accepted connection. NewConnection is
// called on the unit chosen to own the connection, so per-unit state
// may be captured without locks.
type Listener interface {
	NewConnection(c *ioctx.Context) Handler
}

// PreShutdowner is implemented by listeners that want a callback
// before the server starts closing connections.
type PreShutdowner interface {
	PreShutdown()
}

// PostShutdowner is implemented by listeners that want a callback
// after all their connections have drained.
type PostShutdowner interface {
	PostShutdown()
}
