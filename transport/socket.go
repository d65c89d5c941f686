// File: transport/socket.go
// Package transport provides the suspend-on-fiber socket abstraction
// connection handlers read and write through. A blocked operation
// suspends only the calling fiber, never the worker thread.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Socket is owned by one scheduling unit and must only be used from
// fibers of that unit; the socket holds its waiter's wake handle by
// reference and closing the descriptor is the single trigger that
// releases both the socket and the fiber parked on it.

package transport

import (
	"errors"
	"io"

	"github.com/momentics/fibrio/api"
	"github.com/momentics/fibrio/fiber"
)

// Socket is a fiber-suspending stream socket.
type Socket interface {
	// ReadSome reads at least one byte, suspending fb until data or an
	// error arrives. Returns io.EOF on orderly peer shutdown.
	ReadSome(fb *fiber.Fiber, buf []byte) (int, error)

	// WriteSome writes some prefix of buf, suspending fb while the
	// send buffer is full.
	WriteSome(fb *fiber.Fiber, buf []byte) (int, error)

	// Shutdown half-closes the socket (unix.SHUT_RD/WR/RDWR).
	Shutdown(how int) error

	// Close cancels outstanding operations and releases the
	// descriptor. Any parked fiber receives exactly one error return.
	Close() error

	// Fd exposes the raw descriptor.
	Fd() int
}

// Listener is a fiber-suspending acceptor. Accept returns the raw
// accepted descriptor so the dispatch layer can adopt it on a
// different unit than the one accepting.
type Listener interface {
	Accept(fb *fiber.Fiber) (int, error)
	Close() error
	Port() uint16
}

// IsConnClosed reports whether err is an expected connection-ending
// condition: orderly EOF, peer abort or reset, or a local close or
// cancellation racing the operation. Handlers exit their request loop
// on these without logging.
func IsConnClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) ||
		errors.Is(err, api.ErrClosed) ||
		errors.Is(err, api.ErrCancelled) {
		return true
	}
	return isConnErrno(err)
}
