//go:build !linux

// File: transport/transport_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"github.com/momentics/fibrio/api"
	"github.com/momentics/fibrio/fiber"
	"github.com/momentics/fibrio/ioctx"
)

func Adopt(c *ioctx.Context, fd int) (Socket, error) {
	return nil, api.ErrNotSupported
}

func Dial(c *ioctx.Context, fb *fiber.Fiber, addrPort string) (Socket, error) {
	return nil, api.ErrNotSupported
}

func NewListener(c *ioctx.Context, port uint16) (Listener, error) {
	return nil, api.ErrNotSupported
}

func isConnErrno(err error) bool { return false }
