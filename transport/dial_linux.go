//go:build linux

// File: transport/dial_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"

	"github.com/momentics/fibrio/api"
	"github.com/momentics/fibrio/fiber"
	"github.com/momentics/fibrio/ioctx"
	"github.com/momentics/fibrio/reactor"
	"github.com/momentics/fibrio/uring"
)

// Dial connects to an IPv4 addr:port and binds the socket to the
// unit's reactor. Must run inside a fiber of c's unit; the fiber is
// suspended while the connection is in flight.
func Dial(c *ioctx.Context, fb *fiber.Fiber, addrPort string) (Socket, error) {
	ap, err := netip.ParseAddrPort(addrPort)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %q: %w", addrPort, err)
	}
	if !ap.Addr().Is4() {
		return nil, fmt.Errorf("transport: dial %q: IPv4 only", addrPort)
	}

	switch r := c.Reactor().(type) {
	case *reactor.Reactor:
		return dialEpoll(r, fb, ap)
	case *uring.Reactor:
		return dialUring(r, fb, ap)
	default:
		return nil, fmt.Errorf("transport: unsupported reactor %T", r)
	}
}

func dialEpoll(r *reactor.Reactor, fb *fiber.Fiber, ap netip.AddrPort) (Socket, error) {
	fd, err := unix.Socket(unix.AF_INET,
		unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: socket: %w", err)
	}
	sa := &unix.SockaddrInet4{Port: int(ap.Port()), Addr: ap.Addr().As4()}
	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: connect %s: %w", ap, err)
	}

	s, aerr := adoptEpoll(r, fd)
	if aerr != nil {
		unix.Close(fd)
		return nil, aerr
	}
	if err == unix.EINPROGRESS {
		if werr := s.wait(fb, api.EventWrite); werr != nil {
			s.Close()
			return nil, werr
		}
		soerr, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if gerr != nil {
			s.Close()
			return nil, fmt.Errorf("transport: connect %s: %w", ap, gerr)
		}
		if soerr != 0 {
			s.Close()
			return nil, fmt.Errorf("transport: connect %s: %w", ap, unix.Errno(soerr))
		}
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return s, nil
}

func dialUring(r *uring.Reactor, fb *fiber.Fiber, ap netip.AddrPort) (Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("transport: socket: %w", err)
	}
	rsa := unix.RawSockaddrInet4{Family: unix.AF_INET, Addr: ap.Addr().As4()}
	port := ap.Port()
	rsa.Port = port<<8 | port>>8 // network byte order

	res, serr := r.SubmitAndWait(fb, uring.Connect(fd, &rsa))
	if serr != nil {
		unix.Close(fd)
		return nil, serr
	}
	if res < 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: connect %s: %w", ap, unix.Errno(-res))
	}
	return adoptUring(r, fd)
}
