//go:build linux

// File: transport/epoll_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Readiness-based socket and listener over the epoll reactor. The
// descriptor is nonblocking; EAGAIN arms one-shot interest and parks
// the fiber, the readiness callback wakes it.

package transport

import (
	"errors"
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/momentics/fibrio/api"
	"github.com/momentics/fibrio/fiber"
	"github.com/momentics/fibrio/reactor"
)

func isConnErrno(err error) bool {
	return errors.Is(err, unix.ECONNRESET) ||
		errors.Is(err, unix.ECONNABORTED) ||
		errors.Is(err, unix.EPIPE) ||
		errors.Is(err, unix.ENOTCONN) ||
		errors.Is(err, unix.ECANCELED)
}

// armWaiter is the single parked fiber of a socket. Unit-serialized:
// the readiness callback, the parked fiber and Close all run
// interleaved on one unit, never concurrently.
type armWaiter struct {
	fb    *fiber.Fiber
	fired bool
}

type epollSocket struct {
	fd     int
	r      *reactor.Reactor
	arm    *armWaiter
	closed bool
}

func adoptEpoll(r *reactor.Reactor, fd int) (*epollSocket, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("transport: set nonblock: %w", err)
	}
	s := &epollSocket{fd: fd, r: r}
	if err := r.Register(fd, s.onReady); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *epollSocket) onReady(api.IOEvents) {
	if w := s.arm; w != nil {
		s.arm = nil
		w.fired = true
		w.fb.Wake()
	}
}

func (s *epollSocket) wait(fb *fiber.Fiber, ev api.IOEvents) error {
	w := &armWaiter{fb: fb}
	s.arm = w
	if err := s.r.Arm(s.fd, ev); err != nil {
		s.arm = nil
		return err
	}
	for !w.fired && !s.closed {
		fb.Suspend()
	}
	if s.closed {
		return api.ErrClosed
	}
	return nil
}

func (s *epollSocket) ReadSome(fb *fiber.Fiber, buf []byte) (int, error) {
	for {
		if s.closed {
			return 0, api.ErrClosed
		}
		n, err := unix.Read(s.fd, buf)
		switch {
		case err == nil && n == 0:
			return 0, io.EOF
		case err == nil:
			return n, nil
		case err == unix.EAGAIN:
			if werr := s.wait(fb, api.EventRead); werr != nil {
				return 0, werr
			}
		case err == unix.EINTR:
			// retry
		default:
			return 0, fmt.Errorf("transport: read fd=%d: %w", s.fd, err)
		}
	}
}

func (s *epollSocket) WriteSome(fb *fiber.Fiber, buf []byte) (int, error) {
	for {
		if s.closed {
			return 0, api.ErrClosed
		}
		n, err := unix.Write(s.fd, buf)
		switch {
		case err == nil:
			return n, nil
		case err == unix.EAGAIN:
			if werr := s.wait(fb, api.EventWrite); werr != nil {
				return 0, werr
			}
		case err == unix.EINTR:
			// retry
		default:
			return 0, fmt.Errorf("transport: write fd=%d: %w", s.fd, err)
		}
	}
}

func (s *epollSocket) Shutdown(how int) error {
	return unix.Shutdown(s.fd, how)
}

func (s *epollSocket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if w := s.arm; w != nil {
		s.arm = nil
		w.fb.Wake()
	}
	_ = s.r.Unregister(s.fd)
	return unix.Close(s.fd)
}

func (s *epollSocket) Fd() int { return s.fd }

type epollListener struct {
	fd     int
	r      *reactor.Reactor
	arm    *armWaiter
	closed bool
	port   uint16
}

func newEpollListener(r *reactor.Reactor, port uint16) (*epollListener, error) {
	fd, err := listenTCP(port)
	if err != nil {
		return nil, err
	}
	l := &epollListener{fd: fd, r: r}
	if l.port, err = boundPort(fd); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if err := r.Register(fd, l.onReady); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return l, nil
}

func (l *epollListener) onReady(api.IOEvents) {
	if w := l.arm; w != nil {
		l.arm = nil
		w.fired = true
		w.fb.Wake()
	}
}

// Accept returns one accepted descriptor, suspending fb while none is
// pending. After Close it returns api.ErrClosed, the benign condition
// that ends the accept loop.
func (l *epollListener) Accept(fb *fiber.Fiber) (int, error) {
	for {
		if l.closed {
			return -1, api.ErrClosed
		}
		nfd, _, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		switch {
		case err == nil:
			_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
			return nfd, nil
		case err == unix.EAGAIN:
			w := &armWaiter{fb: fb}
			l.arm = w
			if aerr := l.r.Arm(l.fd, api.EventRead); aerr != nil {
				l.arm = nil
				return -1, aerr
			}
			for !w.fired && !l.closed {
				fb.Suspend()
			}
		case err == unix.ECONNABORTED || err == unix.EINTR:
			// connection died between SYN and accept, retry
		default:
			if l.closed {
				return -1, api.ErrClosed
			}
			return -1, fmt.Errorf("transport: accept: %w", err)
		}
	}
}

func (l *epollListener) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	if w := l.arm; w != nil {
		l.arm = nil
		w.fb.Wake()
	}
	_ = l.r.Unregister(l.fd)
	return unix.Close(l.fd)
}

func (l *epollListener) Port() uint16 { return l.port }

// listenTCP opens a nonblocking listening socket on the given port
// (0 picks an ephemeral one).
func listenTCP(port uint16) (int, error) {
	fd, err := unix.Socket(unix.AF_INET,
		unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, fmt.Errorf("transport: socket: %w", err)
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	sa := &unix.SockaddrInet4{Port: int(port)}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("transport: bind port=%d: %w", port, err)
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("transport: listen: %w", err)
	}
	return fd, nil
}

func boundPort(fd int) (uint16, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, fmt.Errorf("transport: getsockname: %w", err)
	}
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		return uint16(in4.Port), nil
	}
	return 0, fmt.Errorf("transport: unexpected sockaddr family")
}
