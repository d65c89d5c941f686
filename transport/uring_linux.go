//go:build linux

// File: transport/uring_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Completion-based socket and listener over the io_uring reactor.
// Each call submits one SQE and suspends the fiber until its CQE
// lands; a negative result carries the kernel errno.

package transport

import (
	"fmt"
	"io"

	"golang.org/x/sys/unix"

	"github.com/momentics/fibrio/api"
	"github.com/momentics/fibrio/fiber"
	"github.com/momentics/fibrio/uring"
)

type uringSocket struct {
	fd     int
	r      *uring.Reactor
	closed bool
}

func adoptUring(r *uring.Reactor, fd int) (*uringSocket, error) {
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return &uringSocket{fd: fd, r: r}, nil
}

func resErr(op string, fd int, res int32) error {
	errno := unix.Errno(-res)
	if errno == unix.ECANCELED {
		return api.ErrCancelled
	}
	return fmt.Errorf("transport: %s fd=%d: %w", op, fd, errno)
}

func (s *uringSocket) ReadSome(fb *fiber.Fiber, buf []byte) (int, error) {
	res, err := s.r.SubmitAndWait(fb, uring.Recv(s.fd, buf))
	if err != nil {
		return 0, err
	}
	if res < 0 {
		return 0, resErr("recv", s.fd, res)
	}
	if res == 0 {
		return 0, io.EOF
	}
	return int(res), nil
}

func (s *uringSocket) WriteSome(fb *fiber.Fiber, buf []byte) (int, error) {
	res, err := s.r.SubmitAndWait(fb, uring.Send(s.fd, buf))
	if err != nil {
		return 0, err
	}
	if res < 0 {
		return 0, resErr("send", s.fd, res)
	}
	return int(res), nil
}

func (s *uringSocket) Shutdown(how int) error {
	return unix.Shutdown(s.fd, how)
}

// Close cancels outstanding submissions on the descriptor before
// closing it, so a fiber parked in ReadSome observes ErrCancelled
// rather than a spurious result on a reused fd.
func (s *uringSocket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.r.CloseFd(nil, s.fd)
}

func (s *uringSocket) Fd() int { return s.fd }

type uringListener struct {
	fd     int
	r      *uring.Reactor
	port   uint16
	closed bool
}

func newUringListener(r *uring.Reactor, port uint16) (*uringListener, error) {
	fd, err := listenTCP(port)
	if err != nil {
		return nil, err
	}
	l := &uringListener{fd: fd, r: r}
	if l.port, err = boundPort(fd); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return l, nil
}

func (l *uringListener) Accept(fb *fiber.Fiber) (int, error) {
	var sa unix.RawSockaddrAny
	var saLen uint32
	for {
		if l.closed {
			return -1, api.ErrClosed
		}
		saLen = uint32(unix.SizeofSockaddrAny)
		res, err := l.r.SubmitAndWait(fb, uring.Accept(l.fd, &sa, &saLen))
		if err != nil {
			return -1, err
		}
		if res < 0 {
			errno := unix.Errno(-res)
			switch errno {
			case unix.ECONNABORTED, unix.EINTR:
				continue
			case unix.ECANCELED:
				return -1, api.ErrClosed
			}
			return -1, fmt.Errorf("transport: accept: %w", errno)
		}
		return int(res), nil
	}
}

func (l *uringListener) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return l.r.CloseFd(nil, l.fd)
}

func (l *uringListener) Port() uint16 { return l.port }
