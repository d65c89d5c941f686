//go:build linux

// File: transport/transport_linux_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/fibrio/api"
	"github.com/momentics/fibrio/fiber"
	"github.com/momentics/fibrio/ioctx"
	"github.com/momentics/fibrio/reactor"
	"github.com/momentics/fibrio/uring"
)

func newUnit(t *testing.T) *ioctx.Pool {
	t.Helper()
	p, err := ioctx.NewPool(1, func() (api.Reactor, error) { return reactor.New() })
	require.NoError(t, err)
	p.Run()
	t.Cleanup(p.Stop)
	return p
}

func TestListenerAcceptAndEcho(t *testing.T) {
	pool := newUnit(t)
	c := pool.At(0)

	var l Listener
	var lerr error
	require.NoError(t, c.Await(func() { l, lerr = NewListener(c, 0) }))
	require.NoError(t, lerr)

	served := make(chan error, 1)
	require.NoError(t, c.AsyncFiber(func(fb *fiber.Fiber) {
		fd, err := l.Accept(fb)
		if err != nil {
			served <- err
			return
		}
		sock, err := Adopt(c, fd)
		if err != nil {
			served <- err
			return
		}
		defer sock.Close()
		buf := make([]byte, 64)
		n, err := sock.ReadSome(fb, buf)
		if err != nil {
			served <- err
			return
		}
		_, err = sock.WriteSome(fb, buf[:n])
		served <- err
	}))

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", l.Port()), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("hello"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 5)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))
	require.NoError(t, <-served)

	require.NoError(t, c.Await(func() { l.Close() }))
}

func TestReadSomeReportsPeerClose(t *testing.T) {
	pool := newUnit(t)
	c := pool.At(0)

	var l Listener
	var lerr error
	require.NoError(t, c.Await(func() { l, lerr = NewListener(c, 0) }))
	require.NoError(t, lerr)

	result := make(chan error, 1)
	require.NoError(t, c.AsyncFiber(func(fb *fiber.Fiber) {
		fd, err := l.Accept(fb)
		if err != nil {
			result <- err
			return
		}
		sock, err := Adopt(c, fd)
		if err != nil {
			result <- err
			return
		}
		defer sock.Close()
		_, err = sock.ReadSome(fb, make([]byte, 16))
		result <- err
	}))

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", l.Port()), 2*time.Second)
	require.NoError(t, err)
	conn.Close()

	err = <-result
	require.True(t, IsConnClosed(err), "peer close must classify as closed, got %v", err)
	require.NoError(t, c.Await(func() { l.Close() }))
}

func newUringUnit(t *testing.T) *ioctx.Pool {
	t.Helper()
	if probe, err := uring.NewReactor(8, slog.Default()); err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	} else {
		probe.Close()
	}
	p, err := ioctx.NewPool(1, func() (api.Reactor, error) {
		return uring.NewReactor(uring.DefaultDepth, slog.Default())
	})
	require.NoError(t, err)
	p.Run()
	t.Cleanup(p.Stop)
	return p
}

func TestUringCloseWakesParkedReader(t *testing.T) {
	pool := newUringUnit(t)
	c := pool.At(0)

	fds, sperr := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, sperr)
	t.Cleanup(func() { unix.Close(fds[1]) })

	var sock Socket
	var aerr error
	require.NoError(t, c.Await(func() { sock, aerr = Adopt(c, fds[0]) }))
	require.NoError(t, aerr)

	// The reader fiber parks with its RECV in flight; FIFO admission
	// guarantees it runs before the closing fiber on the same unit.
	result := make(chan error, 1)
	require.NoError(t, c.AsyncFiber(func(fb *fiber.Fiber) {
		_, err := sock.ReadSome(fb, make([]byte, 16))
		result <- err
	}))
	closed := make(chan error, 1)
	require.NoError(t, c.AsyncFiber(func(fb *fiber.Fiber) {
		closed <- sock.Close()
	}))

	require.NoError(t, <-closed)
	select {
	case err := <-result:
		require.ErrorIs(t, err, api.ErrCancelled)
		require.True(t, IsConnClosed(err))
	case <-time.After(3 * time.Second):
		t.Fatal("reader fiber did not resume after close")
	}
}

func TestIsConnClosedClassification(t *testing.T) {
	require.True(t, IsConnClosed(io.EOF))
	require.True(t, IsConnClosed(api.ErrClosed))
	require.True(t, IsConnClosed(api.ErrCancelled))
	require.True(t, IsConnClosed(fmt.Errorf("transport: read fd=3: %w", unix.ECONNRESET)))
	require.True(t, IsConnClosed(fmt.Errorf("transport: write fd=3: %w", unix.EPIPE)))
	require.False(t, IsConnClosed(fmt.Errorf("transport: read fd=3: %w", unix.EBADF)))
	require.False(t, IsConnClosed(nil))
}
