//go:build linux

// File: fibrio_linux_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package fibrio

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/fibrio/fiber"
	"github.com/momentics/fibrio/ioctx"
	"github.com/momentics/fibrio/server"
	"github.com/momentics/fibrio/transport"
)

type echoListener struct{}

func (echoListener) NewConnection(c *ioctx.Context) server.Handler { return echoHandler{} }

type echoHandler struct{}

func (echoHandler) HandleRequests(fb *fiber.Fiber, sock transport.Socket) error {
	buf := make([]byte, 1024)
	for {
		n, err := sock.ReadSome(fb, buf)
		if err != nil {
			return err
		}
		for off := 0; off < n; {
			w, werr := sock.WriteSome(fb, buf[off:n])
			if werr != nil {
				return werr
			}
			off += w
		}
	}
}

func TestRuntimeEndToEnd(t *testing.T) {
	rt, err := New(Config{Workers: 2})
	require.NoError(t, err)

	port, err := rt.AddListener(0, echoListener{})
	require.NoError(t, err)
	require.NoError(t, rt.Run())

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 2*time.Second)
	require.NoError(t, err)
	_, err = conn.Write([]byte("roundtrip"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 9)
	read := 0
	for read < len(buf) {
		n, rerr := conn.Read(buf[read:])
		require.NoError(t, rerr)
		read += n
	}
	require.Equal(t, "roundtrip", string(buf))
	conn.Close()

	rt.Shutdown(true)
}

func TestRuntimeRejectsUnknownBackend(t *testing.T) {
	_, err := New(Config{Backend: Backend("dpdk")})
	require.Error(t, err)
}
