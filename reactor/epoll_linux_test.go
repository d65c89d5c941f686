//go:build linux

// File: reactor/epoll_linux_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/fibrio/api"
)

func TestArmIsOneShot(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	fired := 0
	require.NoError(t, r.Register(fds[0], func(ev api.IOEvents) {
		fired++
	}))

	_, err = unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)

	// Registered but not armed: no dispatch.
	_, err = r.Poll(0)
	require.NoError(t, err)
	require.Equal(t, 0, fired)

	require.NoError(t, r.Arm(fds[0], api.EventRead))
	n, err := r.Poll(100)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, fired)

	// One-shot: readiness stays silent until re-armed.
	_, err = r.Poll(0)
	require.NoError(t, err)
	require.Equal(t, 1, fired)

	require.NoError(t, r.Arm(fds[0], api.EventRead))
	_, err = r.Poll(100)
	require.NoError(t, err)
	require.Equal(t, 2, fired)
}

func TestWakeInterruptsBlockingPoll(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	done := make(chan struct{})
	go func() {
		r.Poll(-1)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, r.Wake())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("wake did not interrupt poll")
	}
}

func TestUnregisterStopsDispatch(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	fired := false
	require.NoError(t, r.Register(fds[0], func(api.IOEvents) { fired = true }))
	require.NoError(t, r.Arm(fds[0], api.EventRead))
	require.NoError(t, r.Unregister(fds[0]))

	_, err = unix.Write(fds[1], []byte("x"))
	require.NoError(t, err)
	_, err = r.Poll(10)
	require.NoError(t, err)
	require.False(t, fired)
}
