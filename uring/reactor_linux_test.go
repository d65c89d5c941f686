//go:build linux

// File: uring/reactor_linux_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package uring

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/momentics/fibrio/api"
)

func newTestReactor(t *testing.T, depth uint32) *Reactor {
	t.Helper()
	r, err := NewReactor(depth, slog.Default())
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func pollUntil(t *testing.T, r *Reactor, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		if _, err := r.Poll(100); err != nil {
			t.Fatalf("poll: %v", err)
		}
	}
	t.Fatal("condition not reached")
}

func TestNopCompletes(t *testing.T) {
	r := newTestReactor(t, 8)

	comp := NewFuncCompletion(nil)
	require.NoError(t, r.Submit(Nop(), comp))
	pollUntil(t, r, comp.Done)
	require.Equal(t, int32(0), comp.Result())
	require.Equal(t, 0, r.Inflight())
}

func TestTimeoutCompletesWithETime(t *testing.T) {
	r := newTestReactor(t, 8)

	ts := unix.NsecToTimespec((10 * time.Millisecond).Nanoseconds())
	comp := NewFuncCompletion(nil)
	require.NoError(t, r.Submit(Timeout(&ts), comp))
	pollUntil(t, r, comp.Done)
	require.Equal(t, -int32(unix.ETIME), comp.Result())
}

func TestLinkedChainCompletesInOrder(t *testing.T) {
	r := newTestReactor(t, 16)

	var order []int
	ops := make([]Op, 3)
	comps := make([]*Completion, 3)
	for i := range ops {
		i := i
		ops[i] = Nop()
		comps[i] = NewFuncCompletion(func(int32) { order = append(order, i) })
	}
	require.NoError(t, r.SubmitLinked(ops, comps))
	pollUntil(t, r, func() bool { return len(order) == 3 })
	require.Equal(t, []int{0, 1, 2}, order)
}

func TestSubmitBackpressure(t *testing.T) {
	r := newTestReactor(t, 8)

	// Fill the submission queue without flushing; one slot stays
	// reserved for the wake read.
	accepted := 0
	var comps []*Completion
	for {
		comp := NewFuncCompletion(nil)
		err := r.Submit(Nop(), comp)
		if err == api.ErrQueueFull {
			break
		}
		require.NoError(t, err)
		comps = append(comps, comp)
		accepted++
		require.Less(t, accepted, 16, "queue never filled")
	}
	require.Greater(t, accepted, 0)

	pollUntil(t, r, func() bool {
		for _, c := range comps {
			if !c.Done() {
				return false
			}
		}
		return true
	})
	// Space freed: submission works again.
	comp := NewFuncCompletion(nil)
	require.NoError(t, r.Submit(Nop(), comp))
	pollUntil(t, r, comp.Done)
}

func TestCancelFdDeliversECanceled(t *testing.T) {
	r := newTestReactor(t, 16)

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	t.Cleanup(func() { unix.Close(fds[0]); unix.Close(fds[1]) })

	buf := make([]byte, 16)
	comp := NewFuncCompletion(nil)
	require.NoError(t, r.Submit(Read(fds[0], buf, 0), comp))
	_, err := r.Poll(0) // flush the read submission
	require.NoError(t, err)

	r.CancelFd(nil, fds[0])
	pollUntil(t, r, comp.Done)
	require.Equal(t, -int32(unix.ECANCELED), comp.Result())
	require.Equal(t, 0, r.Inflight())
}

func TestCancelFdReapsInlineWhenQueueFull(t *testing.T) {
	r := newTestReactor(t, 8)

	var fds [2]int
	require.NoError(t, unix.Pipe(fds[:]))
	t.Cleanup(func() { unix.Close(fds[0]); unix.Close(fds[1]) })

	// Saturate the ring with reads that never complete on their own.
	bufs := make([][]byte, 6)
	comps := make([]*Completion, 6)
	for i := range comps {
		bufs[i] = make([]byte, 8)
		comps[i] = NewFuncCompletion(nil)
		require.NoError(t, r.Submit(Read(fds[0], bufs[i], 0), comps[i]))
	}
	_, err := r.Poll(0)
	require.NoError(t, err)

	// Cancel submissions now trip ErrQueueFull; the nil-fiber path
	// must flush and reap inline because no Poll can run meanwhile.
	done := make(chan struct{})
	go func() {
		r.CancelFd(nil, fds[0])
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("CancelFd stalled with the queue full")
	}
	pollUntil(t, r, func() bool { return r.Inflight() == 0 })
	for _, c := range comps {
		require.Equal(t, -int32(unix.ECANCELED), c.Result())
	}
}

func TestWakeUnblocksPoll(t *testing.T) {
	r := newTestReactor(t, 8)

	done := make(chan struct{})
	go func() {
		// Blocking poll with nothing outstanding returns only on Wake.
		r.Poll(-1)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, r.Wake())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("wake did not unblock poll")
	}
}
