// File: ioctx/pool_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ioctx

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/momentics/fibrio/api"
	"github.com/momentics/fibrio/fake"
	"github.com/momentics/fibrio/fiber"
	"github.com/momentics/fibrio/fibersync"
)

func newFakePool(t *testing.T, n int) *Pool {
	t.Helper()
	p, err := NewPool(n, func() (api.Reactor, error) { return fake.NewReactor(), nil })
	require.NoError(t, err)
	p.Run()
	t.Cleanup(p.Stop)
	return p
}

func TestAwaitRunsOnLoopThread(t *testing.T) {
	p := newFakePool(t, 2)
	for i := 0; i < p.Size(); i++ {
		c := p.At(i)
		var sawIdx int
		require.NoError(t, c.Await(func() { sawIdx = c.Index() }))
		require.Equal(t, i, sawIdx)
	}
}

func TestAsyncPreservesSubmissionOrder(t *testing.T) {
	p := newFakePool(t, 1)
	c := p.At(0)

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.NoError(t, c.Async(func() { got = append(got, i) }))
	}
	require.NoError(t, c.Await(func() {}))
	require.Len(t, got, 100)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestAwaitResultReturnsValue(t *testing.T) {
	p := newFakePool(t, 1)
	v, err := AwaitResult(p.At(0), func() int { return 42 })
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestAwaitInlineOnOwnLoop(t *testing.T) {
	p := newFakePool(t, 1)
	c := p.At(0)
	nested := false
	require.NoError(t, c.Await(func() {
		// Await from the loop thread runs inline instead of deadlocking
		// on the unit's own queue.
		_ = c.Await(func() { nested = true })
	}))
	require.True(t, nested)
}

func TestLaunchFiberJoin(t *testing.T) {
	p := newFakePool(t, 1)
	c := p.At(0)

	ran := atomic.Bool{}
	f, err := c.LaunchFiber(func(fb *fiber.Fiber) {
		fb.Yield()
		ran.Store(true)
	})
	require.NoError(t, err)
	f.Join()
	require.True(t, ran.Load())
}

func TestFiberSuspendWakeAcrossUnits(t *testing.T) {
	p := newFakePool(t, 2)
	a, b := p.At(0), p.At(1)

	bc := fibersync.NewBlockingCounter(1)
	released := atomic.Bool{}

	fa, err := a.LaunchFiber(func(fb *fiber.Fiber) {
		bc.Wait(fb)
		released.Store(true)
	})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	require.False(t, released.Load())

	require.NoError(t, b.AsyncFiber(func(fb *fiber.Fiber) { bc.Dec() }))
	fa.Join()
	require.True(t, released.Load())
}

func TestRoundRobinCursorCoversAllUnits(t *testing.T) {
	p := newFakePool(t, 3)
	seen := map[int]bool{}
	for i := 0; i < p.Size(); i++ {
		seen[p.GetNextContext().Index()] = true
	}
	require.Len(t, seen, 3)
}

func TestAwaitOnAllRunsExactlyOncePerUnit(t *testing.T) {
	p := newFakePool(t, 4)
	var counts [4]atomic.Int32
	p.AwaitOnAll(func(c *Context) {
		counts[c.Index()].Add(1)
	})
	for i := range counts {
		require.Equal(t, int32(1), counts[i].Load())
	}
}

func TestAwaitFiberOnAllRunsOnEveryUnit(t *testing.T) {
	p := newFakePool(t, 3)
	var mu sync.Mutex
	seen := map[int]bool{}
	p.AwaitFiberOnAll(func(c *Context, fb *fiber.Fiber) {
		fb.Yield()
		mu.Lock()
		seen[c.Index()] = true
		mu.Unlock()
	})
	require.Len(t, seen, 3)
}

func TestAwaitFiberOnAllSeriallyIsExclusive(t *testing.T) {
	p := newFakePool(t, 4)
	var inFlight atomic.Int32
	var maxSeen atomic.Int32

	p.AwaitFiberOnAllSerially(func(c *Context, fb *fiber.Fiber) {
		n := inFlight.Add(1)
		if n > maxSeen.Load() {
			maxSeen.Store(n)
		}
		fb.Yield()
		inFlight.Add(-1)
	})
	require.Equal(t, int32(1), maxSeen.Load(), "serial visitation must never overlap")
}

func TestStopDrainsQueuedWork(t *testing.T) {
	p, err := NewPool(1, func() (api.Reactor, error) { return fake.NewReactor(), nil })
	require.NoError(t, err)
	p.Run()

	c := p.At(0)
	var ran atomic.Int32
	for i := 0; i < 50; i++ {
		require.NoError(t, c.Async(func() { ran.Add(1) }))
	}
	p.Stop()
	require.Equal(t, int32(50), ran.Load())
	require.True(t, c.Drained())
	require.ErrorIs(t, c.Async(func() {}), api.ErrStopped)
}

func TestStopWaitsForLiveFibers(t *testing.T) {
	p, err := NewPool(1, func() (api.Reactor, error) { return fake.NewReactor(), nil })
	require.NoError(t, err)
	p.Run()

	var steps atomic.Int32
	require.NoError(t, p.At(0).AsyncFiber(func(fb *fiber.Fiber) {
		for i := 0; i < 10; i++ {
			steps.Add(1)
			fb.Yield()
		}
	}))
	p.Stop()
	require.Equal(t, int32(10), steps.Load(), "stop must let runnable fibers finish")
}
