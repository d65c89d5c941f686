// File: internal/concurrency/ring_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRingFIFO(t *testing.T) {
	r := NewRing[int](8)
	for i := 0; i < 8; i++ {
		require.True(t, r.Enqueue(i))
	}
	require.False(t, r.Enqueue(99), "full ring must reject")
	for i := 0; i < 8; i++ {
		v, ok := r.Dequeue()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok := r.Dequeue()
	require.False(t, ok, "empty ring must report empty")
}

func TestRingRoundsCapacityUp(t *testing.T) {
	r := NewRing[int](5)
	require.Equal(t, 8, r.Cap())
}

func TestRingConcurrentSum(t *testing.T) {
	const producers = 4
	const perProducer = 10000

	r := NewRing[int](1024)
	var wg sync.WaitGroup
	var mu sync.Mutex
	sum := 0

	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 1; i <= perProducer; i++ {
				for !r.Enqueue(i) {
				}
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		got := 0
		local := 0
		for got < producers*perProducer {
			if v, ok := r.Dequeue(); ok {
				local += v
				got++
			}
		}
		mu.Lock()
		sum = local
		mu.Unlock()
		close(done)
	}()

	wg.Wait()
	<-done

	want := producers * perProducer * (perProducer + 1) / 2
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, want, sum)
}
