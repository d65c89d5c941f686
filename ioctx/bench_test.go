// File: ioctx/bench_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ioctx

import (
	"testing"

	"github.com/momentics/fibrio/api"
	"github.com/momentics/fibrio/fake"
	"github.com/momentics/fibrio/fiber"
)

func newBenchPool(b *testing.B) *Pool {
	b.Helper()
	p, err := NewPool(1, func() (api.Reactor, error) { return fake.NewReactor(), nil })
	if err != nil {
		b.Fatal(err)
	}
	p.Run()
	b.Cleanup(p.Stop)
	return p
}

func BenchmarkAsyncSubmission(b *testing.B) {
	p := newBenchPool(b)
	c := p.At(0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for c.Async(func() {}) != nil {
		}
	}
	c.Await(func() {})
}

func BenchmarkAwaitRoundTrip(b *testing.B) {
	p := newBenchPool(b)
	c := p.At(0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Await(func() {})
	}
}

func BenchmarkFiberLaunchJoin(b *testing.B) {
	p := newBenchPool(b)
	c := p.At(0)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f, err := c.LaunchFiber(func(*fiber.Fiber) {})
		if err != nil {
			b.Fatal(err)
		}
		f.Join()
	}
}
