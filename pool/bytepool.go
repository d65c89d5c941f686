// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package pool provides size-classed byte buffer pooling for
// per-connection handler fibers, keeping steady-state reads and
// writes allocation-free.
package pool

import "sync"

// class sizes double from 4 KiB to 64 KiB; requests above the largest
// class fall through to the allocator.
var classSizes = [...]int{4 << 10, 8 << 10, 16 << 10, 32 << 10, 64 << 10}

var classes [len(classSizes)]sync.Pool

func classFor(n int) int {
	for i, sz := range classSizes {
		if n <= sz {
			return i
		}
	}
	return -1
}

// Get returns a buffer with length of at least n. The buffer is not
// zeroed.
func Get(n int) []byte {
	i := classFor(n)
	if i < 0 {
		return make([]byte, n)
	}
	if v := classes[i].Get(); v != nil {
		return v.([]byte)[:classSizes[i]]
	}
	return make([]byte, classSizes[i])
}

// Put recycles a buffer obtained from Get. Buffers that do not match
// a class size are dropped for the GC.
func Put(buf []byte) {
	c := cap(buf)
	for i, sz := range classSizes {
		if c == sz {
			classes[i].Put(buf[:sz])
			return
		}
	}
}
