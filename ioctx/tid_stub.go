//go:build !linux

// File: ioctx/tid_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ioctx

// Without a thread id the inline-on-loop fast path is disabled and
// every Await crosses the submission queue, which stays correct.
func currentTID() int64 { return -1 }
