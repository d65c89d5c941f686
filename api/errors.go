// File: api/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Common error taxonomy for the fibrio runtime. Resource-exhaustion
// errors (ErrQueueFull) are recoverable and instruct the caller to
// suspend and retry. Lifecycle errors (ErrClosed, ErrStopped)
// terminate one operation or one connection, never the process.
// Scheduling-contract violations do not surface as errors at all: they
// panic, because continuing would corrupt scheduler state.

package api

import "errors"

var (
	// ErrQueueFull is returned when a kernel submission ring is at its
	// configured depth. The caller must suspend on the reactor's
	// submission-available signal and retry.
	ErrQueueFull = errors.New("submission queue full")

	// ErrClosed is returned by primitives and sockets after Close.
	ErrClosed = errors.New("closed")

	// ErrStopped is returned when work is submitted to a scheduling
	// unit that has observed Stop.
	ErrStopped = errors.New("scheduling unit stopped")

	// ErrNotSupported is returned by platform stubs.
	ErrNotSupported = errors.New("not supported on this platform")

	// ErrCancelled is attached to completions delivered for operations
	// whose owning descriptor was closed while they were in flight.
	ErrCancelled = errors.New("operation cancelled")
)
