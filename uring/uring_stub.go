//go:build !linux

// File: uring/uring_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package uring is Linux-only; this stub keeps cross-platform builds
// working.
package uring

import (
	"log/slog"

	"github.com/momentics/fibrio/api"
)

// DefaultDepth mirrors the Linux default.
const DefaultDepth = 256

// Reactor is unavailable off Linux.
type Reactor struct{}

// NewReactor always fails off Linux.
func NewReactor(depth uint32, log *slog.Logger) (*Reactor, error) {
	return nil, api.ErrNotSupported
}

func (r *Reactor) Poll(timeoutMs int) (int, error) { return 0, api.ErrNotSupported }
func (r *Reactor) Wake() error                     { return api.ErrNotSupported }
func (r *Reactor) Close() error                    { return nil }
