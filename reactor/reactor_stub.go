//go:build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import "github.com/momentics/fibrio/api"

// Reactor is unavailable off Linux.
type Reactor struct{}

func newPlatform() (*Reactor, error) { return nil, api.ErrNotSupported }

func (r *Reactor) Register(fd int, cb FDCallback) error  { return api.ErrNotSupported }
func (r *Reactor) Arm(fd int, events api.IOEvents) error { return api.ErrNotSupported }
func (r *Reactor) Unregister(fd int) error               { return api.ErrNotSupported }
func (r *Reactor) Poll(timeoutMs int) (int, error)       { return 0, api.ErrNotSupported }
func (r *Reactor) Wake() error                           { return api.ErrNotSupported }
func (r *Reactor) Close() error                          { return nil }
