// File: ioctx/options.go
// Package ioctx implements the scheduling unit and the worker pool.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package ioctx

import (
	"log/slog"
	"time"
)

type config struct {
	log         *slog.Logger
	cpu         int
	sliceBudget time.Duration
	queueSize   uint64
}

func defaultConfig() config {
	return config{
		log:       slog.Default(),
		cpu:       -1,
		queueSize: 4096,
	}
}

// Option customizes a Context.
type Option func(*config)

// WithLogger sets the structured logger used by the unit and its
// scheduler.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// WithCPU pins the unit's loop thread to the given logical CPU.
// Negative disables pinning.
func WithCPU(cpu int) Option {
	return func(c *config) { c.cpu = cpu }
}

// WithSliceBudget overrides the fiber run-slice fairness budget.
func WithSliceBudget(d time.Duration) Option {
	return func(c *config) { c.sliceBudget = d }
}

// WithQueueSize sets the capacity of the direct-callback submission
// ring (rounded up to a power of two).
func WithQueueSize(n uint64) Option {
	return func(c *config) {
		if n > 0 {
			c.queueSize = n
		}
	}
}
