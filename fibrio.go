// File: fibrio.go
// Unified entry point for the fibrio runtime.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package fibrio aggregates the runtime's components behind one
// facade: it builds the reactor backend, the CPU-pinned pool of
// scheduling units and the accept server from a single Config, for
// programs that do not need to wire the layers individually.

package fibrio

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/momentics/fibrio/api"
	"github.com/momentics/fibrio/ioctx"
	"github.com/momentics/fibrio/reactor"
	"github.com/momentics/fibrio/server"
	"github.com/momentics/fibrio/uring"
)

// Backend selects the reactor implementation backing each unit.
type Backend string

const (
	BackendEpoll   Backend = "epoll"
	BackendIOUring Backend = "uring"
)

// Config holds parameters immutable per run.
type Config struct {
	Workers     int           // scheduling units; 0 means GOMAXPROCS
	Backend     Backend       // reactor backend; empty means epoll
	QueueDepth  uint32        // io_uring submission depth; 0 means default
	SliceBudget time.Duration // fiber run-slice fairness budget; 0 means default
	Logger      *slog.Logger  // nil means slog.Default
}

// Runtime owns a running pool and its accept server.
type Runtime struct {
	cfg    Config
	Pool   *ioctx.Pool
	Server *server.AcceptServer
}

// New builds and starts the unit pool and accept server. Listeners are
// added afterwards; Run starts accepting.
func New(cfg Config) (*Runtime, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendEpoll
	}
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = uring.DefaultDepth
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	var newReactor func() (api.Reactor, error)
	switch cfg.Backend {
	case BackendEpoll:
		newReactor = func() (api.Reactor, error) { return reactor.New() }
	case BackendIOUring:
		newReactor = func() (api.Reactor, error) {
			return uring.NewReactor(cfg.QueueDepth, cfg.Logger)
		}
	default:
		return nil, fmt.Errorf("fibrio: unknown backend %q", cfg.Backend)
	}

	opts := []ioctx.Option{ioctx.WithLogger(cfg.Logger)}
	if cfg.SliceBudget > 0 {
		opts = append(opts, ioctx.WithSliceBudget(cfg.SliceBudget))
	}
	p, err := ioctx.NewPool(cfg.Workers, newReactor, opts...)
	if err != nil {
		return nil, err
	}
	p.Run()

	return &Runtime{
		cfg:    cfg,
		Pool:   p,
		Server: server.NewAcceptServer(p, server.WithLogger(cfg.Logger)),
	}, nil
}

// AddListener binds a listener on port (0 for ephemeral) and returns
// the bound port.
func (rt *Runtime) AddListener(port uint16, l server.Listener) (uint16, error) {
	return rt.Server.AddListener(port, l)
}

// Run starts accepting on all registered listeners.
func (rt *Runtime) Run() error {
	return rt.Server.Run()
}

// Shutdown stops the accept server and tears the pool down. With
// graceful set, dispatched handlers finish before the listeners are
// torn down; without it the server returns as soon as the accept
// loops exit. Pool teardown always waits for the units' live fibers
// to terminate, so abandoned handlers must be unblocked by their
// peers (or the application) before Shutdown returns.
func (rt *Runtime) Shutdown(graceful bool) {
	rt.Server.Stop(graceful)
	rt.Pool.Stop()
}
