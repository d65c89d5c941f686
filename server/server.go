// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// AcceptServer owns listening sockets on pool units, runs one accept
// fiber per listener and hands each accepted connection to a handler
// fiber on a round-robin unit. Connection lifetime is tracked so a
// graceful Stop can drain dispatched handlers before returning.

package server

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/momentics/fibrio/api"
	"github.com/momentics/fibrio/fiber"
	"github.com/momentics/fibrio/fibersync"
	"github.com/momentics/fibrio/ioctx"
	"github.com/momentics/fibrio/stats"
	"github.com/momentics/fibrio/transport"
)

type serverState int32

const (
	stateStopped serverState = iota
	stateAccepting
	stateStopping
)

type acceptEntry struct {
	ctx  *ioctx.Context
	tl   transport.Listener
	l    Listener
	fb   *fiber.Fiber
	port uint16
}

type AcceptServer struct {
	pool  *ioctx.Pool
	cfg   config
	state atomic.Int32

	mu      sync.Mutex
	entries []*acceptEntry
	conns   map[uint64]struct{}
	nextID  atomic.Uint64

	drained *fibersync.EventCount

	acceptedQps *stats.VarzQps
	liveConns   *stats.VarzGauge
}

func NewAcceptServer(pool *ioctx.Pool, opts ...Option) *AcceptServer {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &AcceptServer{
		pool:        pool,
		cfg:         cfg,
		conns:       map[uint64]struct{}{},
		drained:     fibersync.NewEventCount(),
		acceptedQps: stats.NewVarzQps(cfg.statsPrefix + "_accepted_qps"),
		liveConns:   stats.NewVarzGauge(cfg.statsPrefix + "_live_connections"),
	}
}

// AddListener binds a TCP listener on port (0 for ephemeral) on the
// next pool unit and returns the bound port. When the server is
// already accepting, the listener starts serving immediately.
func (s *AcceptServer) AddListener(port uint16, l Listener) (uint16, error) {
	if serverState(s.state.Load()) == stateStopping {
		return 0, fmt.Errorf("server: stopping, cannot add listener")
	}
	ctx := s.pool.GetNextContext()
	var tl transport.Listener
	var lerr error
	if err := ctx.Await(func() { tl, lerr = transport.NewListener(ctx, port) }); err != nil {
		return 0, err
	}
	if lerr != nil {
		return 0, lerr
	}
	e := &acceptEntry{ctx: ctx, tl: tl, l: l, port: tl.Port()}

	s.mu.Lock()
	s.entries = append(s.entries, e)
	running := serverState(s.state.Load()) == stateAccepting
	s.mu.Unlock()

	if running {
		if err := s.startAccept(e); err != nil {
			return 0, err
		}
	}
	return e.port, nil
}

// Run starts the accept fibers of every registered listener.
func (s *AcceptServer) Run() error {
	if !s.state.CompareAndSwap(int32(stateStopped), int32(stateAccepting)) {
		return fmt.Errorf("server: already running")
	}
	s.mu.Lock()
	entries := append([]*acceptEntry(nil), s.entries...)
	s.mu.Unlock()
	for _, e := range entries {
		if err := s.startAccept(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *AcceptServer) startAccept(e *acceptEntry) error {
	fb, err := e.ctx.LaunchFiberAt(fiber.TierHigh, func(fb *fiber.Fiber) {
		s.acceptLoop(fb, e)
	})
	if err != nil {
		return err
	}
	e.fb = fb
	return nil
}

func (s *AcceptServer) acceptLoop(fb *fiber.Fiber, e *acceptEntry) {
	for {
		fd, err := e.tl.Accept(fb)
		if err != nil {
			if !errors.Is(err, api.ErrClosed) {
				s.cfg.log.Error("accept loop terminated",
					slog.Int("port", int(e.port)), slog.Any("error", err))
			}
			return
		}
		s.acceptedQps.Inc()
		dest := s.pool.GetNextContext()
		if aerr := dest.AsyncFiber(func(hfb *fiber.Fiber) {
			s.serveConn(hfb, dest, e.l, fd)
		}); aerr != nil {
			unix.Close(fd)
		}
	}
}

// serveConn runs inside the handler fiber on the connection's owning
// unit: it adopts the descriptor, registers the connection and runs
// the listener's handler until it returns.
func (s *AcceptServer) serveConn(fb *fiber.Fiber, ctx *ioctx.Context, l Listener, fd int) {
	sock, err := transport.Adopt(ctx, fd)
	if err != nil {
		s.cfg.log.Error("socket adoption failed", slog.Int("fd", fd), slog.Any("error", err))
		unix.Close(fd)
		return
	}

	id := s.nextID.Add(1)
	s.mu.Lock()
	if serverState(s.state.Load()) != stateAccepting {
		s.mu.Unlock()
		sock.Close()
		return
	}
	s.conns[id] = struct{}{}
	s.mu.Unlock()
	s.liveConns.Inc()

	h := l.NewConnection(ctx)
	herr := h.HandleRequests(fb, sock)
	if herr != nil && !transport.IsConnClosed(herr) {
		s.cfg.log.Warn("connection handler failed",
			slog.Int("fd", fd), slog.Any("error", herr))
	}
	sock.Close()

	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
	s.liveConns.Dec()
	s.drained.NotifyAll()
}

// ConnCount reports live tracked connections.
func (s *AcceptServer) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Stop closes all listeners and terminates the accept loops. With
// graceful set it additionally waits until every dispatched handler
// fiber has finished; otherwise it returns once the accept loops have
// exited, leaving in-flight handlers to finish on their own. Safe to
// call once from any goroutine outside the pool's units.
func (s *AcceptServer) Stop(graceful bool) {
	if !s.state.CompareAndSwap(int32(stateAccepting), int32(stateStopping)) {
		return
	}

	s.mu.Lock()
	entries := append([]*acceptEntry(nil), s.entries...)
	s.mu.Unlock()

	for _, e := range entries {
		if ps, ok := e.l.(PreShutdowner); ok {
			ps.PreShutdown()
		}
	}

	for _, e := range entries {
		tl := e.tl
		if err := e.ctx.Await(func() { tl.Close() }); err != nil {
			s.cfg.log.Warn("listener close failed",
				slog.Int("port", int(e.port)), slog.Any("error", err))
		}
		if e.fb != nil {
			e.fb.Join()
		}
	}

	if graceful {
		s.drained.Await(nil, func() bool { return s.ConnCount() == 0 })
	}

	for _, e := range entries {
		if ps, ok := e.l.(PostShutdowner); ok {
			ps.PostShutdown()
		}
	}
	s.state.Store(int32(stateStopped))
}
