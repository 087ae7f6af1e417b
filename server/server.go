/*
Package server exposes a store over TCP using the line protocol.

One goroutine serves each connection. Requests on a connection are handled
strictly in order; requests on different connections run concurrently and are
serialized by the store itself.
*/
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/krisalay/kv-cache-server/api"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultAddress matches the port the server has always listened on.
	DefaultAddress = ":50005"

	// DefaultMaxLineBytes bounds a single request line.
	DefaultMaxLineBytes = 64 * 1024
)

// ErrListen wraps a failure to bind the listening socket.
var ErrListen = errors.New("listen")

// Config holds the transport settings.
type Config struct {
	// Address is the host:port to bind.
	Address string

	// MaxConnections bounds concurrent connections. Zero means unbounded.
	MaxConnections int

	// MaxLineBytes bounds a single request line. Zero means DefaultMaxLineBytes.
	MaxLineBytes int
}

/*
Server accepts connections and runs one handler per connection.

Lifecycle:
  - ListenAndServe / Serve block until ctx is cancelled or Close is called
  - cancelling ctx is a graceful stop: no new connections, idle connections are
    released, requests already in progress finish and get their response
  - Close is an immediate stop: every connection is closed as is
*/
type Server struct {
	store  api.Store
	cfg    Config
	logger *slog.Logger

	// sem is nil when connections are unbounded.
	sem *semaphore.Weighted

	mu      sync.Mutex
	ln      net.Listener
	conns   map[net.Conn]struct{}
	closing bool
}

// New creates a server for store.
func New(store api.Store, cfg Config, logger *slog.Logger) *Server {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.MaxLineBytes <= 0 {
		cfg.MaxLineBytes = DefaultMaxLineBytes
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:  store,
		cfg:    cfg,
		logger: logger,
		conns:  make(map[net.Conn]struct{}),
	}
	if cfg.MaxConnections > 0 {
		s.sem = semaphore.NewWeighted(int64(cfg.MaxConnections))
	}
	return s
}

// ListenAndServe binds cfg.Address and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrListen, s.cfg.Address, err)
	}
	return s.Serve(ctx, ln)
}

/*
Serve accepts connections on ln until ctx is cancelled or Close is called.
It takes ownership of ln and returns only after every handler has exited.
*/
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.ln = ln
	s.mu.Unlock()

	s.logger.Info("server listening", "addr", ln.Addr().String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group

	g.Go(func() error {
		<-ctx.Done()
		s.shutdown()
		return nil
	})

	err := s.acceptLoop(ctx, ln, &g)

	cancel()
	_ = g.Wait()

	s.logger.Info("server stopped", "addr", ln.Addr().String())
	return err
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, g *errgroup.Group) error {
	for {
		if s.sem != nil {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return nil
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			s.release()
			if s.isClosing() || ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		if !s.track(conn) {
			conn.Close()
			s.release()
			continue
		}

		g.Go(func() error {
			defer s.release()
			defer s.untrack(conn)
			s.handle(ctx, conn)
			return nil
		})
	}
}

// Addr returns the bound address, or nil before the server is listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

/*
Close stops the server immediately: the listener and every live connection
are closed without waiting for in-progress requests.
*/
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closing = true

	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for c := range s.conns {
		c.Close()
	}
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

/*
shutdown is the graceful stop.
Idle handlers are blocked in Read; a deadline in the past wakes them up. A
handler busy with a request finishes it, writes the response, and then sees
the deadline on its next read.
*/
func (s *Server) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closing = true
	if s.ln != nil {
		s.ln.Close()
	}

	past := time.Unix(1, 0)
	for c := range s.conns {
		_ = c.SetReadDeadline(past)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) release() {
	if s.sem != nil {
		s.sem.Release(1)
	}
}
