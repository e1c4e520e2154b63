package walletserver

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/mpcengine/internal/workerpool"
)

// DefaultHandlerThreads matches the node server's handler pool default.
const DefaultHandlerThreads = 8

// DefaultMaxRequestsPerConn caps how many requests one connection serves
// before the server forces a close, per spec.md §4.7's connection policy.
const DefaultMaxRequestsPerConn = 10000

// DefaultIdleTimeout bounds how long a connection may sit without
// activity before the idle-cleanup scan stops it.
const DefaultIdleTimeout = 2 * time.Minute

// DefaultIdleScanInterval is how often the background idle scan runs.
const DefaultIdleScanInterval = 10 * time.Second

// Config configures a Server.
type Config struct {
	ListenAddr         string
	TLSConfig          *tls.Config
	HandlerThreads     int
	MaxRequestsPerConn int
	IdleTimeout        time.Duration
	IdleScanInterval   time.Duration
	Signing            SigningHandler
	Log                *zap.SugaredLogger
}

// Server is the wallet-facing HTTPS ingress, per spec.md §4.7.
type Server struct {
	cfg      Config
	router   *Router
	pool     *workerpool.Pool
	listener net.Listener
	log      *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[*session]struct{}
	closed   bool
}

// NewServer builds a Server from cfg. Call Serve to start accepting.
func NewServer(cfg Config) *Server {
	if cfg.HandlerThreads <= 0 {
		cfg.HandlerThreads = DefaultHandlerThreads
	}
	if cfg.MaxRequestsPerConn <= 0 {
		cfg.MaxRequestsPerConn = DefaultMaxRequestsPerConn
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.IdleScanInterval <= 0 {
		cfg.IdleScanInterval = DefaultIdleScanInterval
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Server{
		cfg:      cfg,
		router:   NewRouter(cfg.Signing),
		pool:     workerpool.NewPool(cfg.HandlerThreads, log),
		log:      log,
		sessions: make(map[*session]struct{}),
	}
}

// Serve listens on cfg.ListenAddr, TLS-terminates every connection, and
// accepts until ctx is done or Shutdown is called.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := tls.Listen("tcp", s.cfg.ListenAddr, s.cfg.TLSConfig)
	if err != nil {
		return err
	}
	s.listener = ln

	go s.idleScanLoop(ctx)
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	sess := newSession(conn, s.router, s.pool, sessionConfig{
		MaxRequestsPerConn: s.cfg.MaxRequestsPerConn,
		IdleTimeout:        s.cfg.IdleTimeout,
	}, s.log)

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	sess.run()

	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

func (s *Server) idleScanLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.IdleScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			for sess := range s.sessions {
				if sess.idleFor() > s.cfg.IdleTimeout {
					sess.conn.Close()
				}
			}
			s.mu.Unlock()
		}
	}
}

// Shutdown stops accepting new connections and closes every live session.
func (s *Server) Shutdown() {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}
	for _, sess := range sessions {
		sess.conn.Close()
	}
	s.pool.Shutdown()
}
