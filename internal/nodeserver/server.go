package nodeserver

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/mpcengine/internal/cryptoprovider"
	"github.com/dreamware/mpcengine/internal/mpcwire"
	"github.com/dreamware/mpcengine/internal/transport"
	"github.com/dreamware/mpcengine/internal/workerpool"
)

// DefaultSendQueueCapacity is the bounded send queue size per spec.md §4.5.
const DefaultSendQueueCapacity = 100

// Config configures a Server.
type Config struct {
	ListenAddr           string
	TrustedCoordinatorIP net.IP
	TLSConfig            *tls.Config
	HandlerThreads       int
	SendQueueCapacity    int
	Provider             *cryptoprovider.Provider
	Log                  *zap.SugaredLogger
}

// Server accepts exactly one TLS connection from the trusted coordinator
// IP at a time, runs a receive loop decoding framed requests into a
// shared handler pool, and a send loop draining a bounded response
// queue, per spec.md §4.5.
type Server struct {
	cfg      Config
	router   *Router
	pool     *workerpool.Pool
	listener net.Listener

	mu      sync.Mutex
	current *liveConn
	closed  bool

	pending int64
}

type liveConn struct {
	conn      *transport.Conn
	sendQueue *workerpool.BoundedQueue[mpcwire.Message]
	cancel    context.CancelFunc
}

// NewServer builds a Server from cfg. Call Serve to start accepting.
func NewServer(cfg Config) *Server {
	if cfg.SendQueueCapacity <= 0 {
		cfg.SendQueueCapacity = DefaultSendQueueCapacity
	}
	if cfg.HandlerThreads <= 0 {
		cfg.HandlerThreads = 8
	}
	return &Server{
		cfg:    cfg,
		router: NewRouter(cfg.Provider),
		pool:   workerpool.NewPool(cfg.HandlerThreads, cfg.Log),
	}
}

// Serve listens on cfg.ListenAddr and accepts connections until ctx is
// done or PrepareShutdown is called.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		raw, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.admit(raw)
	}
}

// admit applies the trusted-IP check before any TLS handshake, then
// evicts the previous connection (if any) and starts this one.
func (s *Server) admit(raw net.Conn) {
	host, _, err := net.SplitHostPort(raw.RemoteAddr().String())
	if err != nil || net.ParseIP(host) == nil || !net.ParseIP(host).Equal(s.cfg.TrustedCoordinatorIP) {
		raw.Close()
		return
	}

	tlsConn := tls.Server(raw, s.cfg.TLSConfig)
	handshakeCtx, cancel := context.WithTimeout(context.Background(), transport.DefaultHandshakeTimeout)
	defer cancel()
	if err := tlsConn.HandshakeContext(handshakeCtx); err != nil {
		tlsConn.Close()
		return
	}

	conn := transport.NewConn(tlsConn)
	lc := &liveConn{
		conn:      conn,
		sendQueue: workerpool.NewBoundedQueue[mpcwire.Message](s.cfg.SendQueueCapacity),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.ForceClose()
		return
	}
	prev := s.current
	s.current = lc
	s.mu.Unlock()

	if prev != nil {
		prev.sendQueue.Shutdown()
		prev.conn.ForceClose()
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	lc.cancel = connCancel
	go s.sendLoop(connCtx, lc)
	s.receiveLoop(connCtx, lc)
}

func (s *Server) receiveLoop(ctx context.Context, lc *liveConn) {
	defer lc.cancel()
	defer lc.sendQueue.Shutdown()
	defer lc.conn.Close()

	header := make([]byte, mpcwire.HeaderSize)
	for {
		if ctx.Err() != nil {
			return
		}
		if err := lc.conn.ReadExact(header); err != nil {
			return
		}
		var hdrArr [mpcwire.HeaderSize]byte
		copy(hdrArr[:], header)
		hdr := mpcwire.DecodeHeader(hdrArr)
		if result := hdr.ValidateBasic(); result != mpcwire.OK {
			return
		}
		body := make([]byte, hdr.BodyLength)
		if len(body) > 0 {
			if err := lc.conn.ReadExact(body); err != nil {
				return
			}
		}
		msg := mpcwire.Message{Header: hdr, Body: body}
		if msg.Validate() != mpcwire.OK {
			return
		}

		if msg.Header.MessageType == mpcwire.MessageTypePing {
			pong := mpcwire.NewMessage(mpcwire.MessageTypePing, nil)
			pong.Header.RequestID = msg.Header.RequestID
			lc.sendQueue.TryPush(pong)
			continue
		}

		atomic.AddInt64(&s.pending, 1)
		msgCopy := msg
		s.pool.Submit(ctx, func() {
			defer atomic.AddInt64(&s.pending, -1)
			resp := s.router.Dispatch(msgCopy)
			lc.sendQueue.Push(context.Background(), resp)
		})
	}
}

func (s *Server) sendLoop(ctx context.Context, lc *liveConn) {
	for {
		msg, ok := lc.sendQueue.Pop()
		if !ok {
			return
		}
		var buf [mpcwire.HeaderSize]byte
		buf = mpcwire.EncodeHeader(msg.Header)
		if err := lc.conn.WriteExact(buf[:]); err != nil {
			return
		}
		if len(msg.Body) > 0 {
			if err := lc.conn.WriteExact(msg.Body); err != nil {
				return
			}
		}
	}
}

// PrepareShutdown stops accepting new connections by closing the
// listener, waits for the pending-request count to reach zero or timeout,
// then closes the current connection and stops the handler pool.
func (s *Server) PrepareShutdown(timeout time.Duration) {
	s.mu.Lock()
	s.closed = true
	cur := s.current
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}

	deadline := time.Now().Add(timeout)
	for atomic.LoadInt64(&s.pending) > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if cur != nil {
		cur.sendQueue.Shutdown()
		cur.conn.Close()
	}
	s.pool.Shutdown()
}

// PendingRequestCount reports how many requests have been submitted to the
// handler pool and have not yet had their response pushed onto the send
// queue.
func (s *Server) PendingRequestCount() int {
	return int(atomic.LoadInt64(&s.pending))
}
