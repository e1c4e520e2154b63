package walletserver

import (
	"bufio"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/mpcengine/internal/walletproto"
	"github.com/dreamware/mpcengine/internal/workerpool"
)

// future carries exactly one response, delivered by a handler goroutine
// and awaited by the send loop in FIFO order.
type future chan rawResponse

// session owns one accepted connection: a receive loop parsing pipelined
// requests and a send loop draining a FIFO queue of futures, so responses
// are written in request order regardless of handler completion order.
type session struct {
	conn   net.Conn
	reader *bufio.Reader
	router *Router
	pool   *workerpool.Pool
	log    *zap.SugaredLogger

	cfg sessionConfig

	futures *workerpool.BoundedQueue[future]

	requestsHandled int64
	lastActivity    int64 // unix nanos, atomic
}

type sessionConfig struct {
	MaxRequestsPerConn int
	IdleTimeout        time.Duration
}

func newSession(conn net.Conn, router *Router, pool *workerpool.Pool, cfg sessionConfig, log *zap.SugaredLogger) *session {
	s := &session{
		conn:    conn,
		reader:  bufio.NewReaderSize(conn, MaxHeaderSize),
		router:  router,
		pool:    pool,
		log:     log,
		cfg:     cfg,
		futures: workerpool.NewBoundedQueue[future](100),
	}
	s.touch()
	return s
}

func (s *session) touch() {
	atomic.StoreInt64(&s.lastActivity, time.Now().UnixNano())
}

// idleFor reports how long this session has gone without read or write
// activity.
func (s *session) idleFor() time.Duration {
	last := atomic.LoadInt64(&s.lastActivity)
	return time.Since(time.Unix(0, last))
}

// run drives the session until the connection closes or a fatal error
// occurs, blocking the caller (intended to be called from its own
// goroutine alongside a send loop).
func (s *session) run() {
	go s.sendLoop()
	s.receiveLoop()
}

func (s *session) receiveLoop() {
	defer s.futures.Shutdown()
	defer s.conn.Close()

	for {
		req, err := readRawRequest(s.reader)
		if err != nil {
			return
		}
		s.touch()

		fut := make(future, 1)
		if s.futures.Push(nil, fut) != workerpool.Success {
			return
		}

		handled := atomic.AddInt64(&s.requestsHandled, 1)
		keepAlive := req.KeepAlive
		if s.cfg.MaxRequestsPerConn > 0 && int(handled) >= s.cfg.MaxRequestsPerConn {
			keepAlive = false
		}

		s.pool.Submit(nil, func() {
			fut <- s.process(req, keepAlive)
		})

		if !keepAlive {
			return
		}
	}
}

func (s *session) process(req rawRequest, keepAlive bool) rawResponse {
	msg, err := walletproto.Unmarshal(req.Body)
	if err != nil {
		return rawResponse{
			StatusCode:  400,
			StatusText:  "Bad Request",
			ContentType: "application/x-protobuf",
			KeepAlive:   keepAlive,
		}
	}

	respMsg := s.router.Dispatch(msg)
	body, err := walletproto.Marshal(respMsg)
	if err != nil {
		return rawResponse{
			StatusCode:  500,
			StatusText:  "Internal Server Error",
			ContentType: "application/x-protobuf",
			KeepAlive:   keepAlive,
		}
	}

	return rawResponse{
		StatusCode:  200,
		StatusText:  "OK",
		ContentType: "application/x-protobuf",
		Body:        body,
		KeepAlive:   keepAlive,
	}
}

func (s *session) sendLoop() {
	for {
		fut, ok := s.futures.Pop()
		if !ok {
			return
		}
		resp := <-fut
		if err := writeRawResponse(s.conn, resp); err != nil {
			s.conn.Close()
			return
		}
		s.touch()
		if !resp.KeepAlive {
			s.conn.Close()
			return
		}
	}
}
