package nodeclient

import (
	"context"
	"crypto/tls"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dreamware/mpcengine/internal/mpcwire"
	"github.com/dreamware/mpcengine/internal/transport"
	"github.com/dreamware/mpcengine/internal/workerpool"
)

// ErrDisconnected is returned by SendRequest/SendRequestAsync on a client
// that is not currently connected, and used to fail every promise still
// outstanding when Disconnect is called.
var ErrDisconnected = errors.New("nodeclient: disconnected")

// ErrTimeout is returned by SendRequest when the response does not arrive
// before the configured timeout.
var ErrTimeout = errors.New("nodeclient: request timed out")

// DefaultSendQueueCapacity mirrors the node server's bounded queue size.
const DefaultSendQueueCapacity = 100

// DefaultRequestTimeout bounds the blocking form of SendRequest.
const DefaultRequestTimeout = 30 * time.Second

// Config configures a Client for one node.
type Config struct {
	NodeID         string
	Address        string
	TLSConfig      *tls.Config
	QueueCapacity  int
	RequestTimeout time.Duration
	Log            *zap.SugaredLogger
}

type pending struct {
	resultCh chan result
}

type result struct {
	msg mpcwire.Message
	err error
}

// Client owns one TLS connection to a node plus the send/receive worker
// pair and pending-request map described in spec.md §4.6.
type Client struct {
	cfg Config
	log *zap.SugaredLogger

	mu        sync.Mutex
	conn      *transport.Conn
	sendQueue *workerpool.BoundedQueue[mpcwire.Message]
	connected bool
	cancel    context.CancelFunc

	nextRequestID uint64

	pendingMu   sync.Mutex
	pendingReqs map[uint64]*pending
}

// New builds a Client. Call Connect before sending requests.
func New(cfg Config) *Client {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultSendQueueCapacity
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{
		cfg:         cfg,
		log:         log,
		pendingReqs: make(map[uint64]*pending),
	}
}

// Connect establishes the TCP connection, performs the TLS handshake
// against cfg.TLSConfig, and spawns the send/receive workers.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	dialer := &tls.Dialer{Config: c.cfg.TLSConfig}
	raw, err := dialer.DialContext(ctx, "tcp", c.cfg.Address)
	if err != nil {
		return errors.Wrapf(err, "nodeclient: dial %s", c.cfg.NodeID)
	}

	c.conn = transport.NewConn(raw.(*tls.Conn))
	c.sendQueue = workerpool.NewBoundedQueue[mpcwire.Message](c.cfg.QueueCapacity)
	c.connected = true

	connCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.sendLoop(connCtx)
	go c.receiveLoop(connCtx)
	return nil
}

// Disconnect shuts down the send queue, closes the connection, and fails
// every outstanding promise with ErrDisconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	conn := c.conn
	queue := c.sendQueue
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if queue != nil {
		queue.Shutdown()
	}
	if conn != nil {
		conn.Close()
	}

	c.pendingMu.Lock()
	for id, p := range c.pendingReqs {
		p.resultCh <- result{err: ErrDisconnected}
		delete(c.pendingReqs, id)
	}
	c.pendingMu.Unlock()
}

func (c *Client) isConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SendRequestAsync assigns a new request_id, registers a pending promise,
// and enqueues the frame. The returned channel delivers exactly one
// result.
func (c *Client) SendRequestAsync(msgType mpcwire.MessageType, body []byte) (uint64, <-chan result, error) {
	if !c.isConnected() {
		return 0, nil, ErrDisconnected
	}

	requestID := atomic.AddUint64(&c.nextRequestID, 1)
	msg := mpcwire.NewMessage(msgType, body)
	msg.Header.RequestID = requestID

	p := &pending{resultCh: make(chan result, 1)}
	c.pendingMu.Lock()
	c.pendingReqs[requestID] = p
	c.pendingMu.Unlock()

	c.mu.Lock()
	queue := c.sendQueue
	c.mu.Unlock()
	if queue == nil {
		c.pendingMu.Lock()
		delete(c.pendingReqs, requestID)
		c.pendingMu.Unlock()
		return 0, nil, ErrDisconnected
	}

	if outcome := queue.TryPush(msg); outcome != workerpool.Success {
		c.pendingMu.Lock()
		delete(c.pendingReqs, requestID)
		c.pendingMu.Unlock()
		return 0, nil, errors.Errorf("nodeclient: enqueue failed (%v)", outcome)
	}

	return requestID, p.resultCh, nil
}

// SendRequest is the blocking form: it sends the request and waits for
// the matching response up to cfg.RequestTimeout.
func (c *Client) SendRequest(msgType mpcwire.MessageType, body []byte) (mpcwire.Message, error) {
	requestID, ch, err := c.SendRequestAsync(msgType, body)
	if err != nil {
		return mpcwire.Message{}, err
	}

	select {
	case r := <-ch:
		return r.msg, r.err
	case <-time.After(c.cfg.RequestTimeout):
		// Leave the pendingReqs entry in place: a response that arrives
		// after this point still matches requestID in receiveLoop and is
		// delivered to ch, but nothing reads ch again, so it is silently
		// dropped instead of logged as an unknown request_id.
		return mpcwire.Message{}, ErrTimeout
	}
}

func (c *Client) sendLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	queue := c.sendQueue
	c.mu.Unlock()

	for {
		msg, ok := queue.Pop()
		if !ok {
			return
		}
		buf := mpcwire.EncodeHeader(msg.Header)
		if err := conn.WriteExact(buf[:]); err != nil {
			c.log.Errorw("nodeclient write failed", "node_id", c.cfg.NodeID, "error", err)
			return
		}
		if len(msg.Body) > 0 {
			if err := conn.WriteExact(msg.Body); err != nil {
				c.log.Errorw("nodeclient write failed", "node_id", c.cfg.NodeID, "error", err)
				return
			}
		}
	}
}

func (c *Client) receiveLoop(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	header := make([]byte, mpcwire.HeaderSize)
	for {
		if ctx.Err() != nil {
			return
		}
		if err := conn.ReadExact(header); err != nil {
			return
		}
		var hdrArr [mpcwire.HeaderSize]byte
		copy(hdrArr[:], header)
		hdr := mpcwire.DecodeHeader(hdrArr)
		if hdr.ValidateBasic() != mpcwire.OK {
			return
		}
		body := make([]byte, hdr.BodyLength)
		if len(body) > 0 {
			if err := conn.ReadExact(body); err != nil {
				return
			}
		}
		msg := mpcwire.Message{Header: hdr, Body: body}

		c.pendingMu.Lock()
		p, ok := c.pendingReqs[hdr.RequestID]
		if ok {
			delete(c.pendingReqs, hdr.RequestID)
		}
		c.pendingMu.Unlock()

		if !ok {
			c.log.Warnw("nodeclient received response for unknown request_id", "node_id", c.cfg.NodeID, "request_id", hdr.RequestID)
			continue
		}
		p.resultCh <- result{msg: msg}
	}
}
