// Package coordinator provides the control-plane coordination logic that
// sits between the wallet ingress and the signing nodes.
// This file implements health monitoring for registered nodes in the cluster.
package coordinator

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/dreamware/mpcengine/internal/mpcwire"
)

// NodeHealth tracks the health status of a single node in the cluster.
// Thread-safe: protected by HealthMonitor's mutex when accessed.
type NodeHealth struct {
	LastCheck        time.Time
	LastHealthy      time.Time
	NodeID           string
	Status           string // "healthy", "unhealthy", "unknown"
	ConsecutiveFails int
}

// HealthMonitor performs periodic health checks on all registered nodes in
// the cluster. Each check dials the node's TLS listener and round-trips a
// Ping frame; the original HTTP /health GET doesn't apply since nodes speak
// nothing but the length-prefixed wire protocol.
type HealthMonitor struct {
	nodes       map[string]*NodeHealth
	tlsConfig   *tls.Config
	checkFunc   func(addr string) error
	onUnhealthy func(nodeID string)
	ctx         context.Context
	cancel      context.CancelFunc
	interval    time.Duration
	timeout     time.Duration
	mu          sync.RWMutex
	wg          sync.WaitGroup
	maxFailures int
	log         *zap.SugaredLogger
}

// NewHealthMonitor creates a health monitor that checks each node every
// interval, marking it unhealthy after 3 consecutive failures.
func NewHealthMonitor(interval time.Duration, tlsConfig *tls.Config, log *zap.SugaredLogger) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &HealthMonitor{
		interval:    interval,
		timeout:     2 * time.Second,
		maxFailures: 3,
		nodes:       make(map[string]*NodeHealth),
		tlsConfig:   tlsConfig,
		ctx:         ctx,
		cancel:      cancel,
		log:         log,
	}
}

// SetOnUnhealthy sets the callback invoked when a node transitions to
// unhealthy. Typically used to pull the node out of orchestration.
func (h *HealthMonitor) SetOnUnhealthy(callback func(nodeID string)) {
	h.onUnhealthy = callback
}

// SetCheckFunction overrides the default TLS-dial-plus-Ping check, for
// testing or alternative transport.
func (h *HealthMonitor) SetCheckFunction(checkFunc func(addr string) error) {
	h.checkFunc = checkFunc
}

// Start begins the health monitoring loop, blocking until ctx is done.
// assignmentProvider returns the current set of assignments to check.
func (h *HealthMonitor) Start(ctx context.Context, assignmentProvider func() []*PlayerAssignment) {
	h.wg.Add(1)
	defer h.wg.Done()

	if ctx == nil {
		ctx = h.ctx
	}
	if h.checkFunc == nil {
		h.checkFunc = h.defaultHealthCheck
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.log.Infow("health monitor started", "interval", h.interval)

	h.checkAll(assignmentProvider())

	for {
		select {
		case <-ticker.C:
			h.checkAll(assignmentProvider())
		case <-ctx.Done():
			h.log.Info("health monitor stopping due to context cancellation")
			return
		case <-h.ctx.Done():
			h.log.Info("health monitor stopping due to internal cancellation")
			return
		}
	}
}

// Stop cancels the monitoring loop and waits for it to exit.
func (h *HealthMonitor) Stop() {
	h.cancel()
	h.wg.Wait()
}

func (h *HealthMonitor) checkAll(assignments []*PlayerAssignment) {
	current := make(map[string]bool, len(assignments))
	for _, a := range assignments {
		current[a.NodeID] = true
		h.checkNode(a.NodeID, a.Address)
	}

	h.mu.Lock()
	for nodeID := range h.nodes {
		if !current[nodeID] {
			delete(h.nodes, nodeID)
		}
	}
	h.mu.Unlock()
}

func (h *HealthMonitor) checkNode(nodeID, addr string) {
	h.mu.Lock()
	health, exists := h.nodes[nodeID]
	if !exists {
		health = &NodeHealth{NodeID: nodeID, Status: "unknown", LastCheck: time.Now(), LastHealthy: time.Now()}
		h.nodes[nodeID] = health
	}
	h.mu.Unlock()

	err := h.checkFunc(addr)

	h.mu.Lock()
	defer h.mu.Unlock()

	health.LastCheck = time.Now()

	if err != nil {
		health.ConsecutiveFails++
		h.log.Warnw("health check failed", "node_id", nodeID, "attempt", health.ConsecutiveFails, "max", h.maxFailures, "error", err)

		if health.ConsecutiveFails >= h.maxFailures {
			previous := health.Status
			health.Status = "unhealthy"
			if previous != "unhealthy" && h.onUnhealthy != nil {
				h.log.Warnw("node marked unhealthy", "node_id", nodeID, "consecutive_fails", health.ConsecutiveFails)
				go h.onUnhealthy(nodeID)
			}
		}
		return
	}

	if health.Status == "unhealthy" {
		h.log.Infow("node recovered", "node_id", nodeID)
	}
	health.Status = "healthy"
	health.ConsecutiveFails = 0
	health.LastHealthy = time.Now()
}

// defaultHealthCheck dials addr over TLS, writes a Ping frame, and expects
// a reply with the same message type within the monitor's timeout.
func (h *HealthMonitor) defaultHealthCheck(addr string) error {
	dialer := &net.Dialer{Timeout: h.timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, h.tlsConfig)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(h.timeout))

	ping := mpcwire.NewMessage(mpcwire.MessageTypePing, []byte("ping"))
	hdr := mpcwire.EncodeHeader(ping.Header)
	if _, err := conn.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := conn.Write(ping.Body); err != nil {
		return err
	}

	msg, result, err := mpcwire.Decode(conn)
	if err != nil {
		return err
	}
	if result != mpcwire.OK {
		return errors.Errorf("ping validation failed: %v", result)
	}
	if msg.Header.MessageType != mpcwire.MessageTypePing {
		return errors.Errorf("unexpected reply message type %v", msg.Header.MessageType)
	}
	return nil
}

// GetNodeHealth returns a copy of the current health record for nodeID, or
// nil if it is not being monitored.
func (h *HealthMonitor) GetNodeHealth(nodeID string) *NodeHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.nodes[nodeID]
	if !exists {
		return nil
	}
	cp := *health
	return &cp
}

// GetAllNodeHealth returns a copy of every monitored node's health record.
func (h *HealthMonitor) GetAllNodeHealth() map[string]*NodeHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[string]*NodeHealth, len(h.nodes))
	for id, health := range h.nodes {
		cp := *health
		result[id] = &cp
	}
	return result
}

// IsHealthy reports whether nodeID is currently healthy. Unmonitored nodes
// report false.
func (h *HealthMonitor) IsHealthy(nodeID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	health, exists := h.nodes[nodeID]
	return exists && health.Status == "healthy"
}
