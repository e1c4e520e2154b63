package coordinator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHealthMonitor(t *testing.T) {
	monitor := NewHealthMonitor(5*time.Second, nil, nil)
	defer monitor.Stop()

	assert.NotNil(t, monitor)
	assert.Equal(t, 5*time.Second, monitor.interval)
	assert.Equal(t, 2*time.Second, monitor.timeout)
	assert.Equal(t, 3, monitor.maxFailures)
	assert.NotNil(t, monitor.nodes)
	assert.NotNil(t, monitor.ctx)
	assert.NotNil(t, monitor.cancel)
	assert.Len(t, monitor.nodes, 0)
}

func TestHealthMonitorStart(t *testing.T) {
	monitor := NewHealthMonitor(100*time.Millisecond, nil, nil)
	defer monitor.Stop()

	checkCalls := 0
	var mu sync.Mutex

	monitor.SetCheckFunction(func(addr string) error {
		mu.Lock()
		checkCalls++
		mu.Unlock()
		return nil
	})

	assignments := func() []*PlayerAssignment {
		return []*PlayerAssignment{
			{ShardIndex: 0, NodeID: "node-1", Address: "localhost:8081"},
			{ShardIndex: 1, NodeID: "node-2", Address: "localhost:8082"},
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx, assignments)

	time.Sleep(350 * time.Millisecond)

	mu.Lock()
	calls := checkCalls
	mu.Unlock()

	assert.GreaterOrEqual(t, calls, 6, "expected at least 6 health checks")

	allHealth := monitor.GetAllNodeHealth()
	assert.Len(t, allHealth, 2)
	assert.Contains(t, allHealth, "node-1")
	assert.Contains(t, allHealth, "node-2")

	assert.True(t, monitor.IsHealthy("node-1"))
	assert.True(t, monitor.IsHealthy("node-2"))
}

func TestHealthMonitorNodeFailure(t *testing.T) {
	monitor := NewHealthMonitor(50*time.Millisecond, nil, nil)
	defer monitor.Stop()

	failingNodes := make(map[string]bool)
	var mu sync.Mutex

	monitor.SetCheckFunction(func(addr string) error {
		mu.Lock()
		defer mu.Unlock()
		if addr == "localhost:8081" && failingNodes["node-1"] {
			return fmt.Errorf("node is down")
		}
		return nil
	})

	unhealthyCalls := []string{}
	monitor.SetOnUnhealthy(func(nodeID string) {
		mu.Lock()
		unhealthyCalls = append(unhealthyCalls, nodeID)
		mu.Unlock()
	})

	assignments := func() []*PlayerAssignment {
		return []*PlayerAssignment{
			{ShardIndex: 0, NodeID: "node-1", Address: "localhost:8081"},
			{ShardIndex: 1, NodeID: "node-2", Address: "localhost:8082"},
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx, assignments)

	time.Sleep(100 * time.Millisecond)

	assert.True(t, monitor.IsHealthy("node-1"))
	assert.True(t, monitor.IsHealthy("node-2"))

	mu.Lock()
	failingNodes["node-1"] = true
	mu.Unlock()

	time.Sleep(250 * time.Millisecond)

	assert.False(t, monitor.IsHealthy("node-1"))
	assert.True(t, monitor.IsHealthy("node-2"))

	mu.Lock()
	assert.Contains(t, unhealthyCalls, "node-1")
	mu.Unlock()

	health := monitor.GetNodeHealth("node-1")
	require.NotNil(t, health)
	assert.Equal(t, "unhealthy", health.Status)
	assert.GreaterOrEqual(t, health.ConsecutiveFails, 3)
}

func TestHealthMonitorNodeRecovery(t *testing.T) {
	monitor := NewHealthMonitor(50*time.Millisecond, nil, nil)
	defer monitor.Stop()

	nodeHealthy := true
	var mu sync.Mutex

	monitor.SetCheckFunction(func(addr string) error {
		mu.Lock()
		defer mu.Unlock()
		if addr == "localhost:8081" && !nodeHealthy {
			return fmt.Errorf("node is down")
		}
		return nil
	})

	assignments := func() []*PlayerAssignment {
		return []*PlayerAssignment{{ShardIndex: 0, NodeID: "node-1", Address: "localhost:8081"}}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx, assignments)

	time.Sleep(100 * time.Millisecond)
	assert.True(t, monitor.IsHealthy("node-1"))

	mu.Lock()
	nodeHealthy = false
	mu.Unlock()

	time.Sleep(250 * time.Millisecond)
	assert.False(t, monitor.IsHealthy("node-1"))

	mu.Lock()
	nodeHealthy = true
	mu.Unlock()

	time.Sleep(100 * time.Millisecond)

	assert.True(t, monitor.IsHealthy("node-1"))

	health := monitor.GetNodeHealth("node-1")
	require.NotNil(t, health)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 0, health.ConsecutiveFails)
}

func TestHealthMonitorNodeRemoval(t *testing.T) {
	monitor := NewHealthMonitor(50*time.Millisecond, nil, nil)
	defer monitor.Stop()

	monitor.SetCheckFunction(func(addr string) error { return nil })

	var nodes []*PlayerAssignment
	var mu sync.Mutex

	assignments := func() []*PlayerAssignment {
		mu.Lock()
		defer mu.Unlock()
		return nodes
	}

	mu.Lock()
	nodes = []*PlayerAssignment{
		{ShardIndex: 0, NodeID: "node-1", Address: "localhost:8081"},
		{ShardIndex: 1, NodeID: "node-2", Address: "localhost:8082"},
	}
	mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx, assignments)

	time.Sleep(100 * time.Millisecond)

	allHealth := monitor.GetAllNodeHealth()
	assert.Len(t, allHealth, 2)

	mu.Lock()
	nodes = []*PlayerAssignment{{ShardIndex: 0, NodeID: "node-1", Address: "localhost:8081"}}
	mu.Unlock()

	time.Sleep(100 * time.Millisecond)

	allHealth = monitor.GetAllNodeHealth()
	assert.Len(t, allHealth, 1)
	assert.Contains(t, allHealth, "node-1")
	assert.NotContains(t, allHealth, "node-2")
}

func TestHealthMonitorStop(t *testing.T) {
	monitor := NewHealthMonitor(50*time.Millisecond, nil, nil)

	running := true
	checkCount := 0
	var mu sync.Mutex

	monitor.SetCheckFunction(func(addr string) error {
		mu.Lock()
		defer mu.Unlock()
		checkCount++
		return nil
	})

	assignments := func() []*PlayerAssignment {
		mu.Lock()
		defer mu.Unlock()
		if running {
			return []*PlayerAssignment{{ShardIndex: 0, NodeID: "node-1", Address: "localhost:8081"}}
		}
		return nil
	}

	go monitor.Start(nil, assignments)

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	checksBeforeStop := checkCount
	mu.Unlock()

	mu.Lock()
	running = false
	mu.Unlock()
	monitor.Stop()

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	checksAfterStop := checkCount
	mu.Unlock()

	assert.Greater(t, checksBeforeStop, 0)
	assert.Equal(t, checksBeforeStop, checksAfterStop)
}

func TestHealthMonitorConcurrency(t *testing.T) {
	monitor := NewHealthMonitor(10*time.Millisecond, nil, nil)
	defer monitor.Stop()

	monitor.SetCheckFunction(func(addr string) error { return nil })

	nodeCount := 5
	assignments := func() []*PlayerAssignment {
		nodes := make([]*PlayerAssignment, nodeCount)
		for i := 0; i < nodeCount; i++ {
			nodes[i] = &PlayerAssignment{
				ShardIndex: uint64(i),
				NodeID:     fmt.Sprintf("node-%d", i),
				Address:    fmt.Sprintf("localhost:808%d", i),
			}
		}
		return nodes
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx, assignments)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				monitor.IsHealthy(fmt.Sprintf("node-%d", id%nodeCount))
				monitor.GetNodeHealth(fmt.Sprintf("node-%d", id%nodeCount))
				monitor.GetAllNodeHealth()
				time.Sleep(time.Millisecond)
			}
		}(i)
	}

	wg.Wait()

	allHealth := monitor.GetAllNodeHealth()
	assert.Len(t, allHealth, nodeCount)
}

func TestHealthMonitorGetNodeHealth(t *testing.T) {
	monitor := NewHealthMonitor(50*time.Millisecond, nil, nil)
	defer monitor.Stop()

	monitor.SetCheckFunction(func(addr string) error { return nil })

	assignments := func() []*PlayerAssignment {
		return []*PlayerAssignment{{ShardIndex: 0, NodeID: "node-1", Address: "localhost:8081"}}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx, assignments)

	time.Sleep(100 * time.Millisecond)

	health := monitor.GetNodeHealth("node-1")
	require.NotNil(t, health)
	assert.Equal(t, "node-1", health.NodeID)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 0, health.ConsecutiveFails)
	assert.False(t, health.LastCheck.IsZero())
	assert.False(t, health.LastHealthy.IsZero())

	health = monitor.GetNodeHealth("node-999")
	assert.Nil(t, health)
}

func TestHealthMonitorUnhealthyCallback(t *testing.T) {
	monitor := NewHealthMonitor(50*time.Millisecond, nil, nil)
	defer monitor.Stop()

	failCount := 0
	var mu sync.Mutex

	monitor.SetCheckFunction(func(addr string) error {
		mu.Lock()
		defer mu.Unlock()
		if failCount < 3 {
			failCount++
			return fmt.Errorf("failing")
		}
		return nil
	})

	callbackCount := 0
	var callbackMu sync.Mutex
	monitor.SetOnUnhealthy(func(nodeID string) {
		callbackMu.Lock()
		callbackCount++
		callbackMu.Unlock()
	})

	assignments := func() []*PlayerAssignment {
		return []*PlayerAssignment{{ShardIndex: 0, NodeID: "node-1", Address: "localhost:8081"}}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx, assignments)

	time.Sleep(250 * time.Millisecond)

	callbackMu.Lock()
	assert.Equal(t, 1, callbackCount)
	callbackMu.Unlock()

	time.Sleep(150 * time.Millisecond)

	callbackMu.Lock()
	assert.Equal(t, 1, callbackCount)
	callbackMu.Unlock()
}
