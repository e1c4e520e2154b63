package coordinator

import (
	"fmt"
	"sync"

	"github.com/dreamware/mpcengine/internal/config"
)

// PlayerAssignment binds one shard_index to the node that holds that
// player's key share.
type PlayerAssignment struct {
	ShardIndex uint64
	NodeID     string
	Address    string
	Platform   string
}

// PlayerRegistry is the coordinator's static view of which node owns
// which shard_index. Unlike a consistent-hashing shard map, assignments
// here come from the cluster topology file and do not move on their own;
// AssignPlayer exists only for the operator-driven case of replacing a
// node's address.
type PlayerRegistry struct {
	mu          sync.RWMutex
	assignments map[uint64]*PlayerAssignment
}

// NewPlayerRegistry builds an empty registry. Use LoadTopology to
// populate it from a config.Topology.
func NewPlayerRegistry() *PlayerRegistry {
	return &PlayerRegistry{assignments: make(map[uint64]*PlayerAssignment)}
}

// LoadTopology replaces the registry's assignments with those described
// by top.
func (r *PlayerRegistry) LoadTopology(top *config.Topology) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments = make(map[uint64]*PlayerAssignment, len(top.Nodes))
	for _, n := range top.Nodes {
		r.assignments[n.ShardIndex] = &PlayerAssignment{
			ShardIndex: n.ShardIndex,
			NodeID:     n.ID,
			Address:    fmt.Sprintf("%s:%d", n.Address, n.Port),
			Platform:   n.Platform,
		}
	}
}

// AssignPlayer binds shardIndex to nodeID/address, overwriting any prior
// assignment.
func (r *PlayerRegistry) AssignPlayer(shardIndex uint64, nodeID, address, platform string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignments[shardIndex] = &PlayerAssignment{
		ShardIndex: shardIndex,
		NodeID:     nodeID,
		Address:    address,
		Platform:   platform,
	}
}

// RemovePlayer unassigns shardIndex.
func (r *PlayerRegistry) RemovePlayer(shardIndex uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.assignments, shardIndex)
}

// GetAssignment returns a copy of the assignment for shardIndex, or nil
// if unassigned.
func (r *PlayerRegistry) GetAssignment(shardIndex uint64) *PlayerAssignment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.assignments[shardIndex]
	if !ok {
		return nil
	}
	cp := *a
	return &cp
}

// AllAssignments returns a copy of every current assignment, in no
// particular order.
func (r *PlayerRegistry) AllAssignments() []*PlayerAssignment {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*PlayerAssignment, 0, len(r.assignments))
	for _, a := range r.assignments {
		cp := *a
		out = append(out, &cp)
	}
	return out
}

// ShardIndices returns every shard_index currently assigned, sorted is
// not guaranteed.
func (r *PlayerRegistry) ShardIndices() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uint64, 0, len(r.assignments))
	for idx := range r.assignments {
		out = append(out, idx)
	}
	return out
}

// Count returns the number of currently assigned players.
func (r *PlayerRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.assignments)
}
