package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// NodeConfig describes one signing node's place in the cluster: which
// shard it holds, where to reach it, and which certificate identifies it.
type NodeConfig struct {
	ID         string `yaml:"id"`
	Platform   string `yaml:"platform"`
	Address    string `yaml:"address"`
	Port       int    `yaml:"port"`
	ShardIndex uint64 `yaml:"shard_index"`
	CertPath   string `yaml:"cert_path"`
	KeyID      string `yaml:"key_id"`
}

// Topology is the coordinator's static view of the cluster: the full set
// of nodes and the signing threshold required across them.
type Topology struct {
	Threshold int          `yaml:"threshold"`
	Nodes     []NodeConfig `yaml:"nodes"`
}

// LoadTopology reads and parses a node topology from a YAML file.
func LoadTopology(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read topology file %s", path)
	}
	var top Topology
	if err := yaml.Unmarshal(data, &top); err != nil {
		return nil, errors.Wrapf(err, "parse topology file %s", path)
	}
	if err := top.Validate(); err != nil {
		return nil, err
	}
	return &top, nil
}

// Validate checks that the topology is internally consistent: every node
// has an ID and address, shard indexes are unique, and the threshold does
// not exceed the number of nodes.
func (t *Topology) Validate() error {
	if len(t.Nodes) == 0 {
		return errors.New("topology: no nodes configured")
	}
	if t.Threshold <= 0 || t.Threshold > len(t.Nodes) {
		return errors.Errorf("topology: threshold %d invalid for %d nodes", t.Threshold, len(t.Nodes))
	}
	seenShard := make(map[uint64]bool, len(t.Nodes))
	seenID := make(map[string]bool, len(t.Nodes))
	for _, n := range t.Nodes {
		if n.ID == "" {
			return errors.New("topology: node with empty id")
		}
		if seenID[n.ID] {
			return errors.Errorf("topology: duplicate node id %s", n.ID)
		}
		seenID[n.ID] = true
		if n.Address == "" {
			return errors.Errorf("topology: node %s has no address", n.ID)
		}
		if seenShard[n.ShardIndex] {
			return errors.Errorf("topology: duplicate shard_index %d", n.ShardIndex)
		}
		seenShard[n.ShardIndex] = true
	}
	return nil
}

// NodeByShardIndex returns the node assigned to the given shard, if any.
func (t *Topology) NodeByShardIndex(shardIndex uint64) (NodeConfig, bool) {
	for _, n := range t.Nodes {
		if n.ShardIndex == shardIndex {
			return n, true
		}
	}
	return NodeConfig{}, false
}
