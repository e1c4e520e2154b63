package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTopologyFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "topology.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write topology file: %v", err)
	}
	return path
}

func TestLoadTopologyHappyPath(t *testing.T) {
	path := writeTopologyFile(t, `
threshold: 2
nodes:
  - id: node-1
    platform: linux
    address: 10.0.0.1
    port: 9001
    shard_index: 0
    cert_path: /etc/mpcengine/node-1.pem
    key_id: node-1-key
  - id: node-2
    address: 10.0.0.2
    port: 9001
    shard_index: 1
  - id: node-3
    address: 10.0.0.3
    port: 9001
    shard_index: 2
`)
	top, err := LoadTopology(path)
	if err != nil {
		t.Fatalf("LoadTopology: %v", err)
	}
	if top.Threshold != 2 {
		t.Fatalf("Threshold = %d, want 2", top.Threshold)
	}
	if len(top.Nodes) != 3 {
		t.Fatalf("len(Nodes) = %d, want 3", len(top.Nodes))
	}
	node, ok := top.NodeByShardIndex(1)
	if !ok || node.ID != "node-2" {
		t.Fatalf("NodeByShardIndex(1) = %+v, %v", node, ok)
	}
}

func TestLoadTopologyRejectsThresholdTooHigh(t *testing.T) {
	path := writeTopologyFile(t, `
threshold: 5
nodes:
  - id: node-1
    address: 10.0.0.1
    shard_index: 0
`)
	if _, err := LoadTopology(path); err == nil {
		t.Fatal("expected error for threshold exceeding node count")
	}
}

func TestLoadTopologyRejectsDuplicateShardIndex(t *testing.T) {
	path := writeTopologyFile(t, `
threshold: 1
nodes:
  - id: node-1
    address: 10.0.0.1
    shard_index: 0
  - id: node-2
    address: 10.0.0.2
    shard_index: 0
`)
	if _, err := LoadTopology(path); err == nil {
		t.Fatal("expected error for duplicate shard_index")
	}
}

func TestLoadTopologyRejectsMissingFile(t *testing.T) {
	if _, err := LoadTopology("/nonexistent/path/topology.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
