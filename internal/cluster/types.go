// Package cluster provides the node descriptor types shared between the
// coordinator and the command-line entry points. See doc.go for the
// package overview.
package cluster

import (
	"fmt"
	"time"
)

// NodeInfo describes one signing node's place in the cluster: which
// player (shard_index) it holds, where to reach it, which platform's
// KMS/resource-loader backend it uses, and its observed health status.
//
// NodeInfo is a plain descriptor, not a live connection; internal/nodeclient
// and internal/coordinator hold the TLS client and health state that are
// keyed by a NodeInfo's ID.
type NodeInfo struct {
	// ID is the unique identifier for this node within the cluster.
	ID string `json:"id"`

	// Addr is the host:port where this node's TLS wire listener can be
	// reached.
	Addr string `json:"addr"`

	// Platform selects which KMS/resource-loader backend the node uses
	// (e.g. "LOCAL", "AWS", "AZURE", "IBM", "GOOGLE").
	Platform string `json:"platform,omitempty"`

	// ShardIndex is this node's MPC player_id.
	ShardIndex uint64 `json:"shard_index"`

	// CertPath is the resource-loader path to this node's TLS
	// certificate chain.
	CertPath string `json:"cert_path,omitempty"`

	// KeyID is the KMS secret id for this node's TLS private key.
	KeyID string `json:"key_id,omitempty"`

	// Status is the last health status observed for this node:
	// "healthy", "unhealthy", or "unknown".
	Status string `json:"status,omitempty"`

	// LastHealthCheck records when Status was last updated.
	LastHealthCheck time.Time `json:"last_health_check,omitzero"`
}

// FromNodeConfig builds a NodeInfo from the fields of the static topology
// file, the way the coordinator populates its cluster view at startup.
func FromNodeConfig(id, platform, host string, port int, shardIndex uint64, certPath, keyID string) NodeInfo {
	return NodeInfo{
		ID:         id,
		Addr:       fmt.Sprintf("%s:%d", host, port),
		Platform:   platform,
		ShardIndex: shardIndex,
		CertPath:   certPath,
		KeyID:      keyID,
		Status:     "unknown",
	}
}
