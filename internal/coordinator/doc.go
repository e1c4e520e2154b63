// Package coordinator is the control-plane brain sitting between the
// wallet HTTPS ingress and the signing nodes.
//
// # Overview
//
// A PlayerRegistry maps each shard_index in the cluster topology to the
// node that owns it, a HealthMonitor pings every assigned node's TLS
// listener on an interval and reports nodes unhealthy after consecutive
// failures, and an Orchestrator drives the 5-phase keygen/ECDSA/EdDSA
// protocols across a threshold of those nodes, reassembling the shard
// signatures into the final signature returned to the wallet.
//
// Player assignments are static: every key_id's signing nodes are fixed
// by the cluster topology, never rehashed on membership change. Node
// health is observed over the same TLS wire the signing protocol uses,
// via a control-frame Ping rather than a separate HTTP probe.
package coordinator
