// Package cluster provides the node descriptor shared by the coordinator
// orchestrator, the health monitor, and the command-line entry points.
//
// # Overview
//
// A signing cluster is a coordinator process statically configured with
// a fixed set of nodes, each holding one MPC player's key share. Unlike a
// consistent-hashed storage cluster, membership here does not change at
// runtime: nodes are loaded once from a topology file (internal/config)
// at startup and do not self-register over the wire.
//
// NodeInfo captures exactly what the rest of the control plane needs to
// reach and identify a node: its address, its MPC player index
// (shard_index), which platform backend supplies its KMS/resource-loader
// material, and the health status internal/coordinator's HealthMonitor
// last observed for it.
package cluster
