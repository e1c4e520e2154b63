// Package config generalizes this codebase's getenv/mustGetenv
// environment helpers into a typed Env wrapper, and adds a yaml-backed
// static node-topology loader for the coordinator.
package config
