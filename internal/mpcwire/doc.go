// Package mpcwire implements the length-prefixed wire framing used between
// the coordinator and its nodes: a fixed 32-byte header (magic, version,
// message type, body length, checksum, timestamp, request id) followed by
// an opaque body.
//
// The codec only validates and (de)serializes frames; it never touches a
// connection. Callers (internal/transport, internal/nodeserver,
// internal/nodeclient) decide what a non-OK ValidationResult means for the
// connection it arrived on.
package mpcwire
