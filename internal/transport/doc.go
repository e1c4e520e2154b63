// Package transport provides exact-length, deadline-bound TLS I/O and TLS
// context construction shared by the node server, the coordinator-to-node
// client, and the wallet HTTPS server.
//
// All three components need the same primitive: read or write a known
// number of bytes off a *tls.Conn, translating short reads, peer-close,
// and timeouts into the small error taxonomy spec.md §7 calls for, instead
// of letting raw net.OpError values leak to callers.
package transport
