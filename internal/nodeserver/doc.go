// Package nodeserver implements the node side of the coordinator<->node
// wire protocol: trusted-IP admission, a single live TLS connection, a
// receive loop dispatching framed requests to a handler pool, and a send
// loop draining a bounded response queue. Grounded on NodeServer.{hpp,cpp}
// from the original implementation and on this codebase's cmd/node
// register/serve loop texture.
package nodeserver
