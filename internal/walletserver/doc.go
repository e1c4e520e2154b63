// Package walletserver implements the wallet-facing HTTPS ingress: a
// TLS-terminating HTTP/1.1 server that manually parses pipelined requests,
// decodes a Protobuf WalletCoordinatorMessage body, dispatches to a
// bounded handler pool, and writes responses in strict per-connection
// request order regardless of handler completion order. Grounded on
// WalletConnection.{hpp,cpp} and HttpParser.{hpp,cpp} from the original
// implementation, with request-order preservation resolved the way
// spec.md describes it: a future is enqueued before dispatch, not after
// completion.
package walletserver
