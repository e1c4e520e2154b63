// Package nodeclient is the coordinator's TLS client for a single signing
// node: a bounded send queue drained by a send worker, a receive worker
// demultiplexing framed responses onto a request_id keyed promise map, and
// a monotonic request_id counter. Grounded on the coordinator<->node
// client contract and on internal/nodeserver's worker-loop texture, which
// both descend from NodeServer.{hpp,cpp} in the original implementation.
package nodeclient
