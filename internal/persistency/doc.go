// Package persistency implements the per-key and per-tx scratch store the
// crypto provider consumes during keygen and signing, grounded on
// FireblocksPersistency.{h,cpp} from the original implementation. State is
// process-local and in-memory: a process restart forfeits in-flight
// signings, same as the original. Any durability requirement belongs to
// the wallet server, not here.
package persistency
