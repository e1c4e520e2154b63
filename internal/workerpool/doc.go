// Package workerpool provides the bounded queue and fixed-size goroutine
// pool the node server and coordinator→node client use for their
// send/receive workers and handler dispatch, grounded on
// ThreadSafeQueue.hpp and ThreadPool.hpp from the original implementation.
package workerpool
