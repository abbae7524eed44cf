// Package port manages the pool of host ports that sandboxes bind to.
//
// Each sandbox publishes its application on exactly one host port. The pool
// is created once at startup from the configured range and lives for the
// whole process:
//
//	pool, err := port.NewPool(3005, 3014)
//	p, err := pool.Acquire()
//	defer pool.Release(p)
//
// # Conservation
//
// A port is either free or held, never both, and Acquire never hands the
// same port to two callers. After any sequence of acquires followed by the
// same number of releases, the set of free ports equals the initial set.
//
// # Allocation Strategy
//
// Ports are reused FIFO: a released port goes to the back of the queue, so
// the port a sandbox just gave up is the last to be handed out again. This
// gives the engine time to finish tearing down the old port binding.
//
// Acquire on an empty pool fails with ErrExhausted. Callers surface that as
// a rejected request; the pool never blocks or retries.
package port
