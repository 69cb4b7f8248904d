// Package pool provides the bounded worker pools and fair admission
// semaphores that execute media processing work.
//
// Each pool has a core and a maximum worker count, a bounded queue, an idle
// keep-alive for workers above the core size, and a saturation policy that
// decides what happens once the queue and the workers are both exhausted.
// Pools are paired with a counting semaphore sized independently from the
// pool, which bounds concurrent use of the external resource a pool talks to.
package pool
