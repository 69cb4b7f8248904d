// Package dispatch moves eligible artifacts from the status ledger onto the
// resource pools.
//
// A Dispatcher runs two entry paths that share one execution path. The
// scheduled path (Run, Tick) selects a batch of eligible artifacts at a fixed
// interval. The event path (Dispatch, HandleEvent) starts a single artifact
// when a processing event arrives. Either way the artifact becomes a dispatch
// unit: an active slot is reserved, the job's semaphore permit is acquired,
// and the unit is submitted to the job's pool where it moves the artifact
// through the job's status transition.
//
// The number of active units never exceeds MaxConcurrentJobs, and every
// permit and slot a unit takes is returned on every exit path.
package dispatch
