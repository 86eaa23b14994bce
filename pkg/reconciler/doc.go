// Package reconciler sweeps VaultExecutions stuck in the "running" status
// because the worker that owned them died without reporting a terminal
// outcome — a crashed process, a lost node, a lease that expired mid-task.
// It runs a fixed-interval, level-triggered sweep: every cycle re-derives
// what needs fixing from the registry alone, with no memory of prior
// cycles, so a missed or delayed sweep is harmless and the system still
// converges on the next one.
//
// A stale execution is marked failed with a Transient cause rather than
// deleted; the scheduler's own crawl loop will re-crawl the owning vault
// from its last committed checkpoint on its next due tick, so no content is
// lost, though items past that checkpoint may be enqueued a second time.
package reconciler
