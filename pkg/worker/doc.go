// Package worker implements the processing worker: the consumer side of
// the content-processing task queue. A Worker dequeues a batch of
// ContentProcessingTask envelopes, resolves each task's owning pipeline
// through a bounded LRU graph cache, runs the remainder of that pipeline's
// executor graph over the task's content items, and persists the outcome
// — per-item events, executor outputs, and the owning VaultExecution's
// terminal status — back to the registry.
//
// A received message stays invisible to other workers via a periodic
// lease-extend heartbeat at most visibility/3 apart. Completion deletes the
// message outright; a retriable failure (Transient, Timeout) re-enqueues
// the task with an incremented retry_count and a backoff-scaled visibility
// delay, deleting the original; a non-retriable failure (InvalidPipeline,
// PipelineMissing, retries exhausted) marks the execution failed and deletes
// the message without a retry, and a PoisonMessage is deleted without
// touching the registry. A shutdown mid-flight
// lets the current batch finish within its grace period; a task that
// cannot finish in time is left for its lease to expire rather than
// deleted, so a peer worker picks it up.
package worker
