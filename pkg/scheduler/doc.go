/*
Package scheduler implements the source worker's crawl loop: for every
enabled pipeline's every enabled vault, decide whether a crawl is due,
acquire the vault's distributed lock, run the pipeline's input executor,
enqueue ContentProcessingTasks for the downstream pipeline, and advance the
vault's checkpoint.

The lock protocol (lease.go) is a TTL-based distributed mutex, not a
consensus log: acquisition is create-if-absent on the lock container,
conflicts are resolved by reading the existing lock and stealing it only
once its expires_at has passed, and a background refresher renews the
lease every ttl/3 for as long as the crawl runs.

The crawl procedure (crawl.go) follows spec.md's eight steps exactly: open
a pending execution, read the last checkpoint, drain the input executor
lazily, batch and send tasks, advance the checkpoint only after every item
has been accounted for, record the enqueued count, then release the lock.
A crawl that aborts mid-iteration never advances the checkpoint; the next
lock holder resumes from the same watermark and may re-enqueue some items,
which is the accepted at-least-once guarantee.
*/
package scheduler
