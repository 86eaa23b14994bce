// Package supervisor runs and monitors the worker fabric's process pool: a
// configurable number of processing-worker processes plus the source
// scheduler process, each a re-exec'd copy of the same contentflow binary
// invoked with a different subcommand. The supervisor restarts any process
// that exits unexpectedly, with a fixed backoff between relaunch attempts,
// and coordinates a graceful, SIGTERM-then-SIGKILL shutdown of the whole
// pool bounded by a configured grace period.
package supervisor
