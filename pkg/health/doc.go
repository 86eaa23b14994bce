// Package health provides generic reachability checkers (HTTP, TCP) and a
// Monitor that runs named capability checks — QueueChecker, RegistryChecker,
// BlobChecker, CredentialChecker — on a fixed interval, tracking consecutive
// failures before flipping a component unhealthy. Monitor publishes results
// into pkg/metrics's component registry, which backs the supervisor's
// /health, /ready, and /live HTTP endpoints.
//
// A component only flips unhealthy after Config.Retries consecutive failed
// checks, so a single transient blip doesn't trip readiness; it flips back
// healthy on the very next success.
package health
