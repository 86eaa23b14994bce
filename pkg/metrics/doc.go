/*
Package metrics provides Prometheus metrics collection and exposition for the
worker fabric, plus a small component-health registry used by the status
surface's health and readiness endpoints.

Metrics cover the four worker-side components: the supervisor (worker counts,
restarts), the scheduler (crawl outcomes, lock conflicts, items enqueued),
the processing worker (task outcomes, retries, duration), and the execution
reconciler (sweep duration, executions reconciled). All metrics are
registered at package init via MustRegister and exposed at /metrics through
Handler(), mounted by the status surface alongside its /health, /ready,
/live and /status routes; the status surface has no root (/) route.

Timer is a small helper: start one with NewTimer, then ObserveDuration (or
ObserveDurationVec for labeled histograms) when the operation finishes.

RegisterComponent/UpdateComponent feed the aggregate health/readiness JSON
returned by GetHealth/GetReadiness, used by HealthHandler/ReadyHandler.
*/
package metrics
