package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Supervisor metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "contentflow_workers_total",
			Help: "Total number of supervised worker processes by role and alive state",
		},
		[]string{"role", "alive"},
	)

	WorkerRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentflow_worker_restarts_total",
			Help: "Total number of worker process restarts by role",
		},
		[]string{"role"},
	)

	// Scheduler metrics
	SchedulerTicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "contentflow_scheduler_ticks_total",
			Help: "Total number of scheduler loop iterations",
		},
	)

	CrawlsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentflow_crawls_total",
			Help: "Total number of crawl attempts by outcome",
		},
		[]string{"outcome"},
	)

	CrawlDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "contentflow_crawl_duration_seconds",
			Help:    "Time taken to complete one crawl_one invocation",
			Buckets: prometheus.DefBuckets,
		},
	)

	LockConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "contentflow_lock_conflicts_total",
			Help: "Total number of scheduler lock acquisition conflicts",
		},
	)

	ItemsEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "contentflow_items_enqueued_total",
			Help: "Total number of content items enqueued as processing tasks",
		},
	)

	// Processing worker metrics
	TasksProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentflow_tasks_processed_total",
			Help: "Total number of processing tasks handled by terminal outcome",
		},
		[]string{"outcome"},
	)

	TaskProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "contentflow_task_processing_duration_seconds",
			Help:    "Time taken to process one content-processing task",
			Buckets: prometheus.DefBuckets,
		},
	)

	TaskRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "contentflow_task_retries_total",
			Help: "Total number of task re-enqueues after a retriable failure",
		},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "contentflow_reconciliation_duration_seconds",
			Help:    "Time taken for one execution-reconciliation sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "contentflow_reconciliation_cycles_total",
			Help: "Total number of reconciliation sweeps completed",
		},
	)

	ExecutionsReconciledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "contentflow_executions_reconciled_total",
			Help: "Total number of stale running executions marked failed by the reconciler",
		},
	)

	// Status surface metrics
	StatusRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentflow_status_requests_total",
			Help: "Total number of status-surface HTTP requests by route and status code",
		},
		[]string{"route", "status"},
	)
)

func init() {
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(WorkerRestartsTotal)
	prometheus.MustRegister(SchedulerTicksTotal)
	prometheus.MustRegister(CrawlsTotal)
	prometheus.MustRegister(CrawlDuration)
	prometheus.MustRegister(LockConflictsTotal)
	prometheus.MustRegister(ItemsEnqueuedTotal)
	prometheus.MustRegister(TasksProcessedTotal)
	prometheus.MustRegister(TaskProcessingDuration)
	prometheus.MustRegister(TaskRetriesTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(ExecutionsReconciledTotal)
	prometheus.MustRegister(StatusRequestsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
