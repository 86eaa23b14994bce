package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Azure/contentflow-sub002/pkg/contentflowerr"
	"github.com/Azure/contentflow-sub002/pkg/executor"
	"github.com/Azure/contentflow-sub002/pkg/log"
	"github.com/Azure/contentflow-sub002/pkg/metrics"
	"github.com/Azure/contentflow-sub002/pkg/storage"
	"github.com/Azure/contentflow-sub002/pkg/types"
)

// Containers names the Registry containers the processing worker reads and
// writes.
type Containers struct {
	Pipelines  string
	Executions string
}

// Options configures a new Worker.
type Options struct {
	WorkerID              string
	MaxMessages           int
	VisibilityTimeout     time.Duration
	ShutdownGrace         time.Duration
	GraphCacheSize        int
	ExecutionLookupTries  int
	ExecutionLookupDelay  time.Duration
	DefaultMaxTaskRetries int
	DefaultTaskTimeout    time.Duration
	MaxParallel           int
}

// Worker is one processing worker: it dequeues ContentProcessingTasks,
// runs the pipeline's remaining graph stages over their content items, and
// persists the outcome to the owning VaultExecution record.
type Worker struct {
	queue    storage.Queue
	registry storage.Registry
	blobs    storage.BlobStore
	clock    storage.Clock

	containers Containers
	opts       Options
	graphs     *graphCache

	logger zerolog.Logger
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWorker builds a Worker over the given capabilities.
func NewWorker(queue storage.Queue, registry storage.Registry, blobs storage.BlobStore, clock storage.Clock, containers Containers, opts Options) (*Worker, error) {
	graphs, err := newGraphCache(opts.GraphCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create pipeline graph cache: %w", err)
	}
	return &Worker{
		queue:      queue,
		registry:   registry,
		blobs:      blobs,
		clock:      clock,
		containers: containers,
		opts:       opts,
		graphs:     graphs,
		logger:     log.WithWorker(opts.WorkerID),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start begins the dequeue loop in a background goroutine.
func (w *Worker) Start() {
	go w.run()
}

// Stop signals the worker to stop dequeuing new messages and waits for the
// current batch to finish within its shutdown grace period.
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Worker) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		leases, err := w.queue.Receive(context.Background(), w.opts.MaxMessages, int(w.opts.VisibilityTimeout.Seconds()))
		if err != nil {
			w.logger.Error().Err(err).Msg("dequeue failed")
			continue
		}
		if len(leases) == 0 {
			select {
			case <-w.stopCh:
				return
			case <-time.After(time.Second):
			}
			continue
		}

		var wg sync.WaitGroup
		for _, lease := range leases {
			lease := lease
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.processOne(lease)
			}()
		}
		wg.Wait()
	}
}

// processOne drives one message through the received -> running ->
// {completed|failed|retrying} state machine from spec.md §4.4.
func (w *Worker) processOne(lease storage.Lease) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.DefaultTaskTimeout+w.opts.ShutdownGrace)
	defer cancel()

	stopHeartbeat := w.heartbeat(ctx, lease)
	defer stopHeartbeat()

	timer := metrics.NewTimer()
	outcome := w.process(ctx, lease.Body)
	timer.ObserveDuration(metrics.TaskProcessingDuration)

	switch outcome.action {
	case actionDelete:
		metrics.TasksProcessedTotal.WithLabelValues(outcome.label).Inc()
		if err := w.queue.Delete(ctx, lease); err != nil {
			w.logger.Error().Err(err).Msg("failed to delete processed message")
		}
	case actionRetry:
		metrics.TaskRetriesTotal.Inc()
		body, err := encodeRetryTask(outcome.retryTask)
		if err != nil {
			w.logger.Error().Err(err).Msg("failed to re-encode task for retry")
			return
		}
		if err := w.queue.Send(ctx, body, backoffVisibility(outcome.retryTask.RetryCount)); err != nil {
			w.logger.Error().Err(err).Msg("failed to re-enqueue retriable task")
			return
		}
		if err := w.queue.Delete(ctx, lease); err != nil {
			w.logger.Error().Err(err).Msg("failed to delete original message after re-enqueue")
		}
	case actionSurrender:
		// Cancellation exceeded the shutdown grace period: leave the
		// message in place so its lease expires and a peer retries it.
	}
}

// heartbeat extends lease's visibility at heartbeat interval <= visibility/3
// for as long as ctx is alive, per spec.md §4.4.
func (w *Worker) heartbeat(ctx context.Context, lease storage.Lease) (stop func()) {
	interval := w.opts.VisibilityTimeout / 3
	if interval <= 0 {
		interval = time.Second
	}
	hbCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := w.queue.Extend(hbCtx, lease, int(w.opts.VisibilityTimeout.Seconds())); err != nil {
					w.logger.Warn().Err(err).Msg("failed to extend message visibility")
				}
			}
		}
	}()
	return cancel
}

type action int

const (
	actionDelete action = iota
	actionRetry
	actionSurrender
)

type outcome struct {
	action    action
	label     string
	retryTask types.ContentProcessingTask
}

// process implements the Process/Persist/Terminate operations of
// spec.md §4.4 for a single message body.
func (w *Worker) process(ctx context.Context, body []byte) outcome {
	task, err := decodeTask(body)
	if err != nil {
		w.logger.Error().Err(err).Msg("rejecting poison message")
		return outcome{action: actionDelete, label: "poison"}
	}

	pipeline, err := w.loadPipeline(ctx, task.PipelineID)
	if err != nil {
		w.logger.Error().Err(err).Str("pipeline_id", task.PipelineID).Msg("pipeline missing or disabled")
		w.failExecutionWithRetry(ctx, task.ExecutionID, contentflowerr.New(contentflowerr.PipelineMissing, err))
		return outcome{action: actionDelete, label: "pipeline_missing"}
	}

	graph, err := w.graphs.getOrParse(pipeline.ID, pipeline.YAML)
	if err != nil {
		w.failExecutionWithRetry(ctx, task.ExecutionID, err)
		return outcome{action: actionDelete, label: "invalid_pipeline"}
	}

	startNodes := []string{graph.InputNode}
	maxParallel := w.opts.MaxParallel
	if task.ExecutedInputExecutor != "" {
		successors := graph.Successors(task.ExecutedInputExecutor)
		if len(successors) == 0 {
			w.failExecutionWithRetry(ctx, task.ExecutionID, contentflowerr.New(contentflowerr.InvalidPipeline,
				fmt.Errorf("input executor %q has no successor", task.ExecutedInputExecutor)))
			return outcome{action: actionDelete, label: "invalid_pipeline"}
		}
		startNodes = successors
		// The executed input executor itself never appears in this run (the
		// scheduler already ran it), so its own declared max_parallel would
		// otherwise never bound fan-out across these successors; fold it in
		// here.
		if inputNode, ok := graph.Node(task.ExecutedInputExecutor); ok && inputNode.MaxParallel > 0 {
			if maxParallel <= 0 || inputNode.MaxParallel < maxParallel {
				maxParallel = inputNode.MaxParallel
			}
		}
	}

	runCtx := executor.ExecCtx{Context: ctx, Blobs: w.blobs}
	results := executor.RunFrom(runCtx, graph, startNodes, task.Content, executor.PolicyOptions{
		Retries:     pipeline.Retries,
		RetryDelay:  time.Duration(pipeline.RetryDelay) * time.Second,
		Timeout:     time.Duration(pipeline.Timeout) * time.Second,
		MaxParallel: maxParallel,
	})

	if err := ctx.Err(); err != nil && errors.Is(err, context.DeadlineExceeded) {
		return outcome{action: actionSurrender}
	}

	failed := firstFailure(results)
	retrying := failed != nil && contentflowerr.KindOf(failed).Retriable() && task.RetryCount < task.MaxRetries
	if !retrying {
		if err := w.persistResults(ctx, task, results); err != nil {
			w.logger.Error().Err(err).Str("execution_id", task.ExecutionID).Msg("failed to persist execution results")
		}
	}

	if failed == nil {
		return outcome{action: actionDelete, label: "completed"}
	}

	kind := contentflowerr.KindOf(failed)
	if !kind.Retriable() {
		w.failExecutionWithRetry(ctx, task.ExecutionID, failed)
		return outcome{action: actionDelete, label: string(kind)}
	}
	if task.RetryCount >= task.MaxRetries {
		w.failExecutionWithRetry(ctx, task.ExecutionID, failed)
		return outcome{action: actionDelete, label: "retries_exhausted"}
	}

	retryTask := task
	retryTask.RetryCount++
	return outcome{action: actionRetry, retryTask: retryTask}
}

func firstFailure(results []executor.RunResult) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// backoffVisibility returns an increasing re-delivery delay keyed on the
// task's retry count so repeated transient failures don't hot-loop.
func backoffVisibility(retryCount int) time.Duration {
	d := time.Duration(retryCount) * 5 * time.Second
	if d > 5*time.Minute {
		return 5 * time.Minute
	}
	return d
}

// loadPipeline reads a Pipeline and rejects it unless it exists and is
// enabled, matching the PipelineMissing failure kind's trigger condition.
func (w *Worker) loadPipeline(ctx context.Context, pipelineID string) (types.Pipeline, error) {
	doc, err := w.registry.Get(ctx, w.containers.Pipelines, pipelineID)
	if err != nil {
		return types.Pipeline{}, err
	}
	var p types.Pipeline
	if err := json.Unmarshal(doc.Body, &p); err != nil {
		return types.Pipeline{}, err
	}
	if !p.Enabled {
		return types.Pipeline{}, fmt.Errorf("pipeline %s is disabled", pipelineID)
	}
	p.Revision = doc.Revision
	return p, nil
}

// loadExecutionWithRetry reads a VaultExecution, retrying up to
// opts.ExecutionLookupTries times with opts.ExecutionLookupDelay backoff
// before concluding PipelineMissing. It exists because the queue message
// can become visible to a worker slightly before the scheduler's own
// execution-record write is visible to that worker's Registry replica.
func (w *Worker) loadExecutionWithRetry(ctx context.Context, executionID string) (types.VaultExecution, string, error) {
	var lastErr error
	for attempt := 0; attempt < w.opts.ExecutionLookupTries; attempt++ {
		doc, err := w.registry.Get(ctx, w.containers.Executions, executionID)
		if err == nil {
			var e types.VaultExecution
			if err := json.Unmarshal(doc.Body, &e); err != nil {
				return types.VaultExecution{}, "", err
			}
			e.Revision = doc.Revision
			return e, doc.Revision, nil
		}
		lastErr = err
		if !errors.Is(err, storage.ErrNotFound) {
			return types.VaultExecution{}, "", err
		}
		select {
		case <-ctx.Done():
			return types.VaultExecution{}, "", ctx.Err()
		case <-time.After(w.opts.ExecutionLookupDelay):
		}
	}
	return types.VaultExecution{}, "", contentflowerr.New(contentflowerr.PipelineMissing,
		fmt.Errorf("execution %s not visible after %d attempts: %w", executionID, w.opts.ExecutionLookupTries, lastErr))
}

// persistResults appends per-item events and executor outputs to the
// execution record, retrying on optimistic-concurrency conflicts, then
// advances the execution's terminal status once every item in this batch
// has a result.
func (w *Worker) persistResults(ctx context.Context, task types.ContentProcessingTask, results []executor.RunResult) error {
	execution, revision, err := w.loadExecutionWithRetry(ctx, task.ExecutionID)
	if err != nil {
		return err
	}

	for attempt := 0; attempt < 5; attempt++ {
		updated := execution
		if updated.ExecutorOutputs == nil {
			updated.ExecutorOutputs = make(map[string]any)
		}
		anyFailed := false
		for _, r := range results {
			updated.Events = append(updated.Events, r.Events...)
			if r.Err != nil {
				anyFailed = true
				continue
			}
			updated.ExecutorOutputs[r.Item.ID.CanonicalID] = summarize(r.Item, task)
		}
		now := w.clock.Now()
		if anyFailed {
			updated.Status = types.ExecutionFailed
			updated.Error = firstFailure(results).Error()
		} else {
			updated.Status = types.ExecutionCompleted
		}
		updated.CompletedAt = &now

		body, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		_, err = w.registry.Replace(ctx, w.containers.Executions, storage.Doc{ID: task.ExecutionID, Body: body, Revision: revision})
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return err
		}
		execution, revision, err = w.loadExecutionWithRetry(ctx, task.ExecutionID)
		if err != nil {
			return err
		}
	}
	return fmt.Errorf("persist execution %s: too many optimistic-concurrency conflicts", task.ExecutionID)
}

// summarize picks what gets persisted against a VaultExecution for one
// item: the vault's save_execution_output bit (carried on the task since
// enqueue time) decides whether the full output or just its summary is
// kept.
func summarize(item types.ContentItem, task types.ContentProcessingTask) any {
	if task.SaveOutput {
		return item.Data
	}
	return item.SummaryData
}

// failExecutionWithRetry best-effort marks an execution failed with kind
// when the worker cannot proceed, swallowing a lookup failure since the
// message is about to be deleted either way.
func (w *Worker) failExecutionWithRetry(ctx context.Context, executionID string, cause error) {
	if executionID == "" {
		return
	}
	execution, revision, err := w.loadExecutionWithRetry(ctx, executionID)
	if err != nil {
		w.logger.Error().Err(err).Str("execution_id", executionID).Msg("could not load execution to record failure")
		return
	}
	now := w.clock.Now()
	execution.Status = types.ExecutionFailed
	execution.CompletedAt = &now
	execution.Error = fmt.Sprintf("%s: %s", contentflowerr.KindOf(cause), cause.Error())
	body, err := json.Marshal(execution)
	if err != nil {
		return
	}
	if _, err := w.registry.Replace(ctx, w.containers.Executions, storage.Doc{ID: executionID, Body: body, Revision: revision}); err != nil {
		w.logger.Error().Err(err).Str("execution_id", executionID).Msg("failed to persist failure status")
	}
}
