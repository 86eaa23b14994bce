package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Azure/contentflow-sub002/pkg/contentflowerr"
	"github.com/Azure/contentflow-sub002/pkg/events"
	"github.com/Azure/contentflow-sub002/pkg/executor"
	"github.com/Azure/contentflow-sub002/pkg/log"
	"github.com/Azure/contentflow-sub002/pkg/metrics"
	"github.com/Azure/contentflow-sub002/pkg/storage"
	"github.com/Azure/contentflow-sub002/pkg/types"
)

// Containers names the Registry containers the scheduler reads and writes.
// Supplied by the owning process from its resolved config.Settings.
type Containers struct {
	Pipelines   string
	Vaults      string
	Executions  string
	Locks       string
	Checkpoints string
}

// Scheduler drives one source worker's crawl loop: find due (pipeline,
// vault) pairs, acquire their distributed lock, and crawl them.
type Scheduler struct {
	registry   storage.Registry
	queue      storage.Queue
	blobs      storage.BlobStore
	clock      storage.Clock
	containers Containers

	workerID                string
	lockTTL                 time.Duration
	sleepInterval           time.Duration
	defaultPollingInterval  time.Duration
	batchSize               int

	logger zerolog.Logger
	broker *events.Broker
	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// SetBroker wires an events.Broker the scheduler publishes lock-conflict
// and crawl-outcome events to. Optional; a nil broker (the default) means
// events are simply not published.
func (s *Scheduler) SetBroker(broker *events.Broker) {
	s.broker = broker
}

func (s *Scheduler) publish(typ events.EventType, msg string, meta map[string]string) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(&events.Event{Type: typ, Message: msg, Metadata: meta})
}

// Options configures a new Scheduler.
type Options struct {
	WorkerID               string
	LockTTL                time.Duration
	SleepInterval          time.Duration
	DefaultPollingInterval time.Duration
	BatchSize              int
}

// NewScheduler builds a Scheduler over the given capabilities.
func NewScheduler(reg storage.Registry, queue storage.Queue, blobs storage.BlobStore, clock storage.Clock, containers Containers, opts Options) *Scheduler {
	return &Scheduler{
		registry:               reg,
		queue:                  queue,
		blobs:                  blobs,
		clock:                  clock,
		containers:             containers,
		workerID:               opts.WorkerID,
		lockTTL:                opts.LockTTL,
		sleepInterval:          opts.SleepInterval,
		defaultPollingInterval: opts.DefaultPollingInterval,
		batchSize:              opts.BatchSize,
		logger:                 log.WithComponent("scheduler"),
		stopCh:                 make(chan struct{}),
		doneCh:                 make(chan struct{}),
	}
}

// Start begins the scheduler loop in a background goroutine.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop signals the scheduler loop to exit and waits for the current cycle
// to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) run() {
	defer close(s.doneCh)
	for {
		if err := s.runCycle(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("scheduling cycle failed")
		}
		select {
		case <-s.stopCh:
			return
		case <-time.After(s.sleepInterval):
		}
	}
}

// runCycle implements the loop body from spec.md §4.5: every enabled
// pipeline's every enabled vault, skipping pairs that aren't due or whose
// lock is already held.
func (s *Scheduler) runCycle(ctx context.Context) error {
	metrics.SchedulerTicksTotal.Inc()

	for pipelineDoc, err := range s.registry.Query(ctx, s.containers.Pipelines, map[string]string{"enabled": "true"}) {
		if err != nil {
			return fmt.Errorf("query pipelines: %w", err)
		}
		var pipeline types.Pipeline
		if err := json.Unmarshal(pipelineDoc.Body, &pipeline); err != nil {
			s.logger.Error().Err(err).Str("pipeline_id", pipelineDoc.ID).Msg("skipping pipeline with malformed document")
			continue
		}
		pipeline.Revision = pipelineDoc.Revision

		for vaultDoc, err := range s.registry.Query(ctx, s.containers.Vaults, map[string]string{"pipeline_id": pipeline.ID, "enabled": "true"}) {
			if err != nil {
				return fmt.Errorf("query vaults for pipeline %s: %w", pipeline.ID, err)
			}
			var vault types.Vault
			if err := json.Unmarshal(vaultDoc.Body, &vault); err != nil {
				s.logger.Error().Err(err).Str("vault_id", vaultDoc.ID).Msg("skipping vault with malformed document")
				continue
			}
			vault.Revision = vaultDoc.Revision

			s.tryCrawl(ctx, pipeline, vault)
		}
	}
	return nil
}

func (s *Scheduler) tryCrawl(ctx context.Context, pipeline types.Pipeline, vault types.Vault) {
	logger := s.logger.With().Str("pipeline_id", pipeline.ID).Str("vault_id", vault.ID).Logger()

	graph, err := executor.Parse(pipeline.YAML)
	if err != nil {
		logger.Error().Err(err).Msg("pipeline has an invalid graph, skipping")
		return
	}

	due, err := s.dueForCrawl(ctx, pipeline, vault, graph)
	if err != nil {
		logger.Error().Err(err).Msg("failed to evaluate due-for-crawl")
		return
	}
	if !due {
		return
	}

	key := lockKey(vault.ID)
	lock, err := acquireLock(ctx, s.registry, s.clock, s.containers.Locks, key, s.workerID, s.lockTTL)
	if err != nil {
		if errors.Is(err, errLockHeld) {
			metrics.LockConflictsTotal.Inc()
			s.publish(events.EventSchedulerLockConflict, "crawl lock held by another worker", map[string]string{"vault_id": vault.ID})
			logger.Info().Msg("crawl lock held by another worker; skipping tick")
			return
		}
		logger.Error().Err(err).Msg("failed to acquire crawl lock")
		return
	}

	stopRefresh := refreshLock(ctx, s.registry, s.clock, s.containers.Locks, lock, s.lockTTL, func(err error) {
		logger.Warn().Err(err).Msg("lock refresh failed")
	})

	timer := metrics.NewTimer()
	crawlErr := s.crawlOne(ctx, pipeline, vault, graph, logger)
	timer.ObserveDuration(metrics.CrawlDuration)

	stopRefresh()
	if err := releaseLock(ctx, s.registry, s.containers.Locks, key); err != nil {
		logger.Error().Err(err).Msg("failed to release crawl lock")
	}

	if crawlErr != nil {
		metrics.CrawlsTotal.WithLabelValues("aborted").Inc()
		s.publish(events.EventSchedulerCrawlAborted, crawlErr.Error(), map[string]string{"vault_id": vault.ID, "pipeline_id": pipeline.ID})
	} else {
		metrics.CrawlsTotal.WithLabelValues("ok").Inc()
		s.publish(events.EventSchedulerCrawlDone, "crawl completed", map[string]string{"vault_id": vault.ID, "pipeline_id": pipeline.ID})
	}
}

// dueForCrawl computes next_due = last_checkpoint_ts + polling_interval
// per spec.md §4.5, reading polling_interval_seconds from the input
// executor's declared settings and falling back to the scheduler's
// configured default.
func (s *Scheduler) dueForCrawl(ctx context.Context, pipeline types.Pipeline, vault types.Vault, graph *executor.Graph) (bool, error) {
	interval := s.defaultPollingInterval
	if node, ok := graph.Node(graph.InputNode); ok {
		if v, ok := node.Settings["polling_interval_seconds"]; ok {
			if secs, ok := toSeconds(v); ok {
				interval = secs
			}
		}
	}

	checkpointID := types.CheckpointID(pipeline.ID, vault.ID, graph.InputNode)
	checkpoint, err := s.loadCheckpoint(ctx, checkpointID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return true, nil
		}
		return false, err
	}

	nextDue := checkpoint.CheckpointTimestamp.Add(interval)
	return !s.clock.Now().Before(nextDue), nil
}

func toSeconds(v any) (time.Duration, bool) {
	switch n := v.(type) {
	case int:
		return time.Duration(n) * time.Second, true
	case int64:
		return time.Duration(n) * time.Second, true
	case float64:
		return time.Duration(n) * time.Second, true
	case string:
		secs, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	default:
		return 0, false
	}
}

func (s *Scheduler) createExecution(ctx context.Context, e types.VaultExecution) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.registry.CreateIfAbsent(ctx, s.containers.Executions, storage.Doc{ID: e.ID, Body: body})
	return err
}

// updateExecution reads, mutates, and writes back a VaultExecution with
// optimistic-concurrency retry, since processing workers may be appending
// to the same record concurrently.
func (s *Scheduler) updateExecution(ctx context.Context, id string, mutate func(*types.VaultExecution)) error {
	for attempt := 0; attempt < 5; attempt++ {
		doc, err := s.registry.Get(ctx, s.containers.Executions, id)
		if err != nil {
			return err
		}
		var e types.VaultExecution
		if err := json.Unmarshal(doc.Body, &e); err != nil {
			return err
		}
		mutate(&e)
		body, err := json.Marshal(e)
		if err != nil {
			return err
		}
		_, err = s.registry.Replace(ctx, s.containers.Executions, storage.Doc{ID: id, Body: body, Revision: doc.Revision})
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("update execution %s: too many optimistic-concurrency conflicts", id)
}

func (s *Scheduler) updateExecutionStatus(ctx context.Context, id string, status types.ExecutionStatus) error {
	return s.updateExecution(ctx, id, func(e *types.VaultExecution) {
		e.Status = status
	})
}

func (s *Scheduler) setExecutionItemCount(ctx context.Context, id string, n int) error {
	return s.updateExecution(ctx, id, func(e *types.VaultExecution) {
		e.NumberOfItems = &n
	})
}

// failExecution marks an execution failed{kind} per spec's crawl-abort
// failure semantics; the scheduler only ever sets this terminal status
// itself when the crawl aborts, never on ordinary completion.
func (s *Scheduler) failExecution(ctx context.Context, id string, cause error) {
	now := s.clock.Now()
	kind := contentflowerr.KindOf(cause)
	err := s.updateExecution(ctx, id, func(e *types.VaultExecution) {
		e.Status = types.ExecutionFailed
		e.CompletedAt = &now
		e.Error = fmt.Sprintf("%s: %s", kind, cause.Error())
	})
	if err != nil {
		s.logger.Error().Err(err).Str("execution_id", id).Msg("failed to persist crawl-aborted status")
	}
}

func (s *Scheduler) loadCheckpoint(ctx context.Context, id string) (*types.VaultCrawlCheckpoint, error) {
	doc, err := s.registry.Get(ctx, s.containers.Checkpoints, id)
	if err != nil {
		return nil, err
	}
	var cp types.VaultCrawlCheckpoint
	if err := json.Unmarshal(doc.Body, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *Scheduler) saveCheckpoint(ctx context.Context, cp types.VaultCrawlCheckpoint) error {
	body, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	_, err = s.registry.Upsert(ctx, s.containers.Checkpoints, storage.Doc{ID: cp.ID, Body: body})
	return err
}
