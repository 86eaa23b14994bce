package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Azure/contentflow-sub002/pkg/contentflowerr"
	"github.com/Azure/contentflow-sub002/pkg/events"
	"github.com/Azure/contentflow-sub002/pkg/log"
	"github.com/Azure/contentflow-sub002/pkg/metrics"
	"github.com/Azure/contentflow-sub002/pkg/storage"
	"github.com/Azure/contentflow-sub002/pkg/types"
)

// Containers names the Registry container the reconciler sweeps.
type Containers struct {
	Executions string
}

// Options configures a Reconciler's sweep cadence and staleness threshold.
type Options struct {
	SweepInterval time.Duration
	StaleAfter    time.Duration
}

// Reconciler is a level-triggered background sweep that catches
// VaultExecutions stuck in "running" because the worker that owned them
// died without reporting a terminal status (process crash, node loss,
// a lease that expired mid-task). It holds no state between cycles: every
// sweep re-derives what needs fixing from the registry alone.
type Reconciler struct {
	registry   storage.Registry
	clock      storage.Clock
	containers Containers
	opts       Options

	logger zerolog.Logger
	broker *events.Broker
	stopCh chan struct{}
	doneCh chan struct{}
}

// SetBroker wires an events.Broker the reconciler publishes
// execution.reconciled events to. Optional; nil means events are simply
// not published.
func (r *Reconciler) SetBroker(broker *events.Broker) {
	r.broker = broker
}

// NewReconciler builds a Reconciler over registry, sweeping at
// opts.SweepInterval for executions that have been "running" for longer
// than opts.StaleAfter.
func NewReconciler(registry storage.Registry, clock storage.Clock, containers Containers, opts Options) *Reconciler {
	return &Reconciler{
		registry:   registry,
		clock:      clock,
		containers: containers,
		opts:       opts,
		logger:     log.WithComponent("reconciler"),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (r *Reconciler) Stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *Reconciler) run() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.opts.SweepInterval).Msg("reconciler started")
	for {
		select {
		case <-ticker.C:
			if err := r.sweep(context.Background()); err != nil {
				r.logger.Error().Err(err).Msg("reconciliation sweep failed")
			}
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// sweep runs one reconciliation cycle: every execution in "running" status
// whose StartedAt predates the staleness threshold is marked failed with a
// Transient cause, so the scheduler's next due tick re-crawls the vault
// from its last committed checkpoint rather than leaving the vault
// permanently stuck behind a dead execution.
func (r *Reconciler) sweep(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	now := r.clock.Now()
	var firstErr error
	for doc, err := range r.registry.Query(ctx, r.containers.Executions, map[string]string{"status": string(types.ExecutionRunning)}) {
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("query running executions: %w", err)
			}
			continue
		}

		var execution types.VaultExecution
		if err := json.Unmarshal(doc.Body, &execution); err != nil {
			r.logger.Error().Err(err).Str("execution_id", doc.ID).Msg("skipping malformed execution document")
			continue
		}
		if now.Sub(execution.StartedAt) <= r.opts.StaleAfter {
			continue
		}

		r.logger.Warn().
			Str("execution_id", execution.ID).
			Str("vault_id", execution.VaultID).
			Dur("age", now.Sub(execution.StartedAt)).
			Msg("execution stale in running state, marking failed")

		if err := r.failStale(ctx, execution, doc.Revision); err != nil {
			r.logger.Error().Err(err).Str("execution_id", execution.ID).Msg("failed to mark stale execution failed")
			continue
		}
		metrics.ExecutionsReconciledTotal.Inc()
		if r.broker != nil {
			r.broker.Publish(&events.Event{
				Type:     events.EventExecutionReconciled,
				Message:  "stale running execution marked failed",
				Metadata: map[string]string{"execution_id": execution.ID, "vault_id": execution.VaultID},
			})
		}
	}
	return firstErr
}

// failStale marks execution failed, retrying on optimistic-concurrency
// conflicts in case a worker concurrently wrote its own terminal status.
func (r *Reconciler) failStale(ctx context.Context, execution types.VaultExecution, revision string) error {
	cause := contentflowerr.New(contentflowerr.Transient, fmt.Errorf("execution exceeded stale-running threshold of %s", r.opts.StaleAfter))

	for attempt := 0; attempt < 5; attempt++ {
		if execution.Status != types.ExecutionRunning {
			return nil
		}
		now := r.clock.Now()
		execution.Status = types.ExecutionFailed
		execution.CompletedAt = &now
		execution.Error = cause.Error()

		body, err := json.Marshal(execution)
		if err != nil {
			return err
		}
		_, err = r.registry.Replace(ctx, r.containers.Executions, storage.Doc{ID: execution.ID, Body: body, Revision: revision})
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return err
		}

		doc, err := r.registry.Get(ctx, r.containers.Executions, execution.ID)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(doc.Body, &execution); err != nil {
			return err
		}
		revision = doc.Revision
	}
	return fmt.Errorf("mark execution %s failed: too many optimistic-concurrency conflicts", execution.ID)
}
