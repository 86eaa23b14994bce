package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Azure/contentflow-sub002/pkg/config"
	"github.com/Azure/contentflow-sub002/pkg/health"
	"github.com/Azure/contentflow-sub002/pkg/log"
	"github.com/Azure/contentflow-sub002/pkg/reconciler"
	"github.com/Azure/contentflow-sub002/pkg/scheduler"
	"github.com/Azure/contentflow-sub002/pkg/statusapi"
	"github.com/Azure/contentflow-sub002/pkg/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a single worker-fabric component in the foreground",
}

var workerProcessingCmd = &cobra.Command{
	Use:   "processing",
	Short: "Run a processing worker that dequeues and executes content-processing tasks",
	RunE:  runProcessingWorker,
}

var workerSourceCmd = &cobra.Command{
	Use:   "source",
	Short: "Run the source scheduler that crawls due (pipeline, vault) pairs",
	RunE:  runSourceWorker,
}

func init() {
	workerCmd.AddCommand(workerProcessingCmd)
	workerCmd.AddCommand(workerSourceCmd)

	for _, cmd := range []*cobra.Command{workerProcessingCmd, workerSourceCmd} {
		cmd.Flags().String("worker-id", "", "Unique worker ID (defaults to role-hostname-pid)")
	}
}

func runProcessingWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	workerID, _ := cmd.Flags().GetString("worker-id")
	if workerID == "" {
		workerID = defaultWorkerID("processing")
	}

	caps, err := buildCapabilities(cfg)
	if err != nil {
		return fmt.Errorf("build capabilities: %w", err)
	}

	if err := runPreflight(caps); err != nil {
		return fmt.Errorf("preflight check failed: %w", err)
	}
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go newCapabilityMonitor(caps).Start(monitorCtx)

	w, err := worker.NewWorker(caps.queue, caps.registry, caps.blobs, caps.clock,
		worker.Containers{
			Pipelines:  cfg.CosmosContainerPipelines,
			Executions: cfg.CosmosContainerExecutions,
		},
		worker.Options{
			WorkerID:              workerID,
			MaxMessages:           cfg.QueueMaxMessages,
			VisibilityTimeout:     time.Duration(cfg.QueueVisibilityTimeoutSeconds) * time.Second,
			ShutdownGrace:         time.Duration(cfg.TaskShutdownGraceSeconds) * time.Second,
			GraphCacheSize:        64,
			ExecutionLookupTries:  cfg.ExecutionLookupMaxAttempts,
			ExecutionLookupDelay:  time.Duration(cfg.ExecutionLookupRetryDelayMS) * time.Millisecond,
			DefaultMaxTaskRetries: cfg.MaxTaskRetries,
			DefaultTaskTimeout:    time.Duration(cfg.TaskTimeoutSeconds) * time.Second,
			MaxParallel:           cfg.MaxParallel,
		},
	)
	if err != nil {
		return fmt.Errorf("create worker: %w", err)
	}

	recon := reconciler.NewReconciler(caps.registry, caps.clock,
		reconciler.Containers{Executions: cfg.CosmosContainerExecutions},
		reconciler.Options{
			SweepInterval: time.Duration(cfg.ReconcilerSweepIntervalSeconds) * time.Second,
			StaleAfter:    time.Duration(cfg.ReconcilerStaleRunningSeconds) * time.Second,
		},
	)

	statusSrv := statusapi.NewServer(nil, Version)
	go serveStatus(cfg.StatusAddr, statusSrv, log.WithWorker(workerID))

	w.Start()
	recon.Start()
	log.WithWorker(workerID).Info().Msg("processing worker started")

	waitForShutdown()

	recon.Stop()
	w.Stop()
	log.WithWorker(workerID).Info().Msg("processing worker stopped")
	return nil
}

func runSourceWorker(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	workerID, _ := cmd.Flags().GetString("worker-id")
	if workerID == "" {
		workerID = defaultWorkerID("source")
	}

	caps, err := buildCapabilities(cfg)
	if err != nil {
		return fmt.Errorf("build capabilities: %w", err)
	}

	if err := runPreflight(caps); err != nil {
		return fmt.Errorf("preflight check failed: %w", err)
	}
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go newCapabilityMonitor(caps).Start(monitorCtx)

	sched := scheduler.NewScheduler(caps.registry, caps.queue, caps.blobs, caps.clock,
		scheduler.Containers{
			Pipelines:   cfg.CosmosContainerPipelines,
			Vaults:      cfg.CosmosContainerVaults,
			Executions:  cfg.CosmosContainerExecutions,
			Locks:       cfg.CosmosContainerLocks,
			Checkpoints: cfg.CosmosContainerCheckpoints,
		},
		scheduler.Options{
			WorkerID:               workerID,
			LockTTL:                time.Duration(cfg.LockTTLSeconds) * time.Second,
			SleepInterval:          time.Duration(cfg.SchedulerSleepIntervalSeconds) * time.Second,
			DefaultPollingInterval: time.Duration(cfg.DefaultPollingIntervalSeconds) * time.Second,
			BatchSize:              cfg.BatchSize,
		},
	)

	statusSrv := statusapi.NewServer(nil, Version)
	go serveStatus(cfg.StatusAddr, statusSrv, log.WithWorker(workerID))

	sched.Start()
	log.WithWorker(workerID).Info().Msg("source worker started")

	waitForShutdown()

	sched.Stop()
	log.WithWorker(workerID).Info().Msg("source worker stopped")
	return nil
}

// capabilityCheckers builds the fixed set of health.Checkers that probe
// every capability binding a worker-fabric process depends on.
func capabilityCheckers(caps *capabilities) map[string]health.Checker {
	return map[string]health.Checker{
		"queue":      health.QueueChecker{Queue: caps.queue},
		"registry":   health.RegistryChecker{Registry: caps.registry, ProbeContainer: "pipelines", ProbeID: "__preflight__"},
		"blob":       health.BlobChecker{Blobs: caps.blobs},
		"credential": health.CredentialChecker{Identity: caps.identity},
	}
}

// runPreflight probes every configured capability once before a worker
// joins the fabric, so a misconfigured credential or unreachable endpoint
// fails fast at startup rather than on the first dequeued task.
func runPreflight(caps *capabilities) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for name, checker := range capabilityCheckers(caps) {
		result := checker.Check(ctx)
		if !result.Healthy {
			return fmt.Errorf("%s: %s", name, result.Message)
		}
	}
	return nil
}

// newCapabilityMonitor builds a Monitor that keeps pkg/metrics's component
// registry (and therefore /health, /ready) reflecting live capability
// reachability for the lifetime of the process.
func newCapabilityMonitor(caps *capabilities) *health.Monitor {
	monitor := health.NewMonitor(health.DefaultConfig())
	for name, checker := range capabilityCheckers(caps) {
		monitor.Register(name, checker)
	}
	return monitor
}

func defaultWorkerID(role string) string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%s-%d", role, host, os.Getpid())
}

func waitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}
