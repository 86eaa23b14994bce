package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Azure/contentflow-sub002/pkg/config"
	"github.com/Azure/contentflow-sub002/pkg/events"
	"github.com/Azure/contentflow-sub002/pkg/log"
	"github.com/Azure/contentflow-sub002/pkg/statusapi"
	"github.com/Azure/contentflow-sub002/pkg/supervisor"
)

var supervisorCmd = &cobra.Command{
	Use:   "supervisor",
	Short: "Supervisor process operations",
}

var supervisorRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Spawn and supervise the configured pool of processing and source workers",
	Long: `Run starts the supervisor: it spawns NUM_PROCESSING_WORKERS processing
workers and NUM_SOURCE_WORKERS source workers as re-exec'd copies of this
binary, restarts any that exit unexpectedly, and shuts the whole pool down
gracefully on SIGTERM/SIGINT.`,
	RunE: runSupervisor,
}

func init() {
	supervisorCmd.AddCommand(supervisorRunCmd)
}

func runSupervisor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	caps, err := buildCapabilities(cfg)
	if err != nil {
		return fmt.Errorf("build capabilities: %w", err)
	}
	if err := runPreflight(caps); err != nil {
		return fmt.Errorf("preflight check failed: %w", err)
	}

	binary, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve own executable path: %w", err)
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	logLifecycleEvents(broker)

	sup := supervisor.New(supervisor.Options{
		BinaryPath:           binary,
		NumProcessingWorkers: cfg.NumProcessingWorkers,
		NumSourceWorkers:     cfg.NumSourceWorkers,
		ShutdownGrace:        30 * time.Second,
		RestartBackoff:       5 * time.Second,
		HealthCheckInterval:  30 * time.Second,
		ExtraEnv:             os.Environ(),
	}, broker)

	statusSrv := statusapi.NewServer(sup, Version)
	go serveStatus(cfg.StatusAddr, statusSrv, log.WithComponent("supervisor"))

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go newCapabilityMonitor(caps).Start(monitorCtx)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return sup.Run(ctx)
}

// logLifecycleEvents subscribes a logging sink to the supervisor's event
// broker so spawn/restart/exit/shutdown events show up in the structured
// log stream alongside everything else.
func logLifecycleEvents(broker *events.Broker) {
	sub := broker.Subscribe()
	logger := log.WithComponent("events")
	go func() {
		for evt := range sub {
			logger.Info().Str("event_type", string(evt.Type)).Fields(metaFields(evt.Metadata)).Msg(evt.Message)
		}
	}()
}

func metaFields(meta map[string]string) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

// serveStatus runs the status HTTP surface until the process exits, logging
// (not fatally exiting) if the listener itself fails to start.
func serveStatus(addr string, srv *statusapi.Server, logger zerolog.Logger) {
	if err := srv.ListenAndServe(addr); err != nil {
		logger.Error().Err(err).Str("addr", addr).Msg("status server exited")
	}
}
