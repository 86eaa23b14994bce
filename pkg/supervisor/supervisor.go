package supervisor

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Azure/contentflow-sub002/pkg/events"
	"github.com/Azure/contentflow-sub002/pkg/log"
)

// Options configures a Supervisor's process topology and lifecycle
// timing, taken from Settings.NumProcessingWorkers/NumSourceWorkers and
// friends.
type Options struct {
	BinaryPath            string
	NumProcessingWorkers  int
	NumSourceWorkers      int
	ShutdownGrace         time.Duration
	RestartBackoff        time.Duration
	HealthCheckInterval   time.Duration
	ExtraEnv              []string
}

// Supervisor owns a fixed pool of re-exec'd processing-worker and
// source-worker (scheduler) child processes, restarting any that exit
// unexpectedly and coordinating a graceful, bounded-grace shutdown of the
// whole pool on SIGTERM/SIGINT.
type Supervisor struct {
	opts   Options
	logger zerolog.Logger
	broker *events.Broker

	mu        sync.Mutex
	processes []*ManagedProcess

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Supervisor that will manage opts.NumProcessingWorkers
// processing-worker processes and opts.NumSourceWorkers source-worker
// processes once Run is called. broker may be nil, in which case
// lifecycle events are simply not published anywhere.
func New(opts Options, broker *events.Broker) *Supervisor {
	return &Supervisor{
		opts:   opts,
		logger: log.WithComponent("supervisor"),
		broker: broker,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (s *Supervisor) publish(typ events.EventType, msg string, meta map[string]string) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(&events.Event{Type: typ, Message: msg, Metadata: meta})
}

// Run spawns the configured process pool and blocks, monitoring and
// restarting crashed processes, until ctx is cancelled or a SIGTERM/SIGINT
// is received — whichever comes first triggers a graceful shutdown of
// every managed process.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := s.spawnAll(ctx); err != nil {
		return fmt.Errorf("spawn process pool: %w", err)
	}

	ticker := time.NewTicker(s.opts.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("shutdown signal received, stopping managed processes")
			s.publish(events.EventSupervisorShutdown, "shutdown signal received", nil)
			s.stopAll()
			return nil
		case <-ticker.C:
			s.restartDead(ctx)
		}
	}
}

func (s *Supervisor) spawnAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < s.opts.NumProcessingWorkers; i++ {
		name := fmt.Sprintf("processing-worker-%d", i)
		p := NewManagedProcess(name, s.opts.BinaryPath, []string{"worker", "processing", "--worker-id=" + name}, log.WithWorker(name))
		p.Env = s.opts.ExtraEnv
		if err := p.Start(ctx); err != nil {
			s.publish(events.EventWorkerSpawnFailed, err.Error(), map[string]string{"process": name})
			return err
		}
		s.publish(events.EventWorkerSpawned, "processing worker started", map[string]string{"process": name})
		s.processes = append(s.processes, p)
	}
	for i := 0; i < s.opts.NumSourceWorkers; i++ {
		name := fmt.Sprintf("source-worker-%d", i)
		p := NewManagedProcess(name, s.opts.BinaryPath, []string{"worker", "source", "--worker-id=" + name}, log.WithWorker(name))
		p.Env = s.opts.ExtraEnv
		if err := p.Start(ctx); err != nil {
			s.publish(events.EventWorkerSpawnFailed, err.Error(), map[string]string{"process": name})
			return err
		}
		s.publish(events.EventWorkerSpawned, "source worker started", map[string]string{"process": name})
		s.processes = append(s.processes, p)
	}
	s.logger.Info().
		Int("processing_workers", s.opts.NumProcessingWorkers).
		Int("source_workers", s.opts.NumSourceWorkers).
		Msg("process pool started")
	return nil
}

// restartDead restarts any managed process no longer alive, applying
// RestartBackoff before each relaunch attempt so a fast-crashing binary
// doesn't spin the supervisor's CPU.
func (s *Supervisor) restartDead(ctx context.Context) {
	s.mu.Lock()
	dead := make([]*ManagedProcess, 0)
	for _, p := range s.processes {
		if !p.IsRunning() {
			dead = append(dead, p)
		}
	}
	s.mu.Unlock()

	for _, p := range dead {
		s.logger.Warn().Str("process", p.Name).Int("restart_count", p.RestartCount()).Msg("process exited, restarting")
		s.publish(events.EventWorkerExited, "process exited", map[string]string{"process": p.Name})
		time.Sleep(s.opts.RestartBackoff)
		p.RecordRestart()
		if err := p.Start(ctx); err != nil {
			s.logger.Error().Err(err).Str("process", p.Name).Msg("failed to restart process")
			s.publish(events.EventWorkerSpawnFailed, err.Error(), map[string]string{"process": p.Name})
			continue
		}
		s.publish(events.EventWorkerRestarted, "process restarted", map[string]string{"process": p.Name})
	}
}

func (s *Supervisor) stopAll() {
	s.mu.Lock()
	processes := append([]*ManagedProcess(nil), s.processes...)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range processes {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.Stop(s.opts.ShutdownGrace); err != nil {
				s.logger.Error().Err(err).Str("process", p.Name).Msg("error stopping process")
			}
		}()
	}
	wg.Wait()
}

// Snapshot returns the current Status of every managed process.
func (s *Supervisor) Snapshot() []ProcessStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ProcessStatus, 0, len(s.processes))
	for _, p := range s.processes {
		out = append(out, ProcessStatus{
			Name:         p.Name,
			Running:      p.IsRunning(),
			StartedAt:    p.StartedAt(),
			RestartCount: p.RestartCount(),
		})
	}
	return out
}
