/*
Package log provides structured logging for the ContentFlow worker fabric
using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions
for common logging patterns. All logs include timestamps and support
filtering by severity level for production debugging.

# Architecture

The logging system provides structured JSON logging with minimal overhead:

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("scheduler")               │          │
	│  │  - WithWorker("processing-worker-0")        │          │
	│  │  - WithPipeline("pipeline-123")             │          │
	│  │  - WithVault("vault-abc")                   │          │
	│  │  - WithExecution("execution-def")           │          │
	│  │  - WithTaskID("task-456")                   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "scheduler",                │          │
	│  │    "time": "2024-10-13T10:30:00Z",         │          │
	│  │    "message": "crawl completed"              │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  2024-10-13T10:30:00Z INF crawl completed component=scheduler │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all fabric packages
  - Thread-safe concurrent writes

Log Levels:
  - Debug: Detailed debugging information
  - Info: General informational messages
  - Warn: Warning messages (potential issues)
  - Error: Error messages (operation failed)
  - Fatal: Critical errors (process exits)

Configuration:
  - Level: Filter messages below threshold
  - JSONOutput: JSON vs human-readable console
  - Output: io.Writer for log destination (stdout, file)

Context Loggers:
  - WithComponent: Add component name to all logs
  - WithWorker: Add worker_id context (processing or source worker)
  - WithPipeline: Add pipeline_id context
  - WithVault: Add vault_id context
  - WithExecution: Add execution_id context
  - WithTaskID: Add task_id context

# Log Levels

Debug Level:
  - Purpose: Detailed debugging information
  - Usage: Development and troubleshooting
  - Performance: Verbose, may impact production
  - Example: "Evaluating due-for-crawl: last_checkpoint=..., interval=300s"

Info Level:
  - Purpose: General informational messages
  - Usage: Default production level
  - Performance: Moderate volume
  - Example: "Crawl completed: vault=vault-abc, items=42"

Warn Level:
  - Purpose: Potential issues or unexpected conditions
  - Usage: Situations that may require attention
  - Performance: Low volume
  - Example: "Lock refresh failed, surrendering crawl"

Error Level:
  - Purpose: Operation failures that need investigation
  - Usage: Failed operations, exceptions
  - Performance: Low volume
  - Example: "Failed to persist execution results: conflict retries exhausted"

Fatal Level:
  - Purpose: Critical errors causing process termination
  - Usage: Unrecoverable errors only
  - Behavior: Logs message and exits process (os.Exit(1))
  - Example: "Failed to load configuration: %v"

# Usage

Initializing the Logger:

	import "github.com/Azure/contentflow-sub002/pkg/log"

	// JSON output (production)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	// Console output (development)
	log.Init(log.Config{
		Level:      log.DebugLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

	// Custom output (file)
	file, _ := os.OpenFile("/var/log/contentflow.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     file,
	})

Simple Logging:

	log.Info("supervisor starting")
	log.Debug("checking capability reachability")
	log.Warn("restart backoff engaged")
	log.Error("failed to connect to cosmos")
	log.Fatal("cannot start without configuration") // Exits process

Structured Logging:

	log.Logger.Info().
		Str("pipeline_id", "pipeline-123").
		Int("items", 25).
		Msg("execution created")

	log.Logger.Error().
		Err(err).
		Str("execution_id", "execution-abc").
		Msg("execution stale in running state")

Component Loggers:

	// Create component-specific logger
	schedulerLog := log.WithComponent("scheduler")
	schedulerLog.Info().Msg("starting crawl loop")
	schedulerLog.Debug().Str("vault_id", "vault-123").Msg("evaluating crawl")

	// Multiple context fields
	taskLog := log.WithComponent("worker").
		With().Str("worker_id", "processing-worker-0").
		Str("task_id", "task-123").Logger()
	taskLog.Info().Msg("starting task")
	taskLog.Error().Err(err).Msg("task failed")

Context Logger Helpers:

	// Worker-specific logs
	workerLog := log.WithWorker("processing-worker-0")
	workerLog.Info().Msg("worker started")

	// Pipeline-specific logs
	pipelineLog := log.WithPipeline("pipeline-123")
	pipelineLog.Info().Msg("pipeline graph parsed")

	// Execution-specific logs
	execLog := log.WithExecution("execution-abc")
	execLog.Info().Msg("execution completed")

	// Task-specific logs
	taskLog := log.WithTaskID("task-456")
	taskLog.Info().Msg("task started")

Complete Example:

	package main

	import (
		"errors"
		"os"

		"github.com/Azure/contentflow-sub002/pkg/log"
	)

	func main() {
		// Initialize logger
		log.Init(log.Config{
			Level:      log.InfoLevel,
			JSONOutput: true,
			Output:     os.Stdout,
		})

		log.Info("processing worker starting")

		// Component-specific logging
		workerLog := log.WithWorker("processing-worker-0")
		workerLog.Info().
			Str("task_id", "task-1").
			Int("retry_count", 0).
			Msg("processing task")

		// Error logging
		err := errors.New("connection refused")
		log.Logger.Error().
			Err(err).
			Str("component", "worker").
			Msg("failed to dequeue task")

		log.Info("processing worker stopped")
	}

# Integration Points

This package integrates with:

  - pkg/scheduler: Logs crawl scheduling decisions and lock acquisition
  - pkg/worker: Logs task dequeue, execution, and persistence
  - pkg/reconciler: Logs stale-execution sweeps
  - pkg/supervisor: Logs process spawn/restart/exit
  - cmd/contentflow: Logs supervisor lifecycle events and status-surface listener failures

# Log Output Examples

JSON Format (Production):

	{"level":"info","component":"scheduler","time":"2024-10-13T10:30:00Z","message":"crawl completed"}
	{"level":"info","component":"worker","task_id":"task-123","time":"2024-10-13T10:30:01Z","message":"task processed"}
	{"level":"error","component":"worker","execution_id":"execution-abc","error":"conflict retries exhausted","time":"2024-10-13T10:30:02Z","message":"failed to persist results"}

Console Format (Development):

	2024-10-13T10:30:00Z INF crawl completed component=scheduler
	2024-10-13T10:30:01Z INF task processed component=worker task_id=task-123
	2024-10-13T10:30:02Z ERR failed to persist results component=worker execution_id=execution-abc error="conflict retries exhausted"

# Design Patterns

Global Logger Pattern:
  - Single package-level Logger instance
  - Initialized once at application start
  - Accessible from all packages without passing
  - Simplifies logging in deeply nested calls

Context Logger Pattern:
  - Create child loggers with context fields
  - Pass context loggers to functions
  - Automatically includes context in all logs
  - Avoids repetitive field specification

Structured Logging Pattern:
  - Use typed fields (.Str, .Int, .Err)
  - Enables log aggregation and querying
  - Better than string concatenation
  - Parseable by log analysis tools

Error Logging Pattern:
  - Always use .Err(err) for error objects
  - Provides wrapped-cause information via contentflowerr
  - Enables error tracking and alerting
  - Consistent error format across codebase

# Best Practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces
  - Include context (worker ID, pipeline ID, execution ID, task ID)

Don't:
  - Log sensitive data (credentials, tokens)
  - Use Debug level in production
  - Log in tight loops (use sampling)
  - Concatenate strings (use .Str, .Int)
  - Block on log writes (use buffered output)

# See Also

  - Zerolog documentation: https://github.com/rs/zerolog
  - Structured logging: https://www.thoughtworks.com/radar/techniques/structured-logging
  - 12-Factor App Logs: https://12factor.net/logs
*/
package log
