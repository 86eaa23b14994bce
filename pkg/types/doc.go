/*
Package types defines the core data structures shared by every component of
the ContentFlow worker fabric.

This package contains the record types that flow between the scheduler, the
processing workers, the reconciler, and the registry: pipelines, vaults,
vault executions, crawl checkpoints, execution locks, content items, and the
queue task envelopes that carry them. These types are used by all other
packages for persistence, queue serialization, and scheduling logic.

# Architecture

The types package is the foundation of the worker fabric's data model. It
defines:

  - Pipeline definitions (a named, ordered graph of executors)
  - Vault bindings (a pipeline bound to a concrete scheduling target)
  - Execution records and their append-only event logs
  - Crawl checkpoints for incremental, resumable scheduling
  - Distributed lock records for the scheduler's lease-based mutex
  - Content items and the task envelopes that move them through the queue

All types are designed to be:
  - Serializable (JSON, for both registry documents and queue messages)
  - Revision-tracked where optimistic concurrency applies (the Revision/_etag field)
  - Self-documenting (clear field names and doc comments)

# Core Types

The main types in this package are:

Pipeline Definition:
  - Pipeline: Named, ordered graph of executors, with retry/timeout defaults
  - Vault: Binds a pipeline to a concrete scheduling target

Execution Tracking:
  - ExecutionStatus: pending, running, completed, failed
  - ExecutionEvent: One entry in an append-only event log
  - VaultExecution: One crawl-and-fan-out episode of a (pipeline, vault)
  - VaultCrawlCheckpoint: Per-(pipeline, vault, input-executor) watermark

Scheduling:
  - VaultExecutionLock: TTL-based distributed mutex over a (pipeline, vault) pair

Content & Tasks:
  - ContentItemID: Identifies a unit of content within and across sources
  - ContentItemStatus: pending, running, completed, failed
  - ContentItem: The unit of work flowing through a pipeline
  - ContentProcessingTask: The task type the scheduler enqueues
  - InputSourceTask: Deprecated legacy message type, wire-compatible only
  - TaskEnvelope: Versioned wrapper every queue message is encoded as

# Usage

Defining a Pipeline:

	pipeline := &types.Pipeline{
		ID:         uuid.New().String(),
		Name:       "document-ingest",
		Enabled:    true,
		YAML:       graphYAML,
		Retries:    3,
		RetryDelay: 30,
		Timeout:    300,
		UpdatedAt:  time.Now(),
	}

Binding a Vault to it:

	vault := &types.Vault{
		ID:                  uuid.New().String(),
		Name:                "customer-docs",
		PipelineID:          pipeline.ID,
		Enabled:             true,
		SaveExecutionOutput: true,
		UpdatedAt:           time.Now(),
	}

Recording a VaultExecution:

	execution := &types.VaultExecution{
		ID:         uuid.New().String(),
		VaultID:    vault.ID,
		PipelineID: pipeline.ID,
		Status:     types.ExecutionPending,
		StartedAt:  clock.Now(),
	}

Building a ContentProcessingTask:

	task := &types.ContentProcessingTask{
		TaskID:      uuid.New().String(),
		PipelineID:  pipeline.ID,
		VaultID:     vault.ID,
		ExecutionID: execution.ID,
		Content: []types.ContentItem{
			{
				ID: types.ContentItemID{
					CanonicalID: "doc-1",
					UniqueID:    "doc-1-v1",
					SourceName:  "customer-docs",
					SourceType:  "blob",
				},
				Status: types.ContentItemPending,
			},
		},
		MaxRetries: pipeline.Retries,
	}

Encoding a Task Envelope for the Queue:

	envelope := &types.TaskEnvelope{
		TaskType: types.TaskTypeContentProcessing,
		Payload:  task,
	}

# State Machine

VaultExecution and ContentItem both advance through the same four-state
lifecycle, driven from opposite ends of the fabric:

	pending → running → completed
	            ↓
	          failed

The scheduler creates a VaultExecution in the pending state and moves it to
running right after creating it, before the crawl starts. Processing workers move a
ContentItem from pending through running to completed (or failed) as each
executor in the pipeline's graph runs against it; the execution as a whole
reaches completed or failed once every task derived from it has resolved, or
failed{CrawlAborted} if the crawl itself aborts, whether or not it had
already enqueued tasks.

# Design Patterns

Enumeration Pattern:

	All enums use typed string constants for safety and clarity:
	  type ExecutionStatus string
	  const (
	      ExecutionPending ExecutionStatus = "pending"
	      ExecutionRunning ExecutionStatus = "running"
	  )

Revision Pattern:

	Registry-persisted types carry a Revision field populated from the
	backing store's ETag. Callers round-trip it on replace to get
	optimistic-concurrency conflict detection instead of last-writer-wins.

Natural-Key Pattern:

	VaultCrawlCheckpoint uses a derived ID (CheckpointID) rather than a
	generated UUID, so repeated crawls of the same (pipeline, vault,
	executor) triple always address the same document.

# Integration Points

This package integrates with:

  - pkg/storage: Persists Pipeline, Vault, VaultExecution, VaultCrawlCheckpoint and VaultExecutionLock as registry documents
  - pkg/scheduler: Creates VaultExecutions, advances checkpoints, acquires VaultExecutionLocks
  - pkg/executor: Parses Pipeline.YAML into an executable graph and produces ExecutionEvents
  - pkg/worker: Dequeues TaskEnvelopes, executes ContentProcessingTasks, appends to ExecutorOutputs and Events
  - pkg/reconciler: Scans VaultExecutions for stale running state
  - pkg/azurestore: Serializes these types to Cosmos documents, Storage Queue messages, and blob payloads

# Thread Safety

All types in this package are designed to be:
  - Read-safe: Can be read concurrently from multiple goroutines
  - Write-unsafe: Mutations must be synchronized by callers
  - Immutable-preferred: Use new instances for updates where possible

The storage layer (pkg/storage, pkg/azurestore) handles all synchronization
for persisted state via ETag-conditional replace. In-memory bindings used in
local/dev mode implement their own locking.

# See Also

  - pkg/storage for the capability interfaces these types are persisted through
  - pkg/azurestore for the Azure-backed bindings
  - pkg/contentflowerr for the error taxonomy operations on these types return
*/
package types
