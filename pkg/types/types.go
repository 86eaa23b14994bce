// Package types holds the data model records shared by every worker-fabric
// component: pipelines, vaults, their executions, checkpoints and locks, and
// the task/content-item records that flow through the queue.
package types

import "time"

// Pipeline is a named, ordered graph of executors applied to content.
// YAML is opaque to the registry; only the executor runtime parses it.
type Pipeline struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
	YAML       string `json:"yaml"`
	Retries    int    `json:"retries"`
	RetryDelay int    `json:"retry_delay_seconds"`
	Timeout    int    `json:"timeout_seconds"`

	Revision  string    `json:"_etag,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Vault binds a pipeline to a concrete scheduling target. A pipeline with no
// enabled vault is inert: the scheduler never crawls it.
type Vault struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	PipelineID          string `json:"pipeline_id"`
	Enabled             bool   `json:"enabled"`
	SaveExecutionOutput bool   `json:"save_execution_output"`

	Revision  string    `json:"_etag,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExecutionStatus is the closed set of states a VaultExecution passes
// through. It advances monotonically: pending -> running -> {completed,failed}.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
)

// ExecutionEvent is one entry in a VaultExecution's or ContentItem's
// append-only event log.
type ExecutionEvent struct {
	EventType  string    `json:"event_type"`
	ExecutorID string    `json:"executor_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Data       any       `json:"data,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// VaultExecution is one crawl-and-fan-out episode of a (pipeline, vault),
// recorded persistently. Processing workers append to ExecutorOutputs and
// Events as items complete; the scheduler only ever writes pending/running
// and the crawl-aborted failure path.
type VaultExecution struct {
	ID              string           `json:"id"`
	VaultID         string           `json:"vault_id"`
	PipelineID      string           `json:"pipeline_id"`
	Status          ExecutionStatus  `json:"status"`
	StartedAt       time.Time        `json:"started_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	ExecutorOutputs map[string]any   `json:"executor_outputs,omitempty"`
	Events          []ExecutionEvent `json:"events,omitempty"`
	Error           string           `json:"error,omitempty"`
	NumberOfItems   *int             `json:"number_of_items,omitempty"`

	Revision string `json:"_etag,omitempty"`
}

// VaultCrawlCheckpoint is the per-(pipeline, vault, input-executor) watermark
// that lets the next crawl resume incrementally.
type VaultCrawlCheckpoint struct {
	ID                  string    `json:"id"`
	PipelineID          string    `json:"pipeline_id"`
	VaultID             string    `json:"vault_id"`
	ExecutorID          string    `json:"executor_id"`
	CheckpointTimestamp time.Time `json:"checkpoint_timestamp"`
	WorkerID            string    `json:"worker_id"`

	Revision string `json:"_etag,omitempty"`
}

// CheckpointID builds the natural key for a VaultCrawlCheckpoint: one
// document per (pipeline, vault, input executor).
func CheckpointID(pipelineID, vaultID, executorID string) string {
	return pipelineID + "/" + vaultID + "/" + executorID
}

// VaultExecutionLock is a TTL-based distributed mutex over a (pipeline,
// vault) pair, keyed by a precomputed lock_key hash. Stealing is legal only
// when ExpiresAt is in the past; never based on holder identity.
type VaultExecutionLock struct {
	ID             string    `json:"id"`
	HolderWorkerID string    `json:"holder_worker_id"`
	AcquiredAt     time.Time `json:"acquired_at"`
	ExpiresAt      time.Time `json:"expires_at"`

	Revision string `json:"_etag,omitempty"`
}

// TaskType identifies the concrete payload carried by a queue envelope.
type TaskType string

const (
	// TaskTypeContentProcessing is the only task type the scheduler-driven
	// design ever produces or the processing worker ever acts on.
	TaskTypeContentProcessing TaskType = "content_processing"
	// TaskTypeInputSource is the deprecated queue-driven source trigger.
	// Parsed for wire compatibility only, never produced by this repository.
	TaskTypeInputSource TaskType = "input_source"
)

// ContentItemID identifies a single unit of content within and across
// sources.
type ContentItemID struct {
	CanonicalID string `json:"canonical_id"`
	UniqueID    string `json:"unique_id"`
	SourceName  string `json:"source_name"`
	SourceType  string `json:"source_type"`
	Path        string `json:"path,omitempty"`
}

// ContentItemStatus tracks a content item's progress through one pipeline
// invocation.
type ContentItemStatus string

const (
	ContentItemPending   ContentItemStatus = "pending"
	ContentItemRunning   ContentItemStatus = "running"
	ContentItemCompleted ContentItemStatus = "completed"
	ContentItemFailed    ContentItemStatus = "failed"
)

// ContentItem is the unit of work flowing through a pipeline.
type ContentItem struct {
	ID          ContentItemID     `json:"id"`
	Data        map[string]any    `json:"data,omitempty"`
	SummaryData map[string]any    `json:"summary_data,omitempty"`
	Status      ContentItemStatus `json:"status"`
	Events      []ExecutionEvent  `json:"events,omitempty"`
}

// ContentProcessingTask is the one task type the scheduler ever enqueues: a
// batch of content items destined for the remainder of a pipeline's graph.
type ContentProcessingTask struct {
	TaskID                string        `json:"task_id"`
	PipelineID            string        `json:"pipeline_id"`
	PipelineName          string        `json:"pipeline_name"`
	ExecutionID           string        `json:"execution_id"`
	VaultID               string        `json:"vault_id,omitempty"`
	Content               []ContentItem `json:"content"`
	ExecutedInputExecutor string        `json:"executed_input_executor,omitempty"`
	RetryCount            int           `json:"retry_count"`
	MaxRetries            int           `json:"max_retries"`
	Priority              int           `json:"priority"`
	// SaveOutput mirrors the owning Vault's SaveExecutionOutput at enqueue
	// time, so the worker persisting results doesn't need to re-look up the
	// vault: true persists each executor's full Data, false persists only
	// SummaryData.
	SaveOutput bool `json:"save_output"`
}

// InputSourceTask is the deprecated legacy message type, defined for wire
// compatibility only. No scheduler or CLI path in this repository ever
// produces one; the processing worker treats any it receives as poison.
type InputSourceTask struct {
	TaskID     string `json:"task_id"`
	PipelineID string `json:"pipeline_id"`
	VaultID    string `json:"vault_id,omitempty"`
}

// TaskEnvelope is the versioned wrapper every queue message is encoded as.
type TaskEnvelope struct {
	TaskType TaskType `json:"task_type"`
	Payload  any      `json:"payload"`
}
