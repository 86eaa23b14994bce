// Package contentflowerr defines the closed error taxonomy every worker
// fabric component dispatches on. Call sites switch on Kind, never on
// string matching.
package contentflowerr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure categories the core distinguishes.
type Kind string

const (
	// InvalidPipeline: pipeline definition cannot be parsed or references
	// unknown executors. Non-retriable; mark execution failed, delete message.
	InvalidPipeline Kind = "invalid_pipeline"
	// PipelineMissing: referenced pipeline not found or disabled.
	// Non-retriable; same handling as InvalidPipeline.
	PipelineMissing Kind = "pipeline_missing"
	// PoisonMessage: envelope malformed or unknown task type. Log + delete.
	PoisonMessage Kind = "poison_message"
	// Transient: registry/queue/blob transient fault (5xx, throttling,
	// network). Retried with exponential backoff.
	Transient Kind = "transient"
	// Timeout: executor or task exceeded its time bound. Retriable until
	// max_retries.
	Timeout Kind = "timeout"
	// ExecutorFailure: executor raised a domain error.
	ExecutorFailure Kind = "executor_failure"
	// LockConflict: scheduler failed to acquire a lease. Skip this tick,
	// not logged as an error.
	LockConflict Kind = "lock_conflict"
	// CrawlAborted: input executor failed mid-iteration. Execution marked
	// failed, checkpoint not advanced.
	CrawlAborted Kind = "crawl_aborted"
)

// Retriable reports whether a task-level failure of this kind should be
// re-enqueued (subject to the retry cap) rather than terminally failed.
func (k Kind) Retriable() bool {
	switch k {
	case Transient, Timeout:
		return true
	default:
		return false
	}
}

// Error wraps a Kind with its cause and any structured context an executor
// or capability call wants to attach.
type Error struct {
	Kind       Kind
	ExecutorID string
	Cause      error
}

func (e *Error) Error() string {
	if e.ExecutorID != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s[executor=%s]: %v", e.Kind, e.ExecutorID, e.Cause)
		}
		return fmt.Sprintf("%s[executor=%s]", e.Kind, e.ExecutorID)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind wrapping cause.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// NewExecutor attaches the originating executor's ID to cause. If cause is
// already a classified *Error — a Timeout raised by the per-executor
// deadline, or a Transient/other kind an executor raised itself — that
// Kind is preserved rather than flattened to ExecutorFailure; only an
// unclassified cause is treated as an executor-raised domain failure.
func NewExecutor(executorID string, cause error) *Error {
	var inner *Error
	if errors.As(cause, &inner) {
		return &Error{Kind: inner.Kind, ExecutorID: executorID, Cause: inner.Cause}
	}
	return &Error{Kind: ExecutorFailure, ExecutorID: executorID, Cause: cause}
}

// KindOf extracts the Kind of err if it (or something it wraps) is a
// *Error, defaulting to Transient for unrecognized errors so unknown
// failures are treated as retriable rather than silently swallowed.
func KindOf(err error) Kind {
	var cfe *Error
	if errors.As(err, &cfe) {
		return cfe.Kind
	}
	return Transient
}

// Is reports whether err (or something it wraps) is a *Error of kind k.
func Is(err error, k Kind) bool {
	return KindOf(err) == k
}
