// Package storage defines the narrow capability interfaces the worker
// fabric's core depends on — Queue, Registry, BlobStore, Clock, Identity —
// and a local/dev/test binding of each over BoltDB, the filesystem, and an
// in-process slice-backed queue. These are the only observable side
// channels of the core; the Azure-backed binding lives in pkg/azurestore and
// implements the same interfaces.
package storage

import (
	"context"
	"io"
	"iter"
	"time"
)

// Lease represents one in-flight, received-but-not-yet-deleted queue
// message. Its opaque Token is whatever the concrete Queue needs to
// delete or extend the message later.
type Lease struct {
	Token     string
	Body      []byte
	Dequeued  time.Time
}

// Queue is the capability interface over a task queue: at-least-once
// delivery with a visibility-timeout lease model.
type Queue interface {
	// Send enqueues msg, optionally invisible for visibility before it can
	// be received (used for backoff-visibility on retry).
	Send(ctx context.Context, msg []byte, visibility time.Duration) error
	// Receive pulls up to max messages, each invisible to other receivers
	// for visibilitySec seconds.
	Receive(ctx context.Context, max int, visibilitySec int) ([]Lease, error)
	// Delete permanently removes the message backing lease.
	Delete(ctx context.Context, lease Lease) error
	// Extend renews lease's invisibility window.
	Extend(ctx context.Context, lease Lease, visibilitySec int) error
	// ApproxLen returns an approximate count of messages in the queue.
	ApproxLen(ctx context.Context) (int64, error)
}

// ErrConflict is returned by Registry.CreateIfAbsent when a document with
// the same id already exists, and by Registry.Replace when the supplied
// revision does not match the document's current revision.
var ErrConflict = &registryError{"conflict"}

// ErrNotFound is returned by Registry.Get when no document with the given
// id exists in the container.
var ErrNotFound = &registryError{"not found"}

type registryError struct{ msg string }

func (e *registryError) Error() string { return e.msg }

// Doc is one document round-tripped through the Registry: JSON bytes plus
// the id it is keyed on and an opaque revision token for optimistic
// concurrency (Cosmos DB's ETag; a monotonic counter locally).
type Doc struct {
	ID       string
	Body     []byte
	Revision string
}

// Registry is the capability interface over a partitioned document store.
// Containers are partitioned by id; there is no cross-container query.
type Registry interface {
	Get(ctx context.Context, container, id string) (Doc, error)
	// Query returns documents in container matching filter (a simple
	// equality map over top-level JSON fields) as a lazy iterator.
	Query(ctx context.Context, container string, filter map[string]string) iter.Seq2[Doc, error]
	// Upsert writes doc unconditionally, returning the new revision.
	Upsert(ctx context.Context, container string, doc Doc) (Doc, error)
	// CreateIfAbsent writes doc only if no document with doc.ID exists;
	// returns ErrConflict otherwise.
	CreateIfAbsent(ctx context.Context, container string, doc Doc) (Doc, error)
	// Replace writes doc only if the container's current revision for
	// doc.ID equals doc.Revision; returns ErrConflict otherwise. Used for
	// lock-steal and optimistic-concurrency execution-record appends.
	Replace(ctx context.Context, container string, doc Doc) (Doc, error)
	Delete(ctx context.Context, container, id string) error
}

// BlobStore is the capability interface over a blob object store. Used by
// executors, never by the scheduler itself.
type BlobStore interface {
	Put(ctx context.Context, path string, r io.Reader, contentType string) error
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	List(ctx context.Context, prefix string) iter.Seq2[string, error]
}

// Clock is the capability interface over wall-clock time, abstracted so
// tests can control time deterministically (see FakeClock).
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}

// Identity produces credentials for the capability backends. The local
// binding's NoopIdentity requires none; the Azure binding chains
// DefaultAzureCredential.
type Identity interface {
	// Verify checks that the current credential is usable, returning an
	// error if not — used by the supervisor's preflight CredentialChecker.
	Verify(ctx context.Context) error
}
