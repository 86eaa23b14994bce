/*
Package storage defines the capability interfaces the worker fabric depends
on — Queue, Registry, BlobStore, Clock, Identity — and provides the
local/dev/test binding of each: a BoltDB-backed Registry emulating Cosmos
DB's ETag-conditional replace with a per-document revision counter, an
in-process Queue with per-message visibility deadlines, a filesystem-backed
BlobStore, a SystemClock, and a NoopIdentity. In-memory fakes of the
Registry, Queue, and BlobStore are also provided for unit tests that should
not touch disk.

The Azure-backed binding of these same interfaces lives in pkg/azurestore.

# Registry containers

A Registry partitions documents by container name and id. This repository's
containers are: pipelines, vaults, vault_executions, vault_execution_locks,
and vault_crawl_checkpoints — one per record family in pkg/types, named by
the COSMOS_DB_CONTAINER_* configuration keys.

# Optimistic concurrency

CreateIfAbsent and Replace are the only two writes that can fail with
ErrConflict: CreateIfAbsent when a document already exists, Replace when the
caller's Doc.Revision does not match the container's current revision for
that id. Both the scheduler's lock protocol and the processing worker's
execution-record appends rely on this to stay correct under concurrent
writers.
*/
package storage
