package scheduler

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/minio/highwayhash"

	"github.com/Azure/contentflow-sub002/pkg/storage"
	"github.com/Azure/contentflow-sub002/pkg/types"
)

func marshalLock(l types.VaultExecutionLock) ([]byte, error) {
	return json.Marshal(l)
}

func unmarshalLock(body []byte) (types.VaultExecutionLock, error) {
	var l types.VaultExecutionLock
	err := json.Unmarshal(body, &l)
	return l, err
}

// lockKeySeed is a fixed 32-byte highwayhash key. It doesn't need secrecy —
// lock keys aren't a security boundary, just a fast fixed-width digest — so
// a constant seed keeps hashing deterministic across processes and
// restarts.
var lockKeySeed = make([]byte, 32)

// lockKey computes the distributed lock id for a vault, per spec's
// lock_key := hash("vault:" + vault.id) step.
func lockKey(vaultID string) string {
	sum := highwayhash.Sum64([]byte("vault:"+vaultID), lockKeySeed)
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, sum)
	return hex.EncodeToString(b)
}

// errLockHeld is returned by acquireLock when the lock is currently held by
// a live holder (not expired), so the caller should skip this (pipeline,
// vault) this cycle.
var errLockHeld = errors.New("scheduler: lock currently held")

// acquireLock implements the lease protocol from spec.md §4.5: create if
// absent; on conflict, read the existing lock and steal it by conditional
// replace only if its expires_at has passed. Returns the acquired lock
// document (with its Registry revision) on success.
func acquireLock(ctx context.Context, reg storage.Registry, clock storage.Clock, containerName, key, workerID string, ttl time.Duration) (types.VaultExecutionLock, error) {
	now := clock.Now()
	lock := types.VaultExecutionLock{
		ID:             key,
		HolderWorkerID: workerID,
		AcquiredAt:     now,
		ExpiresAt:      now.Add(ttl),
	}
	body, err := marshalLock(lock)
	if err != nil {
		return types.VaultExecutionLock{}, err
	}

	doc, err := reg.CreateIfAbsent(ctx, containerName, storage.Doc{ID: key, Body: body})
	if err == nil {
		lock.Revision = doc.Revision
		return lock, nil
	}
	if !errors.Is(err, storage.ErrConflict) {
		return types.VaultExecutionLock{}, err
	}

	existingDoc, err := reg.Get(ctx, containerName, key)
	if err != nil {
		return types.VaultExecutionLock{}, err
	}
	existing, err := unmarshalLock(existingDoc.Body)
	if err != nil {
		return types.VaultExecutionLock{}, err
	}
	if existing.ExpiresAt.After(now) {
		return types.VaultExecutionLock{}, errLockHeld
	}

	// Steal: conditional replace keyed on the revision we just read, never
	// on the prior holder's identity.
	stolen := types.VaultExecutionLock{
		ID:             key,
		HolderWorkerID: workerID,
		AcquiredAt:     now,
		ExpiresAt:      now.Add(ttl),
	}
	stolenBody, err := marshalLock(stolen)
	if err != nil {
		return types.VaultExecutionLock{}, err
	}
	replaced, err := reg.Replace(ctx, containerName, storage.Doc{ID: key, Body: stolenBody, Revision: existingDoc.Revision})
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return types.VaultExecutionLock{}, errLockHeld
		}
		return types.VaultExecutionLock{}, err
	}
	stolen.Revision = replaced.Revision
	return stolen, nil
}

// releaseLock deletes the lock document outright so the next due cycle
// doesn't wait out the TTL.
func releaseLock(ctx context.Context, reg storage.Registry, containerName, key string) error {
	return reg.Delete(ctx, containerName, key)
}

// refreshLock starts a background goroutine that renews the lock's
// expires_at every ttl/3 until ctx is canceled, matching spec.md §4.5's
// refresher. It returns a stop function the caller must invoke (idempotent
// via context cancellation) once the crawl finishes, before releaseLock.
func refreshLock(ctx context.Context, reg storage.Registry, clock storage.Clock, containerName string, lock types.VaultExecutionLock, ttl time.Duration, onErr func(error)) (stop func()) {
	refreshCtx, cancel := context.WithCancel(ctx)
	current := lock

	go func() {
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-refreshCtx.Done():
				return
			case <-ticker.C:
				now := clock.Now()
				renewed := current
				renewed.ExpiresAt = now.Add(ttl)
				body, err := marshalLock(renewed)
				if err != nil {
					onErr(err)
					continue
				}
				doc, err := reg.Replace(refreshCtx, containerName, storage.Doc{ID: current.ID, Body: body, Revision: current.Revision})
				if err != nil {
					onErr(err)
					continue
				}
				renewed.Revision = doc.Revision
				current = renewed
			}
		}
	}()

	return cancel
}
