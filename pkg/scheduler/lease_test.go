package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azure/contentflow-sub002/pkg/storage"
)

func TestAcquireLock_SecondAcquirerIsBlockedWhileLive(t *testing.T) {
	ctx := context.Background()
	clock := storage.NewFakeClock(time.Now())
	reg := storage.NewMemRegistry()

	_, err := acquireLock(ctx, reg, clock, "locks", "vault-1", "worker-a", 30*time.Second)
	require.NoError(t, err)

	_, err = acquireLock(ctx, reg, clock, "locks", "vault-1", "worker-b", 30*time.Second)
	assert.ErrorIs(t, err, errLockHeld)
}

func TestAcquireLock_StealsExpiredLock(t *testing.T) {
	ctx := context.Background()
	clock := storage.NewFakeClock(time.Now())
	reg := storage.NewMemRegistry()

	first, err := acquireLock(ctx, reg, clock, "locks", "vault-1", "worker-a", 10*time.Second)
	require.NoError(t, err)

	clock.Advance(11 * time.Second)

	second, err := acquireLock(ctx, reg, clock, "locks", "vault-1", "worker-b", 10*time.Second)
	require.NoError(t, err, "lock should be stealable once expires_at has passed")
	assert.Equal(t, "worker-b", second.HolderWorkerID)
	assert.NotEqual(t, first.Revision, second.Revision)
}

func TestReleaseLock_AllowsImmediateReacquisition(t *testing.T) {
	ctx := context.Background()
	clock := storage.NewFakeClock(time.Now())
	reg := storage.NewMemRegistry()

	_, err := acquireLock(ctx, reg, clock, "locks", "vault-1", "worker-a", 30*time.Second)
	require.NoError(t, err)

	require.NoError(t, releaseLock(ctx, reg, "locks", "vault-1"))

	_, err = acquireLock(ctx, reg, clock, "locks", "vault-1", "worker-b", 30*time.Second)
	assert.NoError(t, err, "lock should be immediately acquirable after an explicit release")
}

func TestLockKey_IsStableAndVaultSpecific(t *testing.T) {
	a1 := lockKey("vault-1")
	a2 := lockKey("vault-1")
	b := lockKey("vault-2")
	assert.Equal(t, a1, a2)
	assert.NotEqual(t, a1, b)
}
