package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azure/contentflow-sub002/pkg/storage"
)

type failingIdentity struct{ err error }

func (f failingIdentity) Verify(ctx context.Context) error { return f.err }

func TestQueueChecker_HealthyAgainstMemQueue(t *testing.T) {
	clock := storage.NewFakeClock(time.Now())
	checker := QueueChecker{Queue: storage.NewMemQueue(clock)}
	result := checker.Check(context.Background())
	assert.True(t, result.Healthy)
}

func TestRegistryChecker_NotFoundIsHealthy(t *testing.T) {
	checker := RegistryChecker{Registry: storage.NewMemRegistry(), ProbeContainer: "pipelines", ProbeID: "does-not-exist"}
	result := checker.Check(context.Background())
	assert.True(t, result.Healthy, "a clean not-found proves the round trip works")
}

func TestBlobChecker_HealthyAgainstEmptyStore(t *testing.T) {
	checker := BlobChecker{Blobs: storage.NewMemBlobStore(), Prefix: ""}
	result := checker.Check(context.Background())
	assert.True(t, result.Healthy)
}

func TestCredentialChecker_ReflectsVerifyOutcome(t *testing.T) {
	ok := CredentialChecker{Identity: storage.NoopIdentity{}}
	assert.True(t, ok.Check(context.Background()).Healthy)

	failing := CredentialChecker{Identity: failingIdentity{err: errors.New("token expired")}}
	result := failing.Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "token expired")
}

func TestNewNetworkChecker_DefaultsToPort443(t *testing.T) {
	checker, err := NewNetworkChecker("https://myaccount.documents.azure.com/")
	require.NoError(t, err)
	assert.Equal(t, "myaccount.documents.azure.com:443", checker.Address)
}

func TestMonitor_RunOnceUpdatesStatusAfterRetriesThreshold(t *testing.T) {
	m := NewMonitor(Config{Interval: time.Hour, Timeout: time.Second, Retries: 2})
	failing := failingIdentity{err: errors.New("boom")}
	m.Register("credential", CredentialChecker{Identity: failing})

	m.RunOnce(context.Background())
	assert.True(t, m.statuses["credential"].Healthy, "first failure alone must not flip health below the retry threshold")

	m.RunOnce(context.Background())
	assert.False(t, m.statuses["credential"].Healthy, "second consecutive failure reaches the configured threshold")
}
