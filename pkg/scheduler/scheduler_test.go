package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Azure/contentflow-sub002/pkg/storage"
	"github.com/Azure/contentflow-sub002/pkg/types"
)

const testPipelineYAML = `
input: source
nodes:
  - id: source
    type: fixed_source
    settings:
      items:
        - canonical_id: doc-1
        - canonical_id: doc-2
      polling_interval_seconds: 60
    next: [sink]
  - id: sink
    type: noop
`

func newTestScheduler(t *testing.T) (*Scheduler, storage.Registry, storage.Queue, *storage.FakeClock, Containers) {
	t.Helper()
	clock := storage.NewFakeClock(time.Now())
	reg := storage.NewMemRegistry()
	queue := storage.NewMemQueue(clock)
	blobs := storage.NewMemBlobStore()
	containers := Containers{
		Pipelines:   "pipelines",
		Vaults:      "vaults",
		Executions:  "vault_executions",
		Locks:       "vault_execution_locks",
		Checkpoints: "vault_crawl_checkpoints",
	}
	s := NewScheduler(reg, queue, blobs, clock, containers, Options{
		WorkerID:               "worker-a",
		LockTTL:                30 * time.Second,
		SleepInterval:          time.Hour,
		DefaultPollingInterval: 60 * time.Second,
		BatchSize:              10,
	})
	return s, reg, queue, clock, containers
}

func putDoc(t *testing.T, reg storage.Registry, container, id string, v any) {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	_, err = reg.Upsert(context.Background(), container, storage.Doc{ID: id, Body: body})
	require.NoError(t, err)
}

func TestRunCycle_CrawlsDueVaultAndEnqueuesTasks(t *testing.T) {
	ctx := context.Background()
	s, reg, queue, _, containers := newTestScheduler(t)

	putDoc(t, reg, containers.Pipelines, "p1", types.Pipeline{ID: "p1", Name: "docs", Enabled: true, YAML: testPipelineYAML})
	putDoc(t, reg, containers.Vaults, "v1", types.Vault{ID: "v1", PipelineID: "p1", Enabled: true})

	require.NoError(t, s.runCycle(ctx))

	n, err := queue.ApproxLen(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "two items under batch size 10 should produce a single task")

	_, err = reg.Get(ctx, containers.Checkpoints, types.CheckpointID("p1", "v1", "source"))
	assert.NoError(t, err, "checkpoint should be advanced after a clean crawl")
}

func TestRunCycle_SkipsVaultNotYetDue(t *testing.T) {
	ctx := context.Background()
	s, reg, queue, clock, containers := newTestScheduler(t)

	putDoc(t, reg, containers.Pipelines, "p1", types.Pipeline{ID: "p1", Name: "docs", Enabled: true, YAML: testPipelineYAML})
	putDoc(t, reg, containers.Vaults, "v1", types.Vault{ID: "v1", PipelineID: "p1", Enabled: true})

	require.NoError(t, s.runCycle(ctx))
	first, err := queue.ApproxLen(ctx)
	require.NoError(t, err)

	clock.Advance(time.Second) // far short of the 60s polling interval
	require.NoError(t, s.runCycle(ctx))
	second, err := queue.ApproxLen(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second, "a second cycle before the polling interval elapses must not re-crawl")
}

func TestRunCycle_IgnoresDisabledPipeline(t *testing.T) {
	ctx := context.Background()
	s, reg, queue, _, containers := newTestScheduler(t)

	putDoc(t, reg, containers.Pipelines, "p1", types.Pipeline{ID: "p1", Name: "docs", Enabled: false, YAML: testPipelineYAML})
	putDoc(t, reg, containers.Vaults, "v1", types.Vault{ID: "v1", PipelineID: "p1", Enabled: true})

	require.NoError(t, s.runCycle(ctx))

	n, err := queue.ApproxLen(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
