package worker

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

const chainPipelineYAML = `
input: source
nodes:
  - id: source
    type: noop
    next: [sink]
  - id: sink
    type: noop
`

const branchingPipelineYAML = `
input: source
nodes:
  - id: source
    type: noop
    next: [left, right]
  - id: left
    type: noop
    next: [join]
  - id: right
    type: noop
    next: [join]
  - id: join
    type: noop
`

const failAfterPipelineYAML = `
input: source
nodes:
  - id: source
    type: noop
    next: [sink]
  - id: sink
    type: fail_after
    settings:
      fail_count: 5
`

func newTestWorker(t *testing.T) (*Worker, storage.Registry, storage.Queue, Containers) {
	t.Helper()
	clock := storage.NewFakeClock(time.Now())
	reg := storage.NewMemRegistry()
	queue := storage.NewMemQueue(clock)
	blobs := storage.NewMemBlobStore()
	containers := Containers{Pipelines: "pipelines", Executions: "vault_executions"}

	w, err := NewWorker(queue, reg, blobs, clock, containers, Options{
		WorkerID:             "worker-a",
		MaxMessages:          10,
		VisibilityTimeout:    30 * time.Second,
		ShutdownGrace:        5 * time.Second,
		GraphCacheSize:       16,
		ExecutionLookupTries: 3,
		ExecutionLookupDelay: time.Millisecond,
		MaxParallel:          4,
	})
	require.NoError(t, err)
	return w, reg, queue, containers
}

func putPipeline(t *testing.T, reg storage.Registry, containers Containers, p types.Pipeline) {
	t.Helper()
	body, err := json.Marshal(p)
	require.NoError(t, err)
	_, err = reg.Upsert(context.Background(), containers.Pipelines, storage.Doc{ID: p.ID, Body: body})
	require.NoError(t, err)
}

func putExecution(t *testing.T, reg storage.Registry, containers Containers, e types.VaultExecution) {
	t.Helper()
	body, err := json.Marshal(e)
	require.NoError(t, err)
	_, err = reg.Upsert(context.Background(), containers.Executions, storage.Doc{ID: e.ID, Body: body})
	require.NoError(t, err)
}

func envelopeBody(t *testing.T, task types.ContentProcessingTask) []byte {
	t.Helper()
	body, err := encodeRetryTask(task)
	require.NoError(t, err)
	return body
}

func TestProcess_CompletesNoopChainAndMarksExecutionCompleted(t *testing.T) {
	w, reg, _, containers := newTestWorker(t)
	putPipeline(t, reg, containers, types.Pipeline{ID: "p1", Enabled: true, YAML: chainPipelineYAML})
	putExecution(t, reg, containers, types.VaultExecution{ID: "e1", PipelineID: "p1", Status: types.ExecutionRunning})

	task := types.ContentProcessingTask{
		TaskID:      "t1",
		PipelineID:  "p1",
		ExecutionID: "e1",
		MaxRetries:  3,
		Content:     []types.ContentItem{{ID: types.ContentItemID{CanonicalID: "doc-1"}}},
	}

	out := w.process(context.Background(), envelopeBody(t, task))
	assert.Equal(t, actionDelete, out.action)
	assert.Equal(t, "completed", out.label)

	doc, err := reg.Get(context.Background(), containers.Executions, "e1")
	require.NoError(t, err)
	var updated types.VaultExecution
	require.NoError(t, json.Unmarshal(doc.Body, &updated))
	assert.Equal(t, types.ExecutionCompleted, updated.Status)
	assert.Len(t, updated.Events, 2, "one event per chained noop executor")
}

func TestProcess_RejectsPoisonEnvelopeWithoutTouchingRegistry(t *testing.T) {
	w, _, _, _ := newTestWorker(t)
	out := w.process(context.Background(), []byte("not json"))
	assert.Equal(t, actionDelete, out.action)
	assert.Equal(t, "poison", out.label)
}

func TestProcess_MarksPipelineMissingFailedAndDeletes(t *testing.T) {
	w, reg, _, containers := newTestWorker(t)
	putExecution(t, reg, containers, types.VaultExecution{ID: "e1", PipelineID: "missing", Status: types.ExecutionRunning})

	task := types.ContentProcessingTask{TaskID: "t1", PipelineID: "missing", ExecutionID: "e1"}
	out := w.process(context.Background(), envelopeBody(t, task))
	assert.Equal(t, actionDelete, out.action)
	assert.Equal(t, "pipeline_missing", out.label)

	doc, err := reg.Get(context.Background(), containers.Executions, "e1")
	require.NoError(t, err)
	var updated types.VaultExecution
	require.NoError(t, json.Unmarshal(doc.Body, &updated))
	assert.Equal(t, types.ExecutionFailed, updated.Status)
}

func TestProcess_NonRetriableExecutorFailureFailsExecutionAndDeletes(t *testing.T) {
	w, reg, _, containers := newTestWorker(t)
	putPipeline(t, reg, containers, types.Pipeline{ID: "p1", Enabled: true, YAML: failAfterPipelineYAML, Retries: 0})
	putExecution(t, reg, containers, types.VaultExecution{ID: "e1", PipelineID: "p1", Status: types.ExecutionRunning})

	task := types.ContentProcessingTask{
		TaskID:      "t1",
		PipelineID:  "p1",
		ExecutionID: "e1",
		MaxRetries:  3,
		Content:     []types.ContentItem{{ID: types.ContentItemID{CanonicalID: "doc-1"}}},
	}

	out := w.process(context.Background(), envelopeBody(t, task))
	assert.Equal(t, actionDelete, out.action)
	assert.Equal(t, "executor_failure", out.label, "an executor-raised error is non-retriable regardless of retry budget")

	doc, err := reg.Get(context.Background(), containers.Executions, "e1")
	require.NoError(t, err)
	var updated types.VaultExecution
	require.NoError(t, json.Unmarshal(doc.Body, &updated))
	assert.Equal(t, types.ExecutionFailed, updated.Status)
}

func TestSummarize_BranchesOnTaskSaveOutputFlag(t *testing.T) {
	item := types.ContentItem{
		Data:        map[string]any{"full": "text"},
		SummaryData: map[string]any{"summary": "gist"},
	}

	full := summarize(item, types.ContentProcessingTask{SaveOutput: true})
	assert.Equal(t, item.Data, full)

	summary := summarize(item, types.ContentProcessingTask{SaveOutput: false})
	assert.Equal(t, item.SummaryData, summary)
}

func TestProcess_ResumingAfterMultiSuccessorInputExecutorRunsEveryBranch(t *testing.T) {
	w, reg, _, containers := newTestWorker(t)
	putPipeline(t, reg, containers, types.Pipeline{ID: "p1", Enabled: true, YAML: branchingPipelineYAML})
	putExecution(t, reg, containers, types.VaultExecution{ID: "e1", PipelineID: "p1", Status: types.ExecutionRunning})

	task := types.ContentProcessingTask{
		TaskID:                "t1",
		PipelineID:            "p1",
		ExecutionID:           "e1",
		MaxRetries:            3,
		ExecutedInputExecutor: "source",
		Content:               []types.ContentItem{{ID: types.ContentItemID{CanonicalID: "doc-1"}}},
	}

	out := w.process(context.Background(), envelopeBody(t, task))
	assert.Equal(t, actionDelete, out.action)
	assert.Equal(t, "completed", out.label)

	doc, err := reg.Get(context.Background(), containers.Executions, "e1")
	require.NoError(t, err)
	var updated types.VaultExecution
	require.NoError(t, json.Unmarshal(doc.Body, &updated))
	assert.Equal(t, types.ExecutionCompleted, updated.Status)
	assert.Len(t, updated.Events, 3, "left, right, and join should each emit one event; neither branch was dropped")
}

const slowStagePipelineYAML = `
input: source
nodes:
  - id: source
    type: noop
    next: [sink]
  - id: sink
    type: slow
    settings:
      sleep_ms: 2000
`

func TestProcess_StageTimeoutIsRetriedUpToMaxRetriesNotFailedImmediately(t *testing.T) {
	w, reg, _, containers := newTestWorker(t)
	putPipeline(t, reg, containers, types.Pipeline{ID: "p1", Enabled: true, YAML: slowStagePipelineYAML, Timeout: 1, RetryDelay: 0, Retries: 0})
	putExecution(t, reg, containers, types.VaultExecution{ID: "e1", PipelineID: "p1", Status: types.ExecutionRunning})

	task := types.ContentProcessingTask{
		TaskID:      "t1",
		PipelineID:  "p1",
		ExecutionID: "e1",
		RetryCount:  0,
		MaxRetries:  2,
		Content:     []types.ContentItem{{ID: types.ContentItemID{CanonicalID: "doc-1"}}},
	}

	out := w.process(context.Background(), envelopeBody(t, task))
	assert.Equal(t, actionRetry, out.action, "a timeout classified failure must be retried, not failed immediately")
	assert.Equal(t, 1, out.retryTask.RetryCount)

	doc, err := reg.Get(context.Background(), containers.Executions, "e1")
	require.NoError(t, err)
	var updated types.VaultExecution
	require.NoError(t, json.Unmarshal(doc.Body, &updated))
	assert.Equal(t, types.ExecutionRunning, updated.Status, "execution must not be marked failed while a retry is still available")
}

func TestBackoffVisibility_GrowsWithRetryCountAndCaps(t *testing.T) {
	assert.Equal(t, 0*time.Second, backoffVisibility(0))
	assert.Equal(t, 25*time.Second, backoffVisibility(5))
	assert.Equal(t, 5*time.Minute, backoffVisibility(1000))
}
