package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckpointID_IsStableForSameTriple(t *testing.T) {
	a := CheckpointID("pipeline-1", "vault-1", "http-fetch")
	b := CheckpointID("pipeline-1", "vault-1", "http-fetch")
	assert.Equal(t, a, b)
	assert.Equal(t, "pipeline-1/vault-1/http-fetch", a)
}

func TestCheckpointID_DiffersAcrossExecutors(t *testing.T) {
	a := CheckpointID("pipeline-1", "vault-1", "http-fetch")
	b := CheckpointID("pipeline-1", "vault-1", "rss-fetch")
	assert.NotEqual(t, a, b)
}

func TestTaskEnvelope_CarriesContentProcessingPayload(t *testing.T) {
	task := ContentProcessingTask{
		TaskID:     "task-1",
		PipelineID: "pipeline-1",
		VaultID:    "vault-1",
		Content: []ContentItem{
			{
				ID: ContentItemID{CanonicalID: "doc-1", UniqueID: "doc-1-v1", SourceName: "docs", SourceType: "blob"},
				Status: ContentItemPending,
			},
		},
		MaxRetries: 3,
	}

	envelope := TaskEnvelope{TaskType: TaskTypeContentProcessing, Payload: task}

	assert.Equal(t, TaskTypeContentProcessing, envelope.TaskType)
	payload, ok := envelope.Payload.(ContentProcessingTask)
	assert.True(t, ok)
	assert.Equal(t, "task-1", payload.TaskID)
	assert.Len(t, payload.Content, 1)
}
