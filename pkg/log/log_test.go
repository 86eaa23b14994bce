package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_JSONOutputWritesStructuredLines(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	Logger.Info().Str("vault_id", "vault-1").Msg("crawl completed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "crawl completed", entry["message"])
	assert.Equal(t, "vault-1", entry["vault_id"])
	assert.Equal(t, "info", entry["level"])
}

func TestInit_LevelFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, JSONOutput: true, Output: &buf})

	Logger.Info().Msg("should be filtered")
	assert.Empty(t, buf.Bytes())

	Logger.Warn().Msg("should appear")
	assert.NotEmpty(t, buf.Bytes())
}

func TestWithComponent_AddsComponentField(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	schedulerLog := WithComponent("scheduler")
	schedulerLog.Info().Msg("starting crawl loop")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "scheduler", entry["component"])
}

func TestContextLoggerHelpers_AddExpectedFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	WithWorker("processing-0").Info().Msg("worker started")
	var worker map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &worker))
	assert.Equal(t, "processing-0", worker["worker_id"])

	buf.Reset()
	WithPipeline("pipeline-1").Info().Msg("pipeline parsed")
	var pipeline map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &pipeline))
	assert.Equal(t, "pipeline-1", pipeline["pipeline_id"])

	buf.Reset()
	WithVault("vault-1").Info().Msg("vault crawled")
	var vault map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &vault))
	assert.Equal(t, "vault-1", vault["vault_id"])

	buf.Reset()
	WithExecution("execution-1").Info().Msg("execution completed")
	var execution map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &execution))
	assert.Equal(t, "execution-1", execution["execution_id"])

	buf.Reset()
	WithTaskID("task-1").Info().Msg("task started")
	var task map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &task))
	assert.Equal(t, "task-1", task["task_id"])
}
