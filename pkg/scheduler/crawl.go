package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Azure/contentflow-sub002/pkg/contentflowerr"
	"github.com/Azure/contentflow-sub002/pkg/executor"
	"github.com/Azure/contentflow-sub002/pkg/storage"
	"github.com/Azure/contentflow-sub002/pkg/types"
)

// crawlOne runs the eight-step crawl procedure for one due (pipeline,
// vault) pair while the caller holds its lock: create the execution
// record, read the checkpoint, drain the input executor, batch and enqueue
// tasks, advance the checkpoint, and finalize the execution's
// scheduler-owned fields.
func (s *Scheduler) crawlOne(ctx context.Context, pipeline types.Pipeline, vault types.Vault, graph *executor.Graph, logger zerolog.Logger) error {
	execution := types.VaultExecution{
		ID:         uuid.NewString(),
		VaultID:    vault.ID,
		PipelineID: pipeline.ID,
		Status:     types.ExecutionPending,
		StartedAt:  s.clock.Now(),
	}
	if err := s.createExecution(ctx, execution); err != nil {
		return fmt.Errorf("create execution record: %w", err)
	}
	execution.Status = types.ExecutionRunning
	if err := s.updateExecutionStatus(ctx, execution.ID, types.ExecutionRunning); err != nil {
		return fmt.Errorf("transition execution to running: %w", err)
	}

	checkpointID := types.CheckpointID(pipeline.ID, vault.ID, graph.InputNode)
	checkpoint, err := s.loadCheckpoint(ctx, checkpointID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	enqueued := 0
	var watermark time.Time
	batch := make([]types.ContentItem, 0, s.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.enqueueBatch(ctx, pipeline, vault, execution.ID, graph.InputNode, batch); err != nil {
			return err
		}
		enqueued += len(batch)
		batch = batch[:0]
		return nil
	}

	runCtx := executor.ExecCtx{Context: ctx, Blobs: s.blobs}
	var crawlErr error
	yieldErr := executor.RunInputOnly(runCtx, graph, checkpoint, func(item types.ContentItem) bool {
		batch = append(batch, item)
		watermark = s.clock.Now()
		if len(batch) >= s.batchSize {
			if err := flush(); err != nil {
				crawlErr = err
				return false
			}
		}
		return true
	})
	if crawlErr == nil {
		crawlErr = flush()
	}

	if yieldErr != nil || crawlErr != nil {
		abortErr := yieldErr
		if abortErr == nil {
			abortErr = crawlErr
		}
		s.failExecution(ctx, execution.ID, contentflowerr.New(contentflowerr.CrawlAborted, abortErr))
		logger.Error().Err(abortErr).Str("vault_id", vault.ID).Msg("crawl aborted mid-iteration, checkpoint not advanced")
		return abortErr
	}

	if !watermark.IsZero() {
		if err := s.saveCheckpoint(ctx, types.VaultCrawlCheckpoint{
			ID:                  checkpointID,
			PipelineID:          pipeline.ID,
			VaultID:             vault.ID,
			ExecutorID:          graph.InputNode,
			CheckpointTimestamp: watermark,
			WorkerID:            s.workerID,
		}); err != nil {
			return fmt.Errorf("advance checkpoint: %w", err)
		}
	}

	n := enqueued
	if err := s.setExecutionItemCount(ctx, execution.ID, n); err != nil {
		return fmt.Errorf("record enqueued count: %w", err)
	}
	return nil
}

func (s *Scheduler) enqueueBatch(ctx context.Context, pipeline types.Pipeline, vault types.Vault, executionID, inputNode string, items []types.ContentItem) error {
	task := types.ContentProcessingTask{
		TaskID:                uuid.NewString(),
		PipelineID:            pipeline.ID,
		PipelineName:          pipeline.Name,
		ExecutionID:           executionID,
		VaultID:               vault.ID,
		Content:               append([]types.ContentItem(nil), items...),
		ExecutedInputExecutor: inputNode,
		MaxRetries:            pipeline.Retries,
		SaveOutput:            vault.SaveExecutionOutput,
	}
	envelope := types.TaskEnvelope{TaskType: types.TaskTypeContentProcessing, Payload: task}
	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode task envelope: %w", err)
	}
	return s.queue.Send(ctx, body, 0)
}
