package worker

import (
	"encoding/json"
	"fmt"

	"github.com/Azure/contentflow-sub002/pkg/contentflowerr"
	"github.com/Azure/contentflow-sub002/pkg/types"
)

// decodeTask parses a queue message's versioned envelope and returns its
// ContentProcessingTask payload. Any other task_type — including the
// deprecated InputSourceTask — is poison: the caller deletes the message
// without retrying, per spec.md §4.2.
func decodeTask(raw []byte) (types.ContentProcessingTask, error) {
	var envelope types.TaskEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return types.ContentProcessingTask{}, contentflowerr.New(contentflowerr.PoisonMessage, fmt.Errorf("decode envelope: %w", err))
	}
	if envelope.TaskType != types.TaskTypeContentProcessing {
		return types.ContentProcessingTask{}, contentflowerr.New(contentflowerr.PoisonMessage,
			fmt.Errorf("unsupported task_type %q", envelope.TaskType))
	}

	payload, err := json.Marshal(envelope.Payload)
	if err != nil {
		return types.ContentProcessingTask{}, contentflowerr.New(contentflowerr.PoisonMessage, fmt.Errorf("re-encode payload: %w", err))
	}
	var task types.ContentProcessingTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return types.ContentProcessingTask{}, contentflowerr.New(contentflowerr.PoisonMessage, fmt.Errorf("decode content_processing payload: %w", err))
	}
	return task, nil
}

// encodeRetryTask re-encodes task as an envelope for re-enqueue with an
// incremented retry_count.
func encodeRetryTask(task types.ContentProcessingTask) ([]byte, error) {
	envelope := types.TaskEnvelope{TaskType: types.TaskTypeContentProcessing, Payload: task}
	return json.Marshal(envelope)
}
