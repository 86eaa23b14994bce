package contentflowerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind_Retriable(t *testing.T) {
	assert.True(t, Transient.Retriable())
	assert.True(t, Timeout.Retriable())
	assert.False(t, InvalidPipeline.Retriable())
	assert.False(t, PipelineMissing.Retriable())
	assert.False(t, PoisonMessage.Retriable())
	assert.False(t, ExecutorFailure.Retriable())
	assert.False(t, LockConflict.Retriable())
	assert.False(t, CrawlAborted.Retriable())
}

func TestError_Error(t *testing.T) {
	cause := errors.New("connection refused")

	plain := New(Transient, cause)
	assert.Equal(t, "transient: connection refused", plain.Error())

	noCause := New(LockConflict, nil)
	assert.Equal(t, "lock_conflict", noCause.Error())

	withExecutor := NewExecutor("http-fetch", cause)
	assert.Equal(t, "executor_failure[executor=http-fetch]: connection refused", withExecutor.Error())

	withExecutorNoCause := &Error{Kind: ExecutorFailure, ExecutorID: "http-fetch"}
	assert.Equal(t, "executor_failure[executor=http-fetch]", withExecutorNoCause.Error())
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := New(Timeout, cause)
	assert.ErrorIs(t, err, cause)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("dequeue failed: %w", New(PoisonMessage, nil))
	assert.Equal(t, PoisonMessage, KindOf(wrapped))

	assert.Equal(t, Transient, KindOf(errors.New("some random error")))
	assert.Equal(t, Transient, KindOf(nil))
}

func TestIs(t *testing.T) {
	err := New(CrawlAborted, errors.New("listing failed"))
	assert.True(t, Is(err, CrawlAborted))
	assert.False(t, Is(err, Timeout))
}
