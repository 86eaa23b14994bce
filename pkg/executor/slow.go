package executor

import (
	"fmt"
	"time"
)

func init() {
	Register("slow", func() Executor { return &SlowExecutor{} })
}

// SlowExecutor blocks for settings.sleep_ms before passing its input
// through unchanged, returning the context's error if it is canceled or
// times out first. It exists purely to exercise RunFrom's per-executor
// timeout policy in tests.
type SlowExecutor struct {
	sleep time.Duration
}

func (e *SlowExecutor) Init(settings map[string]any) error {
	if v, ok := settings["sleep_ms"]; ok {
		n, ok := toInt(v)
		if !ok {
			return fmt.Errorf("slow: sleep_ms must be a number")
		}
		e.sleep = time.Duration(n) * time.Millisecond
	}
	return nil
}

func (e *SlowExecutor) Process(ctx ExecCtx, item Item) (Item, error) {
	select {
	case <-time.After(e.sleep):
		return item, nil
	case <-ctx.Done():
		return item, ctx.Err()
	}
}

func (e *SlowExecutor) Teardown() error { return nil }
