package executor

import (
	"fmt"

	"github.com/Azure/contentflow-sub002/pkg/types"
)

func init() {
	Register("fixed_source", func() Executor { return &FixedSourceExecutor{} })
}

// FixedSourceExecutor is an input executor that produces a fixed, declared
// list of content items, ignoring any checkpoint. It stands in for a real
// crawling input executor in tests and local pipeline definitions.
type FixedSourceExecutor struct {
	items []types.ContentItem
}

func (e *FixedSourceExecutor) Init(settings map[string]any) error {
	raw, ok := settings["items"]
	if !ok {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("fixed_source: items must be a list")
	}
	for _, v := range list {
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("fixed_source: each item must be a map")
		}
		id, _ := m["canonical_id"].(string)
		e.items = append(e.items, types.ContentItem{
			ID:     types.ContentItemID{CanonicalID: id, UniqueID: id},
			Status: types.ContentItemPending,
		})
	}
	return nil
}

func (e *FixedSourceExecutor) Process(ctx ExecCtx, item Item) (Item, error) {
	return item, fmt.Errorf("fixed_source: not a transformation executor")
}

func (e *FixedSourceExecutor) Teardown() error { return nil }

// Produce yields every configured item in declaration order, stopping
// early if yield returns false.
func (e *FixedSourceExecutor) Produce(ctx ExecCtx, yield func(types.ContentItem) bool) error {
	for _, item := range e.items {
		if !yield(item) {
			return nil
		}
	}
	return nil
}
