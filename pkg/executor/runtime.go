package executor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/Azure/contentflow-sub002/pkg/contentflowerr"
	"github.com/Azure/contentflow-sub002/pkg/storage"
	"github.com/Azure/contentflow-sub002/pkg/types"
)

var (
	errNoInputNode          = errors.New("graph has no input node")
	errNotAnInputExecutor   = errors.New("input node's executor does not implement InputExecutor")
	errUpstreamBranchFailed = errors.New("upstream branch failed")
)

// Item is the unit of work RunFrom/RunInputOnly pass between executors; it
// wraps a ContentItem with the node-local error an executor attached to it,
// if any.
type Item struct {
	Content types.ContentItem
	Err     error
}

// ExecCtx is the capability handle an Executor's Process method receives:
// the caller's context plus the BlobStore binding, since executors (not the
// scheduler or the worker) are the only callers spec.md authorizes to touch
// blob storage.
type ExecCtx struct {
	context.Context
	Blobs storage.BlobStore
}

// PolicyOptions configures retries/timeout/fan-out for one RunFrom or
// RunInputOnly invocation, taken directly from the owning Pipeline's
// fields.
type PolicyOptions struct {
	Retries     int
	RetryDelay  time.Duration
	Timeout     time.Duration
	MaxParallel int
}

// RunResult is the terminal outcome of a single item's pass through
// RunFrom.
type RunResult struct {
	Item   types.ContentItem
	Events []types.ExecutionEvent
	Err    error
}

// RunFrom executes graph starting at startNodes (each inclusive) for each
// input item, honoring opts.Retries/RetryDelay/Timeout per executor
// invocation. Passing more than one start node lets a caller resume after a
// node with multiple successors without dropping any of them. Within one
// item's walk, a node with more than one successor fans out into concurrent
// branches; a node with more than one predecessor is a join that waits for
// every branch feeding it and merges their outputs. Fan-out concurrency is
// bounded by opts.MaxParallel and by any forking node's own declared
// max_parallel. Concurrency across different input items in the batch is
// not bounded here. It returns one RunResult per input item, preserving
// input order.
func RunFrom(ctx ExecCtx, g *Graph, startNodes []string, inputs []types.ContentItem, opts PolicyOptions) []RunResult {
	results := make([]RunResult, len(inputs))
	order := g.OrderFromAny(startNodes)

	g2, runCtx := errgroup.WithContext(ctx.Context)
	for i, item := range inputs {
		i, item := i, item
		g2.Go(func() error {
			events, out, err := runItem(ExecCtx{Context: runCtx, Blobs: ctx.Blobs}, g, order, item, opts)
			results[i] = RunResult{Item: out, Events: events, Err: err}
			return nil
		})
	}
	_ = g2.Wait()
	return results
}

// nodeOutcome is one node's result within a single item's fan-out/join walk.
type nodeOutcome struct {
	item   types.ContentItem
	events []types.ExecutionEvent
	err    error
}

// runItem drives a single item through order, the topological slice of node
// ids reachable from the start node, executing independent branches
// concurrently and joining at nodes with multiple predecessors.
func runItem(ctx ExecCtx, g *Graph, order []string, item types.ContentItem, opts PolicyOptions) ([]types.ExecutionEvent, types.ContentItem, error) {
	if len(order) == 0 {
		return nil, item, nil
	}

	inOrder := make(map[string]bool, len(order))
	for _, id := range order {
		inOrder[id] = true
	}

	predecessors := make(map[string][]string, len(order))
	hasSuccessor := make(map[string]bool, len(order))
	for _, id := range order {
		node, _ := g.Node(id)
		for _, succ := range node.Next {
			if !inOrder[succ] {
				continue
			}
			predecessors[succ] = append(predecessors[succ], id)
			hasSuccessor[id] = true
		}
	}

	// forkLimits bounds concurrency among a forking node's own declared
	// parallel group (ParallelOf, or all of Next if ParallelOf is unset),
	// in addition to the overall opts.MaxParallel bound below.
	forkLimits := make(map[string]chan struct{})
	forkGroup := make(map[string]map[string]bool)
	for _, id := range order {
		node, _ := g.Node(id)
		if node.MaxParallel <= 0 {
			continue
		}
		group := node.ParallelOf
		if len(group) == 0 {
			group = node.Next
		}
		if len(group) < 2 {
			continue
		}
		forkLimits[id] = make(chan struct{}, node.MaxParallel)
		set := make(map[string]bool, len(group))
		for _, s := range group {
			set[s] = true
		}
		forkGroup[id] = set
	}
	var global chan struct{}
	if opts.MaxParallel > 0 {
		global = make(chan struct{}, opts.MaxParallel)
	}
	acquire := func(nodeID string, preds []string) func() {
		var held []chan struct{}
		if global != nil {
			global <- struct{}{}
			held = append(held, global)
		}
		for _, p := range preds {
			if lim, ok := forkLimits[p]; ok && forkGroup[p][nodeID] {
				lim <- struct{}{}
				held = append(held, lim)
			}
		}
		return func() {
			for _, h := range held {
				<-h
			}
		}
	}

	done := make(map[string]chan struct{}, len(order))
	for _, id := range order {
		done[id] = make(chan struct{})
	}
	outcomes := make(map[string]nodeOutcome, len(order))
	var mu sync.Mutex

	var wg sync.WaitGroup
	for _, nodeID := range order {
		nodeID := nodeID
		preds := predecessors[nodeID]
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(done[nodeID])

			for _, p := range preds {
				<-done[p]
			}

			var in types.ContentItem
			failed := false
			if len(preds) == 0 {
				in = item
			} else {
				mu.Lock()
				for i, p := range preds {
					res := outcomes[p]
					if res.err != nil {
						failed = true
						continue
					}
					if i == 0 {
						in = res.item
					} else {
						in = mergeContentItems(in, res.item)
					}
				}
				mu.Unlock()
			}
			if failed {
				mu.Lock()
				outcomes[nodeID] = nodeOutcome{err: errUpstreamBranchFailed}
				mu.Unlock()
				return
			}

			release := acquire(nodeID, preds)
			events, out, err := runNode(ctx, g, nodeID, in, opts)
			release()

			mu.Lock()
			outcomes[nodeID] = nodeOutcome{item: out, events: events, err: err}
			mu.Unlock()
		}()
	}
	wg.Wait()

	var finalEvents []types.ExecutionEvent
	var sinks []string
	var failure error
	for _, id := range order {
		oc := outcomes[id]
		finalEvents = append(finalEvents, oc.events...)
		if oc.err != nil && oc.err != errUpstreamBranchFailed && failure == nil {
			failure = oc.err
		}
		if !hasSuccessor[id] {
			sinks = append(sinks, id)
		}
	}
	if failure != nil {
		return finalEvents, item, failure
	}

	var finalItem types.ContentItem
	for i, id := range sinks {
		oc := outcomes[id]
		if i == 0 {
			finalItem = oc.item
		} else {
			finalItem = mergeContentItems(finalItem, oc.item)
		}
	}
	return finalEvents, finalItem, nil
}

// runNode runs one node's executor against in, returning its single
// execution event, output item and error (already wrapped with the node's
// executor ID via contentflowerr.NewExecutor).
func runNode(ctx ExecCtx, g *Graph, nodeID string, in types.ContentItem, opts PolicyOptions) ([]types.ExecutionEvent, types.ContentItem, error) {
	node, ok := g.Node(nodeID)
	if !ok {
		return nil, in, nil
	}
	exec, err := New(node.ExecutorType)
	if err != nil {
		wrapped := contentflowerr.NewExecutor(nodeID, err)
		return []types.ExecutionEvent{eventFor(nodeID, wrapped)}, in, wrapped
	}
	if err := exec.Init(node.Settings); err != nil {
		wrapped := contentflowerr.NewExecutor(nodeID, err)
		return []types.ExecutionEvent{eventFor(nodeID, wrapped)}, in, wrapped
	}

	out, err := invokeWithPolicy(ctx, exec, in, opts)
	_ = exec.Teardown()
	if err != nil {
		wrapped := contentflowerr.NewExecutor(nodeID, err)
		return []types.ExecutionEvent{eventFor(nodeID, wrapped)}, in, wrapped
	}
	return []types.ExecutionEvent{eventFor(nodeID, nil)}, out, nil
}

func eventFor(nodeID string, err error) types.ExecutionEvent {
	return types.ExecutionEvent{
		EventType:  eventTypeFor(err),
		ExecutorID: nodeID,
		Timestamp:  time.Now().UTC(),
		Error:      errString(err),
	}
}

// mergeContentItems combines two predecessor branches' output at a join
// node: Data and SummaryData are merged key-by-key with b's value winning on
// conflict, leaving a's identity fields (ID, Status) as the result's.
func mergeContentItems(a, b types.ContentItem) types.ContentItem {
	merged := a
	merged.Data = mergeDataMaps(a.Data, b.Data)
	merged.SummaryData = mergeDataMaps(a.SummaryData, b.SummaryData)
	return merged
}

func mergeDataMaps(a, b map[string]any) map[string]any {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// invokeWithPolicy wraps a single executor invocation in the pipeline's
// timeout and retries/retry_delay exponential backoff.
func invokeWithPolicy(ctx ExecCtx, exec Executor, item types.ContentItem, opts PolicyOptions) (types.ContentItem, error) {
	var out types.ContentItem
	var backoff retry.Backoff = retry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	if opts.RetryDelay > 0 {
		backoff = retry.NewExponential(opts.RetryDelay)
	}
	if opts.Retries > 0 {
		backoff = retry.WithMaxRetries(uint64(opts.Retries), backoff)
	} else {
		backoff = retry.WithMaxRetries(0, backoff)
	}

	err := retry.Do(ctx.Context, backoff, func(attemptCtx context.Context) error {
		callCtx := attemptCtx
		cancel := func() {}
		if opts.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(attemptCtx, opts.Timeout)
		}
		defer cancel()

		res, err := exec.Process(ExecCtx{Context: callCtx, Blobs: ctx.Blobs}, Item{Content: item})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				err = contentflowerr.New(contentflowerr.Timeout, err)
			}
			if contentflowerr.KindOf(err).Retriable() {
				return retry.RetryableError(err)
			}
			return err
		}
		out = res.Content
		return nil
	})
	return out, err
}

// RunInputOnly executes just the input node of graph, streaming items to
// yield lazily so the caller can stop mid-crawl. It returns the run's
// terminal error, if any; callers are expected to commit a new checkpoint
// only once yield has been called for every item (or the caller chose to
// stop early on purpose).
func RunInputOnly(ctx ExecCtx, g *Graph, checkpoint *types.VaultCrawlCheckpoint, yield func(types.ContentItem) bool) error {
	node, ok := g.Node(g.InputNode)
	if !ok {
		return contentflowerr.New(contentflowerr.InvalidPipeline, errNoInputNode)
	}
	exec, err := New(node.ExecutorType)
	if err != nil {
		return contentflowerr.NewExecutor(g.InputNode, err)
	}
	if err := exec.Init(withCheckpoint(node.Settings, checkpoint)); err != nil {
		return contentflowerr.NewExecutor(g.InputNode, err)
	}
	defer exec.Teardown()

	source, ok := exec.(InputExecutor)
	if !ok {
		return contentflowerr.NewExecutor(g.InputNode, errNotAnInputExecutor)
	}
	return source.Produce(ctx, yield)
}

// InputExecutor is the additional capability an input-node Executor must
// implement: lazily producing content items instead of transforming one.
type InputExecutor interface {
	Executor
	Produce(ctx ExecCtx, yield func(types.ContentItem) bool) error
}

func withCheckpoint(settings map[string]any, checkpoint *types.VaultCrawlCheckpoint) map[string]any {
	if checkpoint == nil {
		return settings
	}
	out := make(map[string]any, len(settings)+1)
	for k, v := range settings {
		out[k] = v
	}
	out["_checkpoint"] = checkpoint.CheckpointTimestamp
	return out
}

func eventTypeFor(err error) string {
	if err != nil {
		return "executor.failed"
	}
	return "executor.completed"
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
