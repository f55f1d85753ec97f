package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/nodeflow/nodeflow/graph/emit"
)

// Executor drives one run at a time through the scheduler: it stages ready
// nodes, executes them via the registered backends, commits outputs to the
// cache, and emits progress events. Synchronous nodes run to completion
// before the next scheduling decision; asynchronous nodes park in a pending
// set while the loop keeps staging other ready work, and their completions
// fold back in through a channel. That channel is the only suspension point
// in the execution path.
//
// The executor owns the run state and the output cache for the run it is
// processing; sessions never touch either directly.
type Executor struct {
	resolver BackendResolver
	cache    OutputCache
	emitter  emit.Emitter
	metrics  *Metrics
	logger   *slog.Logger

	mu        sync.Mutex
	interrupt chan struct{}
}

// NewExecutor creates an Executor executing nodes via resolver. With no
// options it uses a fresh in-memory cache, a null emitter, and the default
// slog logger.
func NewExecutor(resolver BackendResolver, opts ...Option) *Executor {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Executor{
		resolver: resolver,
		cache:    cfg.cache,
		emitter:  cfg.emitter,
		metrics:  cfg.metrics,
		logger:   cfg.logger,
	}
}

// Cache returns the output cache shared across this executor's runs.
func (ex *Executor) Cache() OutputCache { return ex.cache }

// Interrupt requests cancellation of the active run. It takes effect at the
// next scheduling boundary, never mid-node; already-committed cache entries
// stay valid for future runs. The terminal return cancels the run's context,
// so in-flight async backends observe cancellation and can stop their work.
// Interrupting when no run is active is a no-op.
func (ex *Executor) Interrupt() {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	if ex.interrupt != nil {
		select {
		case <-ex.interrupt:
		default:
			close(ex.interrupt)
		}
	}
}

// asyncDone carries an asynchronous completion back into the executor loop.
type asyncDone struct {
	id   NodeID
	comp AsyncCompletion
}

// Execute runs one queued run to a terminal state and returns its result.
// The returned result always has exactly one terminal status; errors that
// abort the run are reported both as events and in RunResult.Err.
func (ex *Executor) Execute(ctx context.Context, run *QueuedRun) *RunResult {
	interrupt := make(chan struct{})
	ex.mu.Lock()
	ex.interrupt = interrupt
	ex.mu.Unlock()
	defer func() {
		ex.mu.Lock()
		ex.interrupt = nil
		ex.mu.Unlock()
	}()

	started := time.Now()
	res := ex.execute(ctx, run, interrupt)
	if ex.metrics != nil {
		ex.metrics.runFinished(res.Status, time.Since(started))
	}
	ex.logger.Info("run finished",
		"run_id", run.RunID,
		"status", string(res.Status),
		"executed", len(res.Executed),
		"cached", len(res.Cached),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return res
}

func (ex *Executor) execute(ctx context.Context, run *QueuedRun, interrupt <-chan struct{}) *RunResult {
	// A malformed prompt should have been rejected at submission; a second
	// check here keeps the executor safe against out-of-band callers.
	if err := run.Prompt.Validate(ex.resolver); err != nil {
		return &RunResult{RunID: run.RunID, Status: StatusFailed, Err: err}
	}

	// Backends get a per-run context so a terminal return, including an
	// interrupt, reaches in-flight async work as cancellation.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	view := NewDynamicView(run.Prompt)
	rs := newRunState(view)
	sched := newScheduler(view, rs)
	fp := newFingerprinter(view)

	// Seed work already satisfiable from prior runs. A fingerprint hit is
	// self-consistent: matching fingerprints imply identical upstream
	// values, so a hit needs no upstream seeding.
	needed := sched.neededSet()
	for _, id := range view.NodeIDs() {
		if !needed[id] {
			continue
		}
		nodeFP, err := fp.Fingerprint(id)
		if err != nil {
			return ex.fail(run, rs, &NodeError{NodeID: id, Code: "fingerprint", Message: err.Error(), Cause: err})
		}
		if out, ok := ex.cache.Get(id, nodeFP); ok {
			rs.executed[id] = true
			rs.cached[id] = true
			rs.outputs[id] = out
			if ex.metrics != nil {
				ex.metrics.cacheHits.Inc()
			}
		} else if ex.metrics != nil {
			ex.metrics.cacheMisses.Inc()
		}
	}

	rs.total = len(needed) - len(rs.cached)
	if rs.total < 1 {
		rs.total = 1
	}

	ex.emitEvent(run, emit.Event{Kind: emit.KindExecutionStart, Meta: map[string]any{
		"timestamp_ms": time.Now().UnixMilli(),
	}})
	ex.emitEvent(run, emit.Event{Kind: emit.KindExecutionCached, Nodes: sortedIDStrings(rs.cached)})

	// Completions from async nodes fold back in through this channel.
	// Forwarder goroutines select against runDone so an aborted run never
	// leaks them.
	compCh := make(chan asyncDone)
	runDone := make(chan struct{})
	defer close(runDone)

	for {
		// Fold in any async completion that already arrived.
		select {
		case done := <-compCh:
			if res := ex.foldCompletion(run, rs, view, fp, done); res != nil {
				return res
			}
			continue
		default:
		}

		// Cancellation takes effect here, at the scheduling boundary.
		select {
		case <-ctx.Done():
			return ex.cancelled(run, rs)
		case <-interrupt:
			return ex.cancelled(run, rs)
		default:
		}

		id, ok, err := sched.StageNext()
		if err != nil {
			code := "deadlock"
			if errors.Is(err, ErrCycleDetected) {
				code = "cycle"
			}
			return ex.fail(run, rs, &NodeError{Code: code, Message: err.Error(), Cause: err})
		}
		if !ok {
			if len(rs.pending) == 0 {
				return ex.completed(run, rs)
			}
			// Nothing stageable until an async node finishes.
			select {
			case done := <-compCh:
				if res := ex.foldCompletion(run, rs, view, fp, done); res != nil {
					return res
				}
			case <-ctx.Done():
				return ex.cancelled(run, rs)
			case <-interrupt:
				return ex.cancelled(run, rs)
			}
			continue
		}

		node, _ := view.Node(id)
		rs.current++
		ex.emitEvent(run, emit.Event{
			Kind:      emit.KindNodeExecuting,
			NodeID:    string(id),
			ClassType: node.ClassType,
			Progress:  rs.progress(),
		})

		result, err := ex.executeNode(runCtx, run, rs, view, id, node)
		if err != nil {
			return ex.fail(run, rs, err)
		}

		switch {
		case result.Async != nil:
			rs.pending[id] = true
			if ex.metrics != nil {
				ex.metrics.pendingAsync.Inc()
			}
			go func(id NodeID, ch <-chan AsyncCompletion) {
				var comp AsyncCompletion
				select {
				case comp = <-ch:
				case <-runDone:
					return
				}
				select {
				case compCh <- asyncDone{id: id, comp: comp}:
				case <-runDone:
				}
			}(id, result.Async)
		case result.Expand != nil:
			if err := view.Inject(id, result.Expand); err != nil {
				return ex.fail(run, rs, &NodeError{
					NodeID: id, ClassType: node.ClassType,
					Code: "expansion", Message: err.Error(), Cause: err,
				})
			}
		default:
			if err := ex.commit(rs, fp, id, result.Output); err != nil {
				return ex.fail(run, rs, err)
			}
		}
	}
}

// executeNode resolves inputs and invokes the node's backend, wrapping any
// failure into a *NodeError naming the node.
func (ex *Executor) executeNode(ctx context.Context, run *QueuedRun, rs *runState, view *DynamicView, id NodeID, node Node) (*ExecResult, error) {
	backend, ok := ex.resolver.Resolve(node.ClassType)
	if !ok {
		return nil, &NodeError{
			NodeID: id, ClassType: node.ClassType,
			Code: "unknown_class", Message: fmt.Sprintf("no backend registered for class %q", node.ClassType),
		}
	}

	inputs := make(map[string]any, len(node.Inputs))
	for field, in := range node.Inputs {
		if in.Ref == nil {
			inputs[field] = in.Literal
			continue
		}
		v, err := rs.slotValue(*in.Ref)
		if err != nil {
			return nil, &NodeError{
				NodeID: id, ClassType: node.ClassType,
				Code: "unresolved_input", Message: fmt.Sprintf("input %q: %v", field, err), Cause: err,
			}
		}
		inputs[field] = v
	}

	started := time.Now()
	result, err := backend.Execute(ctx, ExecRequest{
		RunID:     run.RunID,
		NodeID:    id,
		ClassType: node.ClassType,
		Inputs:    inputs,
	})
	if ex.metrics != nil {
		ex.metrics.nodeLatency.WithLabelValues(node.ClassType, statusLabel(err)).
			Observe(float64(time.Since(started).Milliseconds()))
	}
	if err != nil {
		var ne *NodeError
		if errors.As(err, &ne) {
			return nil, err
		}
		return nil, &NodeError{
			NodeID: id, ClassType: node.ClassType,
			Code: "execution", Message: err.Error(), Cause: err,
		}
	}
	if result == nil {
		return nil, &NodeError{
			NodeID: id, ClassType: node.ClassType,
			Code: "execution", Message: "backend returned no result",
		}
	}
	return result, nil
}

// foldCompletion applies one async completion to the run state. A non-nil
// return is the terminal result of the run (the completion failed).
func (ex *Executor) foldCompletion(run *QueuedRun, rs *runState, view *DynamicView, fp *fingerprinter, done asyncDone) *RunResult {
	delete(rs.pending, done.id)
	if ex.metrics != nil {
		ex.metrics.pendingAsync.Dec()
	}

	node, _ := view.Node(done.id)
	if done.comp.Err != nil {
		var ne *NodeError
		if errors.As(done.comp.Err, &ne) {
			return ex.fail(run, rs, done.comp.Err)
		}
		return ex.fail(run, rs, &NodeError{
			NodeID: done.id, ClassType: node.ClassType,
			Code: "execution", Message: done.comp.Err.Error(), Cause: done.comp.Err,
		})
	}
	if done.comp.Expand != nil {
		if err := view.Inject(done.id, done.comp.Expand); err != nil {
			return ex.fail(run, rs, &NodeError{
				NodeID: done.id, ClassType: node.ClassType,
				Code: "expansion", Message: err.Error(), Cause: err,
			})
		}
		return nil
	}
	if err := ex.commit(rs, fp, done.id, done.comp.Output); err != nil {
		return ex.fail(run, rs, err)
	}
	return nil
}

// commit stores a node's output in the run state and the cache.
func (ex *Executor) commit(rs *runState, fp *fingerprinter, id NodeID, out Output) error {
	nodeFP, err := fp.Fingerprint(id)
	if err != nil {
		return &NodeError{NodeID: id, Code: "fingerprint", Message: err.Error(), Cause: err}
	}
	rs.executed[id] = true
	rs.outputs[id] = out
	ex.cache.Put(id, nodeFP, out)
	return nil
}

func (ex *Executor) completed(run *QueuedRun, rs *runState) *RunResult {
	outputs := make(map[NodeID]Output, len(rs.view.Outputs()))
	for _, out := range rs.view.Outputs() {
		if v, err := rs.slotOutputs(out); err == nil {
			outputs[out] = v
		}
	}
	ex.emitEvent(run, emit.Event{Kind: emit.KindExecutionComplete})
	return &RunResult{
		RunID:    run.RunID,
		Status:   StatusCompleted,
		Outputs:  outputs,
		Executed: sortedIDs(rs.executed),
		Cached:   sortedIDs(rs.cached),
	}
}

func (ex *Executor) fail(run *QueuedRun, rs *runState, err error) *RunResult {
	detail := &emit.ErrorDetail{Code: "execution", Message: err.Error()}
	var ne *NodeError
	if errors.As(err, &ne) {
		detail = &emit.ErrorDetail{
			NodeID:    string(ne.NodeID),
			ClassType: ne.ClassType,
			Code:      ne.Code,
			Message:   ne.Message,
		}
	}
	ex.emitEvent(run, emit.Event{
		Kind:      emit.KindExecutionError,
		NodeID:    detail.NodeID,
		ClassType: detail.ClassType,
		Err:       detail,
	})
	return &RunResult{
		RunID:    run.RunID,
		Status:   StatusFailed,
		Executed: sortedIDs(rs.executed),
		Cached:   sortedIDs(rs.cached),
		Err:      err,
	}
}

func (ex *Executor) cancelled(run *QueuedRun, rs *runState) *RunResult {
	ex.emitEvent(run, emit.Event{Kind: emit.KindExecutionInterrupted})
	return &RunResult{
		RunID:    run.RunID,
		Status:   StatusCancelled,
		Executed: sortedIDs(rs.executed),
		Cached:   sortedIDs(rs.cached),
		Err:      ErrInterrupted,
	}
}

func (ex *Executor) emitEvent(run *QueuedRun, ev emit.Event) {
	ev.RunID = run.RunID
	ev.SessionID = run.SessionID
	ex.emitter.Emit(ev)
}

// progress builds the {current, total, percentage} accounting for the next
// node_executing event. Total is fixed at run start, so injected nodes can
// push current past it; percentage is clamped to 100.
func (rs *runState) progress() *emit.Progress {
	pct := math.Min(100, math.Round(float64(rs.current)/float64(rs.total)*1000)/10)
	return &emit.Progress{Current: rs.current, Total: rs.total, Percentage: pct}
}

// slotOutputs resolves every slot an expanded or executed output node
// exposes, for inclusion in the run result.
func (rs *runState) slotOutputs(id NodeID) (Output, error) {
	if out, ok := rs.outputs[id]; ok {
		return out, nil
	}
	refs, ok := rs.view.ExpandedResult(id)
	if !ok {
		return nil, fmt.Errorf("no output available for node %s", id)
	}
	out := make(Output, len(refs))
	for i := range refs {
		v, err := rs.slotValue(OutputRef{Node: id, Slot: i})
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func sortedIDs(set map[NodeID]bool) []NodeID {
	ids := make([]NodeID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedIDStrings(set map[NodeID]bool) []string {
	ids := sortedIDs(set)
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
