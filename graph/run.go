package graph

import "fmt"

// RunStatus is the lifecycle state of one run.
type RunStatus string

// Run lifecycle: PENDING while queued, RUNNING once the executor picks the
// run up, then exactly one terminal state.
const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// runState tracks per-run execution bookkeeping. Owned exclusively by the
// executor goroutine for the run being processed.
type runState struct {
	view *DynamicView

	// executed holds nodes whose outputs are available this run, including
	// nodes seeded from the cache before fresh scheduling began.
	executed map[NodeID]bool

	// cached holds the subset of executed seeded from the cache; these do
	// not advance the progress counter.
	cached map[NodeID]bool

	// pending holds nodes whose asynchronous completion is outstanding.
	pending map[NodeID]bool

	// outputs holds the concrete slot values produced (or cache-seeded)
	// this run.
	outputs map[NodeID]Output

	// current counts synchronously-accounted executed nodes for progress
	// reporting. Monotonically increasing.
	current int

	// total is the progress denominator, fixed when the run enters
	// RUNNING. Subgraph injection after that point does not change it.
	total int
}

func newRunState(view *DynamicView) *runState {
	return &runState{
		view:     view,
		executed: make(map[NodeID]bool),
		cached:   make(map[NodeID]bool),
		pending:  make(map[NodeID]bool),
		outputs:  make(map[NodeID]Output),
	}
}

// satisfied reports whether id's outputs are resolvable: either the node
// executed, or it expanded and every reference its slots resolve through is
// itself satisfied. Expansion results that resolve through each other in a
// cycle are unsatisfiable; the seen set keeps the walk from recursing
// forever on them.
func (rs *runState) satisfied(id NodeID) bool {
	return rs.satisfiedWalk(id, make(map[NodeID]bool))
}

func (rs *runState) satisfiedWalk(id NodeID, seen map[NodeID]bool) bool {
	if rs.executed[id] {
		return true
	}
	if seen[id] {
		return false
	}
	seen[id] = true
	refs, ok := rs.view.ExpandedResult(id)
	if !ok {
		return false
	}
	for _, ref := range refs {
		if !rs.satisfiedWalk(ref.Node, seen) {
			return false
		}
	}
	return true
}

// slotValue resolves one output slot, following expansion wiring as needed.
func (rs *runState) slotValue(ref OutputRef) (any, error) {
	seen := make(map[NodeID]bool)
	for {
		if seen[ref.Node] {
			return nil, fmt.Errorf("resolving %s[%d]: %w", ref.Node, ref.Slot, ErrCycleDetected)
		}
		seen[ref.Node] = true

		if out, ok := rs.outputs[ref.Node]; ok {
			if ref.Slot >= len(out) {
				return nil, fmt.Errorf("node %s produced %d outputs, slot %d requested", ref.Node, len(out), ref.Slot)
			}
			return out[ref.Slot], nil
		}
		refs, ok := rs.view.ExpandedResult(ref.Node)
		if !ok {
			return nil, fmt.Errorf("no output available for node %s", ref.Node)
		}
		if ref.Slot >= len(refs) {
			return nil, fmt.Errorf("expansion of %s wires %d slots, slot %d requested", ref.Node, len(refs), ref.Slot)
		}
		ref = refs[ref.Slot]
	}
}

// RunResult is the terminal report for one run.
type RunResult struct {
	RunID    string
	Status   RunStatus
	Outputs  map[NodeID]Output
	Executed []NodeID
	Cached   []NodeID
	Err      error
}
