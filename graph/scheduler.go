package graph

import "sort"

// Scheduler yields the next node ready to execute over a DynamicView,
// honoring dependencies, cache-seeded work, and asynchronously outstanding
// nodes. Selection is deterministic for a given graph: nodes are considered
// in declaration order (prompt identities lexically, injected identities in
// injection order), and the first ready node wins. Because only nodes with
// every dependency satisfied are ever staged, the resulting execution order
// is a stable topological order.
//
// The scheduler shares run state with the executor and is driven from the
// single executor goroutine; it is not safe for concurrent use.
type Scheduler struct {
	view *DynamicView
	rs   *runState
}

// NewScheduler creates a scheduler over view sharing the executor's run
// state.
func newScheduler(view *DynamicView, rs *runState) *Scheduler {
	return &Scheduler{view: view, rs: rs}
}

// StageNext returns the identity of the next node to execute.
//
// The second return is false when no node can be staged right now. That is
// the normal end of a run when OutputsSatisfied reports true, a wait point
// when async completions are outstanding, and otherwise a terminal
// condition: ErrCycleDetected if the remaining nodes form a reference
// cycle (possible only via subgraph injection, pre-run validation rejects
// cyclic prompts), or ErrSchedulingDeadlock when the remaining nodes can
// never be satisfied.
func (s *Scheduler) StageNext() (NodeID, bool, error) {
	needed := s.neededSet()

	for _, id := range s.view.NodeIDs() {
		if !needed[id] || s.rs.executed[id] || s.rs.pending[id] {
			continue
		}
		if _, expanded := s.view.ExpandedResult(id); expanded {
			continue
		}
		if s.depsSatisfied(id) {
			return id, true, nil
		}
	}

	if s.OutputsSatisfied() || len(s.rs.pending) > 0 {
		return "", false, nil
	}

	if s.remainingCyclic(needed) {
		return "", false, ErrCycleDetected
	}
	return "", false, ErrSchedulingDeadlock
}

// OutputsSatisfied reports whether every requested output is resolvable.
func (s *Scheduler) OutputsSatisfied() bool {
	for _, out := range s.view.Outputs() {
		if !s.rs.satisfied(out) {
			return false
		}
	}
	return true
}

// depsSatisfied reports whether every input reference of id resolves.
func (s *Scheduler) depsSatisfied(id NodeID) bool {
	node, ok := s.view.Node(id)
	if !ok {
		return false
	}
	for _, in := range node.Inputs {
		if in.Ref != nil && !s.rs.satisfied(in.Ref.Node) {
			return false
		}
	}
	return true
}

// neededSet computes the nodes required for the requested outputs over the
// dynamic view, traversing input references and, for expanded nodes, the
// references their output slots resolve through.
func (s *Scheduler) neededSet() map[NodeID]bool {
	needed := make(map[NodeID]bool)
	stack := append([]NodeID(nil), s.view.Outputs()...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if needed[id] {
			continue
		}
		node, ok := s.view.Node(id)
		if !ok {
			continue
		}
		needed[id] = true
		for _, in := range node.Inputs {
			if in.Ref != nil && !needed[in.Ref.Node] {
				stack = append(stack, in.Ref.Node)
			}
		}
		if refs, ok := s.view.ExpandedResult(id); ok {
			for _, ref := range refs {
				if !needed[ref.Node] {
					stack = append(stack, ref.Node)
				}
			}
		}
	}
	return needed
}

// remainingCyclic reports whether the not-yet-satisfied needed nodes form a
// dependency cycle. Run only when the scheduler is stuck, to pick the right
// terminal error.
func (s *Scheduler) remainingCyclic(needed map[NodeID]bool) bool {
	remaining := make(map[NodeID]bool)
	for id := range needed {
		if !s.rs.satisfied(id) {
			remaining[id] = true
		}
	}
	if len(remaining) == 0 {
		return false
	}

	indegree := make(map[NodeID]int, len(remaining))
	dependents := make(map[NodeID][]NodeID)
	for id := range remaining {
		indegree[id] = 0
	}
	for id := range remaining {
		node, ok := s.view.Node(id)
		if !ok {
			continue
		}
		for _, in := range node.Inputs {
			if in.Ref != nil && remaining[in.Ref.Node] {
				indegree[id]++
				dependents[in.Ref.Node] = append(dependents[in.Ref.Node], id)
			}
		}
		// An expanded node depends on the references its result slots
		// resolve through.
		if refs, ok := s.view.ExpandedResult(id); ok {
			for _, ref := range refs {
				if remaining[ref.Node] {
					indegree[id]++
					dependents[ref.Node] = append(dependents[ref.Node], id)
				}
			}
		}
	}

	var ready []NodeID
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	resolved := 0
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		id := ready[0]
		ready = ready[1:]
		resolved++
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}
	return resolved != len(remaining)
}
