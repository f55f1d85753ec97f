package graph

import (
	"fmt"
	"sort"
)

// DynamicView layers run-scoped injected nodes over an immutable Prompt.
// It is append-only: Inject adds nodes minted with fresh identities, and
// nothing ever mutates or removes a node once added. The view belongs to a
// single run and is not safe for concurrent use; the executor is its only
// writer.
type DynamicView struct {
	prompt   *Prompt
	injected map[NodeID]Node

	// order records injected identities in injection order; together with
	// the prompt's lexical order this gives the stable declaration order
	// used by the scheduler.
	order []NodeID

	// expanded maps an expanded node to the remapped references its output
	// slots resolve through.
	expanded map[NodeID][]OutputRef

	nextIndex int
}

// NewDynamicView creates a view over prompt with no injected nodes.
func NewDynamicView(prompt *Prompt) *DynamicView {
	return &DynamicView{
		prompt:   prompt,
		injected: make(map[NodeID]Node),
		expanded: make(map[NodeID][]OutputRef),
	}
}

// Node looks up a node in the view, checking injected nodes first.
func (v *DynamicView) Node(id NodeID) (Node, bool) {
	if n, ok := v.injected[id]; ok {
		return n, true
	}
	n, ok := v.prompt.Nodes[id]
	return n, ok
}

// Outputs returns the requested output identities of the underlying prompt.
func (v *DynamicView) Outputs() []NodeID { return v.prompt.Outputs }

// NodeIDs returns every identity in the view in declaration order: prompt
// nodes in lexical order followed by injected nodes in injection order.
func (v *DynamicView) NodeIDs() []NodeID {
	ids := v.prompt.sortedNodeIDs()
	return append(ids, v.order...)
}

// ExpandedResult returns the remapped output wiring for an expanded node.
func (v *DynamicView) ExpandedResult(id NodeID) ([]OutputRef, bool) {
	refs, ok := v.expanded[id]
	return refs, ok
}

// Inject adds the expansion produced by owner to the view. Injected nodes
// get fresh identities of the form "<owner>.e<n>" from a monotonically
// increasing arena counter, so they can never collide with prompt
// identities or with nodes from earlier expansions. References among the
// injected nodes are rewritten to the minted identities; references to
// identities outside the expansion resolve against the existing view.
//
// The owner's output slots are recorded as resolving through the remapped
// Expansion.Result references.
func (v *DynamicView) Inject(owner NodeID, exp *Expansion) error {
	if exp == nil || len(exp.Nodes) == 0 {
		return fmt.Errorf("node %s produced an empty expansion", owner)
	}

	localIDs := make([]NodeID, 0, len(exp.Nodes))
	for id := range exp.Nodes {
		localIDs = append(localIDs, id)
	}
	sort.Slice(localIDs, func(i, j int) bool { return localIDs[i] < localIDs[j] })

	remap := make(map[NodeID]NodeID, len(localIDs))
	for _, local := range localIDs {
		fresh := NodeID(fmt.Sprintf("%s.e%d", owner, v.nextIndex))
		v.nextIndex++
		remap[local] = fresh
	}

	for _, local := range localIDs {
		src := exp.Nodes[local]
		node := Node{ClassType: src.ClassType, Inputs: make(map[string]Input, len(src.Inputs))}
		for field, in := range src.Inputs {
			if in.Ref != nil {
				ref := *in.Ref
				if fresh, ok := remap[ref.Node]; ok {
					ref.Node = fresh
				} else if _, ok := v.Node(ref.Node); !ok {
					return fmt.Errorf("expansion of %s: input %q references unknown node %q", owner, field, ref.Node)
				}
				node.Inputs[field] = Input{Ref: &ref}
				continue
			}
			node.Inputs[field] = in
		}
		fresh := remap[local]
		v.injected[fresh] = node
		v.order = append(v.order, fresh)
	}

	result := make([]OutputRef, len(exp.Result))
	for i, ref := range exp.Result {
		if fresh, ok := remap[ref.Node]; ok {
			ref.Node = fresh
		} else if _, ok := v.Node(ref.Node); !ok {
			return fmt.Errorf("expansion of %s: result slot %d references unknown node %q", owner, i, ref.Node)
		}
		result[i] = ref
	}
	v.expanded[owner] = result
	return nil
}
