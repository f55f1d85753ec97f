package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Prompt is the submitted graph for one run: a mapping from node identity to
// Node plus the set of requested output node identities. A Prompt is
// immutable once a run starts; per-run mutation happens in DynamicView.
type Prompt struct {
	Nodes   map[NodeID]Node `json:"nodes"`
	Outputs []NodeID        `json:"outputs"`
}

// ParsePrompt decodes a prompt from its JSON wire form. A node identity
// declared more than once is rejected: encoding/json keeps only the last
// entry, which would silently drop part of the submitted graph.
func ParsePrompt(data []byte) (*Prompt, error) {
	var p Prompt
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding prompt: %w", err)
	}
	if issues := duplicateNodeIssues(data); len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return &p, nil
}

// duplicateNodeIssues re-scans the raw JSON for repeated keys in the nodes
// object, which the struct decoding above cannot see.
func duplicateNodeIssues(data []byte) []ValidationIssue {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, _ := keyTok.(string)
		if key != "nodes" {
			if skipValue(dec) != nil {
				return nil
			}
			continue
		}

		if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
			return nil
		}
		seen := make(map[string]bool)
		var issues []ValidationIssue
		for dec.More() {
			idTok, err := dec.Token()
			if err != nil {
				return nil
			}
			id, _ := idTok.(string)
			if seen[id] {
				issues = append(issues, ValidationIssue{
					NodeID:  NodeID(id),
					Code:    IssueDuplicateNode,
					Message: fmt.Sprintf("node %q declared more than once", id),
				})
			}
			seen[id] = true
			if skipValue(dec) != nil {
				return nil
			}
		}
		return issues
	}
	return nil
}

// skipValue consumes one complete JSON value from dec.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok || (d != '{' && d != '[') {
		return nil
	}
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}

// sortedNodeIDs returns the prompt's node identities in lexical order. This
// is the declaration order used for deterministic scheduling tie-breaks.
func (p *Prompt) sortedNodeIDs() []NodeID {
	ids := make([]NodeID, 0, len(p.Nodes))
	for id := range p.Nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Validate checks the prompt for structural problems: empty output set,
// dangling references, unknown class types (when resolver is non-nil), and
// reference cycles among nodes required for the requested outputs. It
// returns a *ValidationError listing every offending node, or nil.
func (p *Prompt) Validate(resolver BackendResolver) error {
	var issues []ValidationIssue

	if len(p.Outputs) == 0 {
		issues = append(issues, ValidationIssue{
			Code:    IssueNoOutputs,
			Message: "prompt requests no outputs",
		})
	}
	for _, out := range p.Outputs {
		if _, ok := p.Nodes[out]; !ok {
			issues = append(issues, ValidationIssue{
				NodeID:  out,
				Code:    IssueMissingNode,
				Message: fmt.Sprintf("requested output node %q does not exist", out),
			})
		}
	}

	for _, id := range p.sortedNodeIDs() {
		node := p.Nodes[id]
		if node.ClassType == "" {
			issues = append(issues, ValidationIssue{
				NodeID:  id,
				Code:    IssueEmptyClass,
				Message: "node has no class type",
			})
		} else if resolver != nil {
			if _, ok := resolver.Resolve(node.ClassType); !ok {
				issues = append(issues, ValidationIssue{
					NodeID:  id,
					Code:    IssueUnknownClass,
					Message: fmt.Sprintf("no backend registered for class %q", node.ClassType),
				})
			}
		}
		for _, field := range sortedInputNames(node.Inputs) {
			in := node.Inputs[field]
			if in.Ref == nil {
				continue
			}
			if _, ok := p.Nodes[in.Ref.Node]; !ok {
				issues = append(issues, ValidationIssue{
					NodeID:  id,
					Field:   field,
					Code:    IssueBadReference,
					Message: fmt.Sprintf("input %q references missing node %q", field, in.Ref.Node),
				})
			}
			if in.Ref.Slot < 0 {
				issues = append(issues, ValidationIssue{
					NodeID:  id,
					Field:   field,
					Code:    IssueBadReference,
					Message: fmt.Sprintf("input %q references negative slot %d", field, in.Ref.Slot),
				})
			}
		}
	}

	// Cycle detection only makes sense over a structurally sound graph.
	if len(issues) == 0 {
		if cyclic := p.cycleMembers(); len(cyclic) > 0 {
			for _, id := range cyclic {
				issues = append(issues, ValidationIssue{
					NodeID:  id,
					Code:    IssueCycle,
					Message: "node participates in a reference cycle",
				})
			}
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// UnusedNodes returns, in lexical order, nodes not required by any requested
// output. Such nodes are never scheduled; submission surfaces them as
// warnings rather than errors.
func (p *Prompt) UnusedNodes() []NodeID {
	needed := p.neededSet()

	var unused []NodeID
	for _, id := range p.sortedNodeIDs() {
		if !needed[id] {
			unused = append(unused, id)
		}
	}
	return unused
}

// cycleMembers runs Kahn's algorithm over the nodes required for the
// requested outputs and returns, in lexical order, every node left with
// unsatisfied dependencies: exactly the members and dependents of cycles.
func (p *Prompt) cycleMembers() []NodeID {
	needed := p.neededSet()

	indegree := make(map[NodeID]int, len(needed))
	dependents := make(map[NodeID][]NodeID, len(needed))
	for id := range needed {
		indegree[id] = 0
	}
	for id := range needed {
		for _, field := range sortedInputNames(p.Nodes[id].Inputs) {
			in := p.Nodes[id].Inputs[field]
			if in.Ref == nil || !needed[in.Ref.Node] {
				continue
			}
			indegree[id]++
			dependents[in.Ref.Node] = append(dependents[in.Ref.Node], id)
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
	if resolved == len(needed) {
		return nil
	}

	var cyclic []NodeID
	for id, deg := range indegree {
		if deg > 0 {
			cyclic = append(cyclic, id)
		}
	}
	sort.Slice(cyclic, func(i, j int) bool { return cyclic[i] < cyclic[j] })
	return cyclic
}

// neededSet returns the nodes reachable upstream from the requested outputs.
// Only these participate in scheduling and progress accounting.
func (p *Prompt) neededSet() map[NodeID]bool {
	needed := make(map[NodeID]bool)
	stack := make([]NodeID, 0, len(p.Outputs))
	for _, out := range p.Outputs {
		if _, ok := p.Nodes[out]; ok {
			stack = append(stack, out)
		}
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if needed[id] {
			continue
		}
		needed[id] = true
		for _, in := range p.Nodes[id].Inputs {
			if in.Ref == nil {
				continue
			}
			if _, ok := p.Nodes[in.Ref.Node]; ok && !needed[in.Ref.Node] {
				stack = append(stack, in.Ref.Node)
			}
		}
	}
	return needed
}

func sortedInputNames(inputs map[string]Input) []string {
	names := make([]string, 0, len(inputs))
	for name := range inputs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
