package graph

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"lukechampine.com/blake3"
)

// Fingerprint identifies a node's resolved-input state: the BLAKE3 hash of
// the node's class type plus every input, with references replaced by the
// upstream node's fingerprint and slot. A change anywhere upstream changes
// the fingerprint of exactly the dependent chain, which is what makes cache
// invalidation transitive for free.
type Fingerprint string

// fingerprinter memoizes fingerprints for one run over a DynamicView.
type fingerprinter struct {
	view *DynamicView
	memo map[NodeID]Fingerprint

	// inFlight guards the recursion so an injected cycle surfaces as an
	// error instead of a stack overflow.
	inFlight map[NodeID]bool
}

func newFingerprinter(view *DynamicView) *fingerprinter {
	return &fingerprinter{
		view:     view,
		memo:     make(map[NodeID]Fingerprint),
		inFlight: make(map[NodeID]bool),
	}
}

// Fingerprint computes (or returns the memoized) fingerprint for id.
func (f *fingerprinter) Fingerprint(id NodeID) (Fingerprint, error) {
	if fp, ok := f.memo[id]; ok {
		return fp, nil
	}
	if f.inFlight[id] {
		return "", fmt.Errorf("fingerprinting %s: %w", id, ErrCycleDetected)
	}
	f.inFlight[id] = true
	defer delete(f.inFlight, id)

	node, ok := f.view.Node(id)
	if !ok {
		return "", fmt.Errorf("fingerprinting unknown node %s", id)
	}

	payload := map[string]any{"class": node.ClassType}
	inputs := make(map[string]any, len(node.Inputs))
	for _, field := range sortedInputNames(node.Inputs) {
		in := node.Inputs[field]
		if in.Ref != nil {
			up, err := f.Fingerprint(in.Ref.Node)
			if err != nil {
				return "", err
			}
			inputs[field] = []any{"ref", string(up), in.Ref.Slot}
			continue
		}
		inputs[field] = []any{"lit", in.Literal}
	}
	payload["inputs"] = inputs

	data, err := canonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("fingerprinting %s: %w", id, err)
	}
	sum := blake3.Sum256(data)
	fp := Fingerprint(hex.EncodeToString(sum[:]))
	f.memo[id] = fp
	return fp, nil
}

// canonicalJSON serializes v as JSON with stable map key ordering so equal
// values always hash equal.
func canonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var obj any
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	return canonicalMarshal(obj)
}

func canonicalMarshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := canonicalMarshal(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			vb, err := canonicalMarshal(item)
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	default:
		return json.Marshal(v)
	}
}
