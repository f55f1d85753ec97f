// Package nodes provides the node backend registry and the builtin node
// classes shipped with the engine.
//
// A backend is looked up by class type at execution time. The builtin set
// covers literals, arithmetic, string operations, an async delay node, and
// a subgraph-expanding node; hosted-model backends live in the gemini,
// openai, and anthropic subpackages.
package nodes

import (
	"sort"
	"sync"

	"github.com/nodeflow/nodeflow/graph"
)

// Registry maps class types to node backends. It implements
// graph.BackendResolver and is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]graph.NodeBackend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]graph.NodeBackend),
	}
}

// Builtin creates a registry pre-populated with the builtin node classes.
func Builtin() *Registry {
	r := NewRegistry()
	registerBuiltins(r)
	return r
}

// Register adds or replaces the backend for classType.
func (r *Registry) Register(classType string, backend graph.NodeBackend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[classType] = backend
}

// Resolve implements graph.BackendResolver.
func (r *Registry) Resolve(classType string) (graph.NodeBackend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	backend, ok := r.backends[classType]
	return backend, ok
}

// ClassTypes returns the registered class types in sorted order.
func (r *Registry) ClassTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.backends))
	for ct := range r.backends {
		types = append(types, ct)
	}
	sort.Strings(types)
	return types
}
