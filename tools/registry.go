package tools

import (
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// Registry holds the tools available to an agent, keyed by lowercase name.
// Registration happens before runs, the registry is treated as immutable
// while a run is in flight.
type Registry[C any] struct {
	mu     sync.RWMutex
	byName map[string]Tool[C]
	names  []string
	list   []Tool[C]
}

func NewRegistry[C any]() *Registry[C] {
	return &Registry[C]{
		byName: make(map[string]Tool[C]),
	}
}

// Register adds tools to the registry. The whole call is rejected with
// ErrDuplicateName when any tool name, compared case-insensitively, is
// already registered or repeats within the call, in that case the registry
// is left unchanged.
func (r *Registry[C]) Register(list ...Tool[C]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, tool := range list {
		key := strings.ToLower(tool.Name())
		if _, ok := r.byName[key]; ok || seen[key] {
			return errors.WithMessagef(ErrDuplicateName, "tool %q", tool.Name())
		}
		seen[key] = true
		keys = append(keys, key)
	}

	for i, tool := range list {
		r.byName[keys[i]] = tool
		r.names = append(r.names, tool.Name())
		r.list = append(r.list, tool)
	}
	return nil
}

// Resolve returns the tool registered under the given name, matched
// case-insensitively.
func (r *Registry[C]) Resolve(name string) (Tool[C], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, errors.WithMessagef(ErrNotFound, "tool %q", name)
	}
	return tool, nil
}

// Names returns tool names in registration order, with original casing.
func (r *Registry[C]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.names))
	copy(names, r.names)
	return names
}

// List returns the registered tools in registration order.
func (r *Registry[C]) List() []Tool[C] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Tool[C], len(r.list))
	copy(list, r.list)
	return list
}

func (r *Registry[C]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.list)
}
