package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Func is a unit of work executed inside a child process. Implementations
// should honor ctx cancellation so cooperative shutdown can beat the
// force-kill grace period.
type Func func(ctx context.Context, call Call) (any, error)

// Registry maps task names to functions. The name is what crosses the
// process boundary, so both parent and child must register the same tasks
// before workers are started.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds a task function under name. Duplicate names are rejected.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" {
		return fmt.Errorf("task name is required")
	}
	if fn == nil {
		return fmt.Errorf("task %q: function is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("task %q already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Names returns the sorted list of registered task names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide registry used by MaybeRunChild.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Register adds a task to the default registry.
func Register(name string, fn Func) error {
	return defaultRegistry.Register(name, fn)
}

// MustRegister adds a task to the default registry and panics on conflict.
// Intended for init-time registration of a program's task set.
func MustRegister(name string, fn Func) {
	if err := defaultRegistry.Register(name, fn); err != nil {
		panic(err)
	}
}
