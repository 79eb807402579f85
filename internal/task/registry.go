package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Handler executes process-transferable work from a JSON payload.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Registry maintains the handlers a worker process can execute.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// DefaultRegistry holds the handlers installed by the binary at start-up.
var DefaultRegistry = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register installs a handler. Returns an error if the name already exists.
func (r *Registry) Register(name string, handler Handler) error {
	if name == "" {
		return fmt.Errorf("task: handler name is required")
	}
	if handler == nil {
		return fmt.Errorf("task: handler is required for %s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("task: handler %s already registered", name)
	}
	r.handlers[name] = handler
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(name string, handler Handler) {
	if err := r.Register(name, handler); err != nil {
		panic(err)
	}
}

// Lookup returns the handler registered under name.
func (r *Registry) Lookup(name string) (Handler, error) {
	r.mu.RLock()
	handler, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("task: unknown handler %s", name)
	}
	return handler, nil
}

// Names returns a sorted list of registered handler names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
