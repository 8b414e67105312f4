// Package flow provides the action registry for flow-invoked backend
// operations.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/supportflow/supportflow/internal/models"
)

// Action is a named backend operation a flow node can invoke. Execute
// receives the session variables and may mutate them (e.g. setting a status
// field) as its observable side effect. A returned error means the operation
// itself broke and propagates out of message handling; the recoverable
// failure and escalation signals travel in the ActionResult instead.
type Action interface {
	Execute(ctx context.Context, vars map[string]string) (models.ActionResult, error)
}

// ActionFunc adapts a plain function to the Action interface.
type ActionFunc func(ctx context.Context, vars map[string]string) (models.ActionResult, error)

// Execute calls the wrapped function.
func (f ActionFunc) Execute(ctx context.Context, vars map[string]string) (models.ActionResult, error) {
	return f(ctx, vars)
}

// Registry maps function names to Action implementations. Flow definitions
// are validated against it at load time so unknown names fail fast instead of
// at dispatch time.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry creates an empty action registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]Action)}
}

// Register associates a function name with an Action implementation.
func (r *Registry) Register(name string, a Action) error {
	if name == "" {
		return fmt.Errorf("action name cannot be empty")
	}
	if a == nil {
		return fmt.Errorf("action %q cannot be nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[name]; exists {
		return fmt.Errorf("action %q already registered", name)
	}
	r.actions[name] = a
	slog.Debug("Registry action registered", "name", name)
	return nil
}

// Get retrieves the Action registered under the given name.
func (r *Registry) Get(name string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[name]
	return a, ok
}

// Has reports whether an action is registered under the given name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[name]
	return ok
}

// Names returns the registered action names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
