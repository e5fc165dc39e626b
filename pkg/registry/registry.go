package registry

import (
	"context"
	"fmt"
	"sync"
)

// HelperFunc is a pure named helper a node may delegate to: chat-history
// formatting, regex post-processing, prompt injection fragments. Helpers keep
// domain logic out of the orchestration layer.
type HelperFunc func(ctx context.Context, args map[string]any) (any, error)

// Registry manages the available helpers. It is constructed once and
// injected wherever needed; there is deliberately no package-level default.
type Registry struct {
	mu      sync.RWMutex
	helpers map[string]HelperFunc
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{helpers: make(map[string]HelperFunc)}
}

// Register adds a helper. Names are validated here so a bad binding fails at
// wiring time, not on first call.
func (r *Registry) Register(name string, fn HelperFunc) error {
	if name == "" {
		return fmt.Errorf("helper registry: empty name")
	}
	if fn == nil {
		return fmt.Errorf("helper registry: nil function for %q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.helpers[name]; ok {
		return fmt.Errorf("helper registry: %q already registered", name)
	}
	r.helpers[name] = fn
	return nil
}

// Has reports whether a helper is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.helpers[name]
	return ok
}

// Call looks up a helper by name and executes it.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	fn, ok := r.helpers[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("helper not found: %s", name)
	}
	return fn(ctx, args)
}
