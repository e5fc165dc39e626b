package workflow

import (
	"context"
	"fmt"
	"sync"
)

// Node is one stateless staged transformation. Implementations must not
// mutate their input map and must return every declared output field.
type Node interface {
	Execute(ctx context.Context, input map[string]any) (map[string]any, error)
}

// NodeFunc adapts a plain function to the Node interface.
type NodeFunc func(ctx context.Context, input map[string]any) (map[string]any, error)

// Execute implements Node.
func (f NodeFunc) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	return f(ctx, input)
}

// Builder constructs a node from its declarative config. Builders receive
// their InitParams through the config and should fail fast on bad ones.
type Builder func(cfg NodeConfig) (Node, error)

// NodeRegistry maps node type names to builders. It is an explicit object
// constructed once and injected into each engine, never a process-wide
// singleton. Lookups are resolved when a workflow is bound, not per call.
type NodeRegistry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewNodeRegistry creates an empty registry.
func NewNodeRegistry() *NodeRegistry {
	return &NodeRegistry{builders: make(map[string]Builder)}
}

// Register adds a builder under a type name. Registration is validated here
// so that a misconfigured workflow fails at construction time.
func (r *NodeRegistry) Register(typeName string, b Builder) error {
	if typeName == "" {
		return fmt.Errorf("node registry: empty type name")
	}
	if b == nil {
		return fmt.Errorf("node registry: nil builder for %q", typeName)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.builders[typeName]; ok {
		return fmt.Errorf("node registry: type %q already registered", typeName)
	}
	r.builders[typeName] = b
	return nil
}

// Build constructs the node declared by cfg.
func (r *NodeRegistry) Build(cfg NodeConfig) (Node, error) {
	r.mu.RLock()
	b, ok := r.builders[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("node registry: unknown node type %q (node %s)", cfg.Type, cfg.ID)
	}
	return b(cfg)
}
