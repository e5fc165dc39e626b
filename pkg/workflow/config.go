package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Category governs when a node runs and when the caller receives a result.
type Category string

const (
	// CategoryEntry seeds and validates the run. Exactly one per workflow.
	CategoryEntry Category = "entry"
	// CategoryMiddle is a staged transformation between entry and exit.
	CategoryMiddle Category = "middle"
	// CategoryExit produces the caller-visible output. Exactly one per
	// workflow; the engine returns as soon as it completes.
	CategoryExit Category = "exit"
	// CategoryAfter runs in the background after the result was returned.
	CategoryAfter Category = "after"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryEntry, CategoryMiddle, CategoryExit, CategoryAfter:
		return true
	}
	return false
}

// NodeConfig declares one node of a pipeline.
type NodeConfig struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Type     string   `json:"type" yaml:"type"` // builder name in the node registry
	Category Category `json:"category" yaml:"category"`

	// Next lists successor node IDs. Informational only: execution order is
	// the declared list order within each category band.
	Next []string `json:"next,omitempty" yaml:"next,omitempty"`

	// InitParams is decoded into the node implementation's option struct at
	// construction time.
	InitParams map[string]any `json:"init_params,omitempty" yaml:"init_params,omitempty"`

	// InputFields selects which context keys the node receives.
	InputFields []string `json:"input_fields,omitempty" yaml:"input_fields,omitempty"`

	// OutputFields declares the keys the node must produce. A missing key is
	// a contract violation; extra keys are dropped.
	OutputFields []string `json:"output_fields,omitempty" yaml:"output_fields,omitempty"`

	// InputMapping renames selected context keys before the node sees them
	// (context key -> node input key).
	InputMapping map[string]string `json:"input_mapping,omitempty" yaml:"input_mapping,omitempty"`
}

// Config declares a whole pipeline.
type Config struct {
	ID    string       `json:"id" yaml:"id"`
	Name  string       `json:"name" yaml:"name"`
	Nodes []NodeConfig `json:"nodes" yaml:"nodes"`
}

// Validate checks the structural rules a pipeline must satisfy before it can
// be bound to an engine: unique node IDs, known categories, exactly one entry
// and exactly one exit.
func (c Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("workflow %q: missing id", c.Name)
	}
	seen := make(map[string]bool, len(c.Nodes))
	entries, exits := 0, 0
	for _, nc := range c.Nodes {
		if nc.ID == "" {
			return fmt.Errorf("workflow %s: node with empty id", c.ID)
		}
		if seen[nc.ID] {
			return fmt.Errorf("workflow %s: duplicate node id %q", c.ID, nc.ID)
		}
		seen[nc.ID] = true
		if !nc.Category.Valid() {
			return fmt.Errorf("workflow %s: node %s: unknown category %q", c.ID, nc.ID, nc.Category)
		}
		switch nc.Category {
		case CategoryEntry:
			entries++
		case CategoryExit:
			exits++
		}
	}
	if entries != 1 {
		return fmt.Errorf("workflow %s: expected exactly one entry node, got %d", c.ID, entries)
	}
	if exits != 1 {
		return fmt.Errorf("workflow %s: expected exactly one exit node, got %d", c.ID, exits)
	}
	return nil
}

// ParseConfig decodes a YAML pipeline definition.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse workflow config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads and decodes a YAML pipeline definition from disk.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read workflow config: %w", err)
	}
	return ParseConfig(data)
}
