package workflow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validNodes() []NodeConfig {
	return []NodeConfig{
		{ID: "in", Name: "in", Type: "ok", Category: CategoryEntry},
		{ID: "out", Name: "out", Type: "ok", Category: CategoryExit},
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg := Config{ID: "wf", Nodes: validNodes()}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing workflow id", func(t *testing.T) {
		cfg := Config{Nodes: validNodes()}
		assert.ErrorContains(t, cfg.Validate(), "missing id")
	})

	t.Run("empty node id", func(t *testing.T) {
		nodes := validNodes()
		nodes[0].ID = ""
		cfg := Config{ID: "wf", Nodes: nodes}
		assert.ErrorContains(t, cfg.Validate(), "empty id")
	})

	t.Run("duplicate node id", func(t *testing.T) {
		nodes := validNodes()
		nodes[1].ID = "in"
		cfg := Config{ID: "wf", Nodes: nodes}
		assert.ErrorContains(t, cfg.Validate(), "duplicate node id")
	})

	t.Run("unknown category", func(t *testing.T) {
		nodes := append(validNodes(), NodeConfig{ID: "x", Type: "ok", Category: "sideways"})
		cfg := Config{ID: "wf", Nodes: nodes}
		assert.ErrorContains(t, cfg.Validate(), "unknown category")
	})

	t.Run("no entry", func(t *testing.T) {
		cfg := Config{ID: "wf", Nodes: validNodes()[1:]}
		assert.ErrorContains(t, cfg.Validate(), "exactly one entry")
	})

	t.Run("two exits", func(t *testing.T) {
		nodes := append(validNodes(), NodeConfig{ID: "out2", Type: "ok", Category: CategoryExit})
		cfg := Config{ID: "wf", Nodes: nodes}
		assert.ErrorContains(t, cfg.Validate(), "exactly one exit")
	})
}

func TestParseConfig(t *testing.T) {
	data := []byte(`
id: chat
name: Chat pipeline
nodes:
  - id: entry
    name: Chat entry
    type: chat_entry
    category: entry
    input_fields: [characterID, userInput]
  - id: model
    name: Model call
    type: model
    category: middle
    init_params:
      model: gpt-4o-mini
      temperature: 0.8
    input_fields: [messages]
    input_mapping:
      messages: history
    output_fields: [fullResponse]
  - id: exit
    name: Respond
    type: parse
    category: exit
    output_fields: [assistantResponse]
`)

	cfg, err := ParseConfig(data)
	require.NoError(t, err)

	assert.Equal(t, "chat", cfg.ID)
	require.Len(t, cfg.Nodes, 3)
	assert.Equal(t, CategoryMiddle, cfg.Nodes[1].Category)
	assert.Equal(t, "gpt-4o-mini", cfg.Nodes[1].InitParams["model"])
	assert.Equal(t, map[string]string{"messages": "history"}, cfg.Nodes[1].InputMapping)
	assert.Equal(t, []string{"assistantResponse"}, cfg.Nodes[2].OutputFields)
}

func TestParseConfig_Errors(t *testing.T) {
	_, err := ParseConfig([]byte("nodes: [not a node"))
	assert.ErrorContains(t, err, "failed to parse workflow config")

	// Structurally valid YAML still has to pass Validate.
	_, err = ParseConfig([]byte("id: wf\nnodes: []\n"))
	assert.ErrorContains(t, err, "exactly one entry")
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
id: wf
nodes:
  - {id: in, type: ok, category: entry}
  - {id: out, type: ok, category: exit}
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "wf", cfg.ID)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read workflow config")
}

func TestNodeRegistry(t *testing.T) {
	reg := NewNodeRegistry()
	builder := func(cfg NodeConfig) (Node, error) {
		return NodeFunc(func(ctx context.Context, input map[string]any) (map[string]any, error) {
			return nil, nil
		}), nil
	}

	require.NoError(t, reg.Register("echo", builder))

	assert.ErrorContains(t, reg.Register("", builder), "empty type name")
	assert.ErrorContains(t, reg.Register("nilled", nil), "nil builder")
	assert.ErrorContains(t, reg.Register("echo", builder), "already registered")

	_, err := reg.Build(NodeConfig{ID: "n", Type: "unknown"})
	assert.ErrorContains(t, err, "unknown node type")

	node, err := reg.Build(NodeConfig{ID: "n", Type: "echo"})
	require.NoError(t, err)
	assert.NotNil(t, node)
}
