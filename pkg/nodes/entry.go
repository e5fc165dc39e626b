package nodes

import (
	"context"

	"github.com/reveriehq/reverie/pkg/workflow"
)

// chatEntry resolves the character's dialogue tree (creating it on first
// interaction) and exposes the branch point for this turn: the current
// pointer becomes the new node's parent.
type chatEntry struct {
	deps Deps
}

func newChatEntry(deps Deps) workflow.Builder {
	return func(cfg workflow.NodeConfig) (workflow.Node, error) {
		return &chatEntry{deps: deps}, nil
	}
}

func (n *chatEntry) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	characterID, err := stringField(input, FieldCharacterID)
	if err != nil {
		return nil, err
	}
	if _, err := stringField(input, FieldUserInput); err != nil {
		return nil, err
	}

	tree, err := n.deps.Trees.CreateTree(ctx, characterID)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		FieldTreeID:       tree.ID,
		FieldParentNodeID: tree.CurrentID,
	}, nil
}
